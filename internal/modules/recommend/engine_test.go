package recommend

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/internal/modules/market"
	"github.com/argusquant/argus/internal/modules/scoring"
)

type stubFactors struct {
	latest domain.TradeDate
	stocks []*domain.StockFactors
	funds  []*domain.FundFactors
	calls  int
}

func (s *stubFactors) TopStocks(_ domain.TradeDate, strategy domain.Strategy, minScore float64, n int) ([]*domain.StockFactors, error) {
	s.calls++
	var out []*domain.StockFactors
	for _, r := range s.stocks {
		if sc := r.Score(strategy); sc != nil && *sc >= minScore {
			out = append(out, r)
		}
		if len(out) == n {
			break
		}
	}
	return out, nil
}

func (s *stubFactors) TopFunds(_ domain.TradeDate, strategy domain.Strategy, minScore float64, n int) ([]*domain.FundFactors, error) {
	s.calls++
	var out []*domain.FundFactors
	for _, r := range s.funds {
		if sc := r.Score(strategy); sc != nil && *sc >= minScore {
			out = append(out, r)
		}
		if len(out) == n {
			break
		}
	}
	return out, nil
}

func (s *stubFactors) StockFactors(code string, _ domain.TradeDate) (*domain.StockFactors, error) {
	for _, r := range s.stocks {
		if r.Code == code {
			return r, nil
		}
	}
	return nil, nil
}

func (s *stubFactors) FundFactors(code string, _ domain.TradeDate) (*domain.FundFactors, error) {
	for _, r := range s.funds {
		if r.Code == code {
			return r, nil
		}
	}
	return nil, nil
}

func (s *stubFactors) LatestDate(domain.Kind) (domain.TradeDate, error) {
	return s.latest, nil
}

type stubInfo struct {
	stocks map[string]*market.StockInfo
	funds  map[string]*market.FundInfo
}

func (s *stubInfo) Stock(code string) (*market.StockInfo, error) { return s.stocks[code], nil }
func (s *stubInfo) Fund(code string) (*market.FundInfo, error)   { return s.funds[code], nil }

type stubValuation struct{ snaps map[string]*market.Snapshot }

func (s *stubValuation) Get(code string) (*market.Snapshot, error) { return s.snaps[code], nil }

type stubRecorder struct{ recorded []*domain.Recommendation }

func (s *stubRecorder) Record(r *domain.Recommendation) error {
	s.recorded = append(s.recorded, r)
	return nil
}

type stubAnnotator struct{ called bool }

func (s *stubAnnotator) Annotate(_ context.Context, recs []*domain.Recommendation) {
	s.called = true
	for _, r := range recs {
		r.Explanation = "annotated"
	}
}

func f64(v float64) *float64 { return &v }

// soundStock builds a row that passes the long-horizon quality gate.
func soundStock(code string, long float64) *domain.StockFactors {
	return &domain.StockFactors{
		Code:           code,
		TradeDate:      "2026-01-28",
		ROE:            f64(18),
		OCFToProfit:    f64(1.2),
		DebtRatio:      f64(45),
		ShortTermScore: f64(long - 5),
		LongTermScore:  f64(long),
	}
}

func newEngine(f *stubFactors, info *stubInfo, val *stubValuation, rec *stubRecorder, ann Annotator) *Engine {
	if info == nil {
		info = &stubInfo{}
	}
	if val == nil {
		val = &stubValuation{}
	}
	if rec == nil {
		rec = &stubRecorder{}
	}
	return New(f, info, val, rec, ann, zerolog.Nop())
}

func TestRecommendEmptyStoreNeverComputes(t *testing.T) {
	f := &stubFactors{latest: ""}
	e := newEngine(f, nil, nil, nil, nil)

	recs, err := e.Recommend(context.Background(), Query{Strategy: domain.StrategyLongTerm, Kind: domain.KindStock})
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Zero(t, f.calls, "no store reads, no upstream work on an empty store")
}

func TestRecommendRanksAndTruncates(t *testing.T) {
	f := &stubFactors{latest: "2026-01-28"}
	for i := 0; i < 6; i++ {
		f.stocks = append(f.stocks, soundStock(fmt.Sprintf("60000%d.SH", i), 70+float64(i)))
	}
	e := newEngine(f, nil, nil, nil, nil)

	recs, err := e.Recommend(context.Background(), Query{
		Strategy: domain.StrategyLongTerm,
		Kind:     domain.KindStock,
		TopN:     3,
		MinScore: 60,
	})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "600005.SH", recs[0].Code)
	assert.True(t, recs[0].Score > recs[1].Score)
	assert.Equal(t, domain.RecLongStock, recs[0].RecType)
	assert.Equal(t, domain.ConfidenceHigh, recs[0].Confidence)
	assert.GreaterOrEqual(t, len(recs[0].KeyFactors), 3)
	assert.Equal(t, 10.0, recs[0].TargetReturn)
	assert.Equal(t, -5.0, recs[0].StopLoss)
}

func TestQualityGateScreensLongStockPicks(t *testing.T) {
	weak := soundStock("600001.SH", 90)
	weak.ROE = f64(6)
	leaky := soundStock("600002.SH", 88)
	leaky.OCFToProfit = f64(0.2)
	leveraged := soundStock("600003.SH", 86)
	leveraged.DebtRatio = f64(92)
	sparse := soundStock("600004.SH", 84)
	sparse.OCFToProfit = nil
	sparse.DebtRatio = nil

	f := &stubFactors{latest: "2026-01-28", stocks: []*domain.StockFactors{
		weak, leaky, leveraged, sparse, soundStock("600005.SH", 82),
	}}
	e := newEngine(f, nil, nil, nil, nil)

	recs, err := e.Recommend(context.Background(), Query{
		Strategy: domain.StrategyLongTerm, Kind: domain.KindStock, TopN: 10, MinScore: 60,
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "600004.SH", recs[0].Code, "absent optional gate inputs do not bind")
	assert.Equal(t, "600005.SH", recs[1].Code)

	// The short-term path carries no quality gate.
	recs, err = e.Recommend(context.Background(), Query{
		Strategy: domain.StrategyShortTerm, Kind: domain.KindStock, TopN: 10, MinScore: 60,
	})
	require.NoError(t, err)
	assert.Len(t, recs, 5)
}

func TestUserPrefsScreening(t *testing.T) {
	st := soundStock("600001.SH", 90)
	liquor := soundStock("600519.SH", 85)
	pricey := soundStock("600002.SH", 84)
	tiny := soundStock("600003.SH", 83)
	keeper := soundStock("600004.SH", 80)

	f := &stubFactors{latest: "2026-01-28", stocks: []*domain.StockFactors{st, liquor, pricey, tiny, keeper}}
	info := &stubInfo{stocks: map[string]*market.StockInfo{
		"600001.SH": {Code: "600001.SH", Name: "*ST示例", IsST: true},
		"600519.SH": {Code: "600519.SH", Name: "贵州茅台", Industry: "白酒"},
		"600002.SH": {Code: "600002.SH", Name: "高市盈", Industry: "软件"},
		"600003.SH": {Code: "600003.SH", Name: "小市值", Industry: "软件"},
		"600004.SH": {Code: "600004.SH", Name: "稳健", Industry: "银行"},
	}}
	val := &stubValuation{snaps: map[string]*market.Snapshot{
		"600002.SH": {Code: "600002.SH", PE: f64(90), TotalMV: f64(500)},
		"600003.SH": {Code: "600003.SH", PE: f64(20), TotalMV: f64(30)},
		"600004.SH": {Code: "600004.SH", Close: f64(12.5), PE: f64(8), TotalMV: f64(900)},
	}}
	e := newEngine(f, info, val, nil, nil)

	recs, err := e.Recommend(context.Background(), Query{
		Strategy: domain.StrategyLongTerm,
		Kind:     domain.KindStock,
		TopN:     10,
		MinScore: 60,
		Prefs: &domain.UserPrefs{
			ExcludeST:         true,
			ExcludeIndustries: []string{"白酒"},
			MaxPE:             f64(50),
			MinMarketCap:      f64(100),
		},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "600004.SH", recs[0].Code)
	assert.Equal(t, "稳健", recs[0].Name)
	require.NotNil(t, recs[0].EntryPrice)
	assert.Equal(t, 12.5, *recs[0].EntryPrice)

	// a require list keeps only its industries; unknown industries drop too
	recs, err = e.Recommend(context.Background(), Query{
		Strategy: domain.StrategyLongTerm,
		Kind:     domain.KindStock,
		TopN:     10,
		MinScore: 60,
		Prefs:    &domain.UserPrefs{RequiredIndustries: []string{"软件"}},
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "600002.SH", recs[0].Code)
	assert.Equal(t, "600003.SH", recs[1].Code)
}

func TestPreferredIndustryBoostReordersAndReclamps(t *testing.T) {
	bank := soundStock("600004.SH", 72)
	chip := soundStock("688001.SH", 70)
	ace := soundStock("600005.SH", 95)

	f := &stubFactors{latest: "2026-01-28", stocks: []*domain.StockFactors{ace, bank, chip}}
	info := &stubInfo{stocks: map[string]*market.StockInfo{
		"600004.SH": {Code: "600004.SH", Industry: "银行"},
		"688001.SH": {Code: "688001.SH", Industry: "半导体"},
		"600005.SH": {Code: "600005.SH", Industry: "半导体"},
	}}
	e := newEngine(f, info, nil, nil, nil)

	recs, err := e.Recommend(context.Background(), Query{
		Strategy: domain.StrategyLongTerm,
		Kind:     domain.KindStock,
		TopN:     3,
		MinScore: 60,
		Prefs:    &domain.UserPrefs{PreferredIndustries: []string{"半导体"}},
	})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, 100.0, recs[0].Score, "boost re-clamps to 100")
	assert.Equal(t, "688001.SH", recs[1].Code, "boosted 70 -> 80.5 overtakes 72")
	assert.Equal(t, 80.5, recs[1].Score)
	assert.Equal(t, 72.0, recs[2].Score)
}

func TestRecommendRecordsFirstFivePicks(t *testing.T) {
	f := &stubFactors{latest: "2026-01-28"}
	for i := 0; i < 8; i++ {
		f.stocks = append(f.stocks, soundStock(fmt.Sprintf("60001%d.SH", i), 90-float64(i)))
	}
	rec := &stubRecorder{}
	ann := &stubAnnotator{}
	e := newEngine(f, nil, nil, rec, ann)

	recs, err := e.Recommend(context.Background(), Query{
		Strategy: domain.StrategyLongTerm, Kind: domain.KindStock, TopN: 7, MinScore: 60,
	})
	require.NoError(t, err)
	require.Len(t, recs, 7)
	assert.True(t, ann.called)
	assert.Equal(t, "annotated", recs[0].Explanation)

	require.Len(t, rec.recorded, 5)
	assert.Equal(t, recs[0].Code, rec.recorded[0].Code)
	assert.Equal(t, domain.RecStatusPending, rec.recorded[0].Status)
}

func TestRecommendFunds(t *testing.T) {
	f := &stubFactors{latest: "2026-01-28", funds: []*domain.FundFactors{
		{
			Code:               "110011.OF",
			TradeDate:          "2026-01-28",
			Return1Y:           f64(35.2),
			Sharpe1Y:           f64(1.45),
			ManagerTenureYears: f64(6),
			ShortTermScore:     f64(71),
			LongTermScore:      f64(83),
		},
	}}
	info := &stubInfo{funds: map[string]*market.FundInfo{
		"110011.OF": {Code: "110011.OF", Name: "易方达中小盘"},
	}}
	e := newEngine(f, info, nil, nil, nil)

	recs, err := e.Recommend(context.Background(), Query{
		Strategy: domain.StrategyLongTerm, Kind: domain.KindFund, TopN: 5, MinScore: 60,
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.RecLongFund, recs[0].RecType)
	assert.Equal(t, "易方达中小盘", recs[0].Name)
	assert.Equal(t, 8.0, recs[0].TargetReturn)
	assert.Equal(t, -4.0, recs[0].StopLoss)
	assert.Contains(t, recs[0].KeyFactors, "近一年收益优秀 (35.2%)")
}

func TestAnalyzeRescoresStoredRow(t *testing.T) {
	row := soundStock("600519.SH", 82)
	f := &stubFactors{latest: "2026-01-28", stocks: []*domain.StockFactors{row}}
	e := newEngine(f, nil, nil, nil, nil)

	a, err := e.Analyze(domain.KindStock, "600519.SH", "")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, domain.TradeDate("2026-01-28"), a.TradeDate)

	// The re-score agrees with a direct scorer run on the same row.
	want := scoring.ScoreStock(row)
	require.NotNil(t, a.LongTerm)
	assert.InDelta(t, *want.LongTerm, *a.LongTerm, 0.01)
	assert.NotNil(t, a.Factors["roe"])

	missing, err := e.Analyze(domain.KindStock, "999999.SH", "")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
