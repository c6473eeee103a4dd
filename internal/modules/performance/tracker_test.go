package performance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusquant/argus/internal/database"
	"github.com/argusquant/argus/internal/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "performance.db"),
		Profile: database.ProfileLedger,
		Name:    "performance",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db.Conn(), zerolog.Nop())
}

// stubPrices maps (code, date) to a close.
type stubPrices struct{ closes map[string]float64 }

func (s *stubPrices) CloseOn(_ context.Context, _ domain.Kind, code string, date domain.TradeDate) (*float64, error) {
	if v, ok := s.closes[code+"@"+date.String()]; ok {
		return &v, nil
	}
	return nil, nil
}

// stubCalendar counts every weekday as a session, matching the
// calendar service's fallback arithmetic.
type stubCalendar struct{ latest domain.TradeDate }

func (s *stubCalendar) LatestTradeDate(domain.TradeDate) (domain.TradeDate, error) {
	return s.latest, nil
}

func (s *stubCalendar) AddTradeDays(date domain.TradeDate, n int) (domain.TradeDate, error) {
	d := date
	for added := 0; added < n; {
		d = d.AddCalendarDays(1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			added++
		}
	}
	return d, nil
}

func f64(v float64) *float64 { return &v }

func pick(code string, recType domain.RecType, date domain.TradeDate, entry float64) *domain.Recommendation {
	target, stop := recType.Targets()
	return &domain.Recommendation{
		ID:           code + "-" + string(recType) + "-" + date.String(),
		RecType:      recType,
		Code:         code,
		Name:         "测试",
		TradeDate:    date,
		Score:        78,
		Confidence:   domain.ConfidenceHigh,
		KeyFactors:   []string{"ROE优秀 (22.0%)"},
		EntryPrice:   f64(entry),
		TargetReturn: target,
		StopLoss:     stop,
	}
}

func TestRecordIsWriteOnce(t *testing.T) {
	repo := newTestRepo(t)
	rec := pick("600519.SH", domain.RecShortStock, "2026-01-05", 100)
	require.NoError(t, repo.Record(rec))

	dupe := pick("600519.SH", domain.RecShortStock, "2026-01-05", 999)
	dupe.ID = "other-id"
	require.NoError(t, repo.Record(dupe))

	recs, err := repo.ByTypeAndRange(domain.RecShortStock, "", "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 100.0, *recs[0].EntryPrice, "first write wins")
	assert.Equal(t, []string{"ROE优秀 (22.0%)"}, recs[0].KeyFactors)
	assert.Equal(t, domain.RecStatusPending, recs[0].Status)
}

func TestSevenDayEvaluation(t *testing.T) {
	repo := newTestRepo(t)
	// Mon 2026-01-05 + 7 weekday sessions = Wed 2026-01-14.
	require.NoError(t, repo.Record(pick("600519.SH", domain.RecShortStock, "2026-01-05", 100)))

	prices := &stubPrices{closes: map[string]float64{"600519.SH@2026-01-14": 106}}
	tr := NewTracker(repo, prices, &stubCalendar{latest: "2026-01-14"}, zerolog.Nop())

	n, err := tr.EvaluatePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recs, err := repo.ByTypeAndRange(domain.RecShortStock, "", "")
	require.NoError(t, err)
	rec := recs[0]
	assert.Equal(t, domain.RecStatusEvaluated7, rec.Status)
	require.NotNil(t, rec.Return7D)
	assert.Equal(t, 6.0, *rec.Return7D)
	require.NotNil(t, rec.HitTarget)
	assert.True(t, *rec.HitTarget, "6% clears the +5% short-stock target")
	require.NotNil(t, rec.HitStop)
	assert.False(t, *rec.HitStop)
	assert.Nil(t, rec.Return30D)
	require.NotNil(t, rec.EvaluatedAt)
}

func TestThirtyDayEvaluationKeepsEarlierTargetHit(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Record(pick("600519.SH", domain.RecShortStock, "2026-01-05", 100)))

	// Up 6% at the 7-day mark, down 4% at the 30-day mark: the target
	// hit stands and the stop hit joins it.
	prices := &stubPrices{closes: map[string]float64{
		"600519.SH@2026-01-14": 106,
		"600519.SH@2026-02-16": 96,
	}}
	tr := NewTracker(repo, prices, &stubCalendar{latest: "2026-02-16"}, zerolog.Nop())

	n, err := tr.EvaluatePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "both marks advance in one pass")

	recs, err := repo.ByTypeAndRange(domain.RecShortStock, "", "")
	require.NoError(t, err)
	rec := recs[0]
	assert.Equal(t, domain.RecStatusEvaluated30, rec.Status)
	require.NotNil(t, rec.Return30D)
	assert.Equal(t, -4.0, *rec.Return30D)
	require.NotNil(t, rec.FinalReturn)
	assert.Equal(t, -4.0, *rec.FinalReturn)
	assert.True(t, *rec.HitTarget, "7-day target hit survives the retreat")
	assert.True(t, *rec.HitStop, "-4% breaches the -3% stop at 30 days")

	// Idempotence: a second pass changes nothing.
	n, err = tr.EvaluatePending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEvaluationWaitsForTheMark(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Record(pick("600519.SH", domain.RecShortStock, "2026-01-05", 100)))

	tr := NewTracker(repo, &stubPrices{}, &stubCalendar{latest: "2026-01-08"}, zerolog.Nop())
	n, err := tr.EvaluatePending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	recs, err := repo.ByTypeAndRange(domain.RecShortStock, "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.RecStatusPending, recs[0].Status)
}

func TestMissingEntryPriceResolvedFromRecDate(t *testing.T) {
	repo := newTestRepo(t)
	rec := pick("110011.OF", domain.RecLongFund, "2026-01-05", 0)
	rec.EntryPrice = nil
	require.NoError(t, repo.Record(rec))

	prices := &stubPrices{closes: map[string]float64{
		"110011.OF@2026-01-05": 1.500,
		"110011.OF@2026-01-14": 1.620,
	}}
	tr := NewTracker(repo, prices, &stubCalendar{latest: "2026-01-14"}, zerolog.Nop())

	n, err := tr.EvaluatePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recs, err := repo.ByTypeAndRange(domain.RecLongFund, "", "")
	require.NoError(t, err)
	require.NotNil(t, recs[0].Return7D)
	assert.Equal(t, 8.0, *recs[0].Return7D)
	assert.True(t, *recs[0].HitTarget, "+8% meets the long-fund target")
}

func TestStatsAggregation(t *testing.T) {
	repo := newTestRepo(t)

	wins := []float64{12, 6}
	loss := -6.0
	for i, ret := range append(wins, loss) {
		rec := pick(string(rune('a'+i))+"00001.SH", domain.RecLongStock, domain.TradeDate("2026-01-0"+string(rune('5'+i))), 100)
		rec.ID = rec.Code
		require.NoError(t, repo.Record(rec))
		hitT := ret >= rec.TargetReturn
		hitS := ret <= rec.StopLoss
		r := ret
		require.NoError(t, repo.ApplyEvaluation(rec.ID, Evaluation{
			Return30D: &r,
			Final:     &r,
			HitTarget: &hitT,
			HitStop:   &hitS,
			Status:    domain.RecStatusEvaluated30,
		}))
	}
	// One still-pending pick dilutes count but not the rates.
	require.NoError(t, repo.Record(pick("600999.SH", domain.RecLongStock, "2026-01-09", 50)))

	tr := NewTracker(repo, &stubPrices{}, &stubCalendar{latest: "2026-02-28"}, zerolog.Nop())
	stats, err := tr.Stats(domain.RecLongStock, "", "")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 3, stats.Evaluated)
	require.NotNil(t, stats.HitRateTarget)
	assert.InDelta(t, 33.33, *stats.HitRateTarget, 0.01, "only +12% clears the +10% target")
	require.NotNil(t, stats.HitRateStop)
	assert.InDelta(t, 33.33, *stats.HitRateStop, 0.01)
	require.NotNil(t, stats.MeanReturn30D)
	assert.Equal(t, 4.0, *stats.MeanReturn30D)
	require.NotNil(t, stats.MedianReturn30D)
	assert.Equal(t, 6.0, *stats.MedianReturn30D)

	// Scoping by type excludes foreign records.
	other, err := tr.Stats(domain.RecShortFund, "", "")
	require.NoError(t, err)
	assert.Zero(t, other.Count)
}
