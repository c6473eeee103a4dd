package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusquant/argus/internal/domain"
)

func f64(v float64) *float64 { return &v }

// qualityRow mirrors the shape of a strong long-term candidate: high
// ROE, attractive PEG, cheap within its own history.
func qualityRow() *domain.StockFactors {
	return &domain.StockFactors{
		Code:               "600519.SH",
		TradeDate:          "2026-01-28",
		ConsolidationScore: f64(78),
		VolumePrecursor:    f64(60),
		MAConvergence:      f64(55),
		RSI14:              f64(52),
		BollingerPosition:  f64(48),
		ROE:                f64(22),
		GrossMargin:        f64(91),
		OCFToProfit:        f64(1.1),
		DebtRatio:          f64(22),
		RevenueGrowthYoY:   f64(18),
		ProfitGrowthYoY:    f64(25),
		RevenueCAGR3Y:      f64(15),
		ProfitCAGR3Y:       f64(17),
		PEGRatio:           f64(0.8),
		PEPercentile:       f64(20),
		PBPercentile:       f64(25),
		MainInflow5D:       f64(0.4),
		MainInflowTrend:    f64(68),
		NorthInflow5D:      f64(62),
		RetailOutflowRatio: f64(0.58),
	}
}

func TestScoreStockDeterministic(t *testing.T) {
	row := qualityRow()
	first := ScoreStock(row)
	for i := 0; i < 10; i++ {
		again := ScoreStock(row)
		assert.Equal(t, first.ShortTerm, again.ShortTerm)
		assert.Equal(t, first.LongTerm, again.LongTerm)
		assert.Equal(t, first.ShortComponents, again.ShortComponents)
		assert.Equal(t, first.LongComponents, again.LongComponents)
	}
}

func TestLongTermQualityRowScoresHigh(t *testing.T) {
	s := ScoreStock(qualityRow())
	require.NotNil(t, s.LongTerm)
	assert.GreaterOrEqual(t, *s.LongTerm, 75.0)
	assert.LessOrEqual(t, *s.LongTerm, 100.0)
	assert.Equal(t, domain.ConfidenceHigh, domain.ConfidenceFor(*s.LongTerm))
}

func TestQualityGateCapsLowROE(t *testing.T) {
	row := qualityRow()
	row.ROE = f64(8)
	s := ScoreStock(row)
	require.NotNil(t, s.LongTerm)
	assert.LessOrEqual(t, *s.LongTerm, QualityGateCap,
		"a sub-10 ROE must cap the long-term composite regardless of the other factors")
}

func TestQualityGateIgnoresAlreadyLowScores(t *testing.T) {
	row := &domain.StockFactors{
		ROE:             f64(4),
		ProfitGrowthYoY: f64(-30),
		PEPercentile:    f64(95),
	}
	s := ScoreStock(row)
	require.NotNil(t, s.LongTerm)
	assert.LessOrEqual(t, *s.LongTerm, QualityGateCap)
}

func TestMissingSubScoresRenormalize(t *testing.T) {
	// Only technical factors present: the short-term composite must not
	// be dragged down by the absent accumulation and risk inputs.
	row := &domain.StockFactors{
		ConsolidationScore: f64(90),
		VolumePrecursor:    f64(90),
		MAConvergence:      f64(90),
	}
	s := ScoreStock(row)
	require.NotNil(t, s.ShortTerm)
	// technical 90 at weight .40 plus neutral catalyst 50 at weight .20.
	want := (90*WeightShortTechnical + Neutral*WeightShortCatalyst) /
		(WeightShortTechnical + WeightShortCatalyst)
	assert.InDelta(t, want, *s.ShortTerm, 0.01)
}

func TestEmptyRowScoresNil(t *testing.T) {
	s := ScoreStock(&domain.StockFactors{})
	// The catalyst neutral keeps short-term defined even on an empty row.
	require.NotNil(t, s.ShortTerm)
	assert.InDelta(t, Neutral, *s.ShortTerm, 0.01)
	assert.Nil(t, s.LongTerm)
}

func TestPEGScoreBreakpoints(t *testing.T) {
	assert.InDelta(t, 95, pegScore(0.3), 0.001)
	assert.InDelta(t, 95, pegScore(0.5), 0.001)
	assert.InDelta(t, 80, pegScore(1.0), 0.001)
	assert.InDelta(t, 40, pegScore(2.0), 0.001)
	assert.InDelta(t, 20, pegScore(2.5), 0.001)
	assert.InDelta(t, PEGNegativeGrowthScore, pegScore(-1), 0.001)
}

func TestNegativeGrowthPEGScoresTwenty(t *testing.T) {
	row := &domain.StockFactors{ProfitGrowthYoY: f64(-5)}
	v := valuationSubScore(row)
	require.NotNil(t, v)
	assert.InDelta(t, PEGNegativeGrowthScore, *v, 0.001)
}

func TestRiskSubScoreRewardsMidRange(t *testing.T) {
	mid := &domain.StockFactors{RSI14: f64(50), BollingerPosition: f64(50), DebtRatio: f64(30)}
	hot := &domain.StockFactors{RSI14: f64(92), BollingerPosition: f64(97), DebtRatio: f64(85)}
	vMid, vHot := riskSubScore(mid), riskSubScore(hot)
	require.NotNil(t, vMid)
	require.NotNil(t, vHot)
	assert.Greater(t, *vMid, *vHot)
}

func TestCompositeClampsAndRounds(t *testing.T) {
	v, components := composite([]part{
		{"a", 0.5, f64(130)},
		{"b", 0.5, f64(-10)},
	})
	require.NotNil(t, v)
	assert.Equal(t, 50.0, *v)
	assert.Equal(t, 100.0, components["a"])
	assert.Equal(t, 0.0, components["b"])
}

func TestScaleInterpolates(t *testing.T) {
	assert.InDelta(t, 50.0, scale(0, [2]float64{-10, 0}, [2]float64{10, 100}), 0.001)
	assert.InDelta(t, 0.0, scale(-25, [2]float64{-10, 0}, [2]float64{10, 100}), 0.001)
	assert.InDelta(t, 100.0, scale(25, [2]float64{-10, 0}, [2]float64{10, 100}), 0.001)
}
