package scoring

import (
	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/pkg/formulas"
)

// StockScores carries both composites for one factor row, with the
// sub-score components that produced them.
type StockScores struct {
	ShortTerm       *float64
	LongTerm        *float64
	ShortComponents map[string]float64
	LongComponents  map[string]float64
}

// ScoreStock computes both strategy composites for a stock factor row.
func ScoreStock(f *domain.StockFactors) StockScores {
	s := StockScores{}
	s.ShortTerm, s.ShortComponents = shortTermStock(f)
	s.LongTerm, s.LongComponents = longTermStock(f)
	return s
}

// shortTermStock weighs technical 40%, accumulation 25%, catalyst 20%,
// risk 15%.
func shortTermStock(f *domain.StockFactors) (*float64, map[string]float64) {
	return composite([]part{
		{"technical", WeightShortTechnical, technicalSubScore(f)},
		{"accumulation", WeightShortAccumulation, accumulationSubScore(f)},
		{"catalyst", WeightShortCatalyst, ptr(Neutral)},
		{"risk", WeightShortRisk, riskSubScore(f)},
	})
}

// longTermStock weighs quality 35%, growth 30%, valuation 25%, moat 10%.
// A ROE below the quality gate hard-caps the composite.
func longTermStock(f *domain.StockFactors) (*float64, map[string]float64) {
	score, components := composite([]part{
		{"quality", WeightLongQuality, qualitySubScore(f)},
		{"growth", WeightLongGrowth, growthSubScore(f)},
		{"valuation", WeightLongValuation, valuationSubScore(f)},
		{"moat", WeightLongMoat, moatSubScore(f)},
	})
	if score != nil && f.ROE != nil && *f.ROE < QualityGateROE && *score > QualityGateCap {
		capped := QualityGateCap
		score = &capped
	}
	return score, components
}

// technicalSubScore combines the three designed 0-100 technical factors.
func technicalSubScore(f *domain.StockFactors) *float64 {
	v, _ := composite([]part{
		{"consolidation", WeightTechConsolidation, f.ConsolidationScore},
		{"volume", WeightTechVolumePrecursor, f.VolumePrecursor},
		{"ma_convergence", WeightTechMAConvergence, f.MAConvergence},
	})
	return v
}

// accumulationSubScore reads the money-flow factors. The 5-day main
// inflow is a ratio around zero and maps linearly onto [0,100] centred
// at 50; the trend factor is already a 0-100 score; a high retail sell
// share while main money buys marks distribution from weak hands.
func accumulationSubScore(f *domain.StockFactors) *float64 {
	var inflow, retail *float64
	if f.MainInflow5D != nil {
		inflow = ptr(formulas.Clamp(50+50*(*f.MainInflow5D), 0, 100))
	}
	if f.RetailOutflowRatio != nil {
		retail = ptr(formulas.Clamp(100*(*f.RetailOutflowRatio), 0, 100))
	}
	v, _ := composite([]part{
		{"inflow", WeightAccumInflow, inflow},
		{"trend", WeightAccumTrend, f.MainInflowTrend},
		{"retail", WeightAccumRetail, retail},
	})
	return v
}

// riskSubScore rewards mid-range RSI (35-65), mid-zone Bollinger
// position (30-70) and low leverage; extremes are penalized.
func riskSubScore(f *domain.StockFactors) *float64 {
	var rsi, boll, debt *float64
	if f.RSI14 != nil {
		rsi = ptr(bandScore(*f.RSI14, 35, 65))
	}
	if f.BollingerPosition != nil {
		boll = ptr(bandScore(*f.BollingerPosition, 30, 70))
	}
	if f.DebtRatio != nil {
		debt = ptr(formulas.Clamp(100-*f.DebtRatio, 0, 100))
	}
	v, _ := composite([]part{
		{"rsi", WeightRiskRSI, rsi},
		{"bollinger", WeightRiskBollinger, boll},
		{"debt", WeightRiskDebt, debt},
	})
	return v
}

// bandScore gives 80 inside [lo, hi] and decays linearly to 20 at the
// 0/100 extremes.
func bandScore(v, lo, hi float64) float64 {
	switch {
	case v >= lo && v <= hi:
		return 80
	case v < lo:
		return scale(v, [2]float64{0, 20}, [2]float64{lo, 80})
	default:
		return scale(v, [2]float64{hi, 80}, [2]float64{100, 20})
	}
}

func qualitySubScore(f *domain.StockFactors) *float64 {
	var roe, margin, ocf, stability *float64
	if f.ROE != nil {
		roe = ptr(scale(*f.ROE,
			[2]float64{0, 20}, [2]float64{5, 40}, [2]float64{10, 65},
			[2]float64{15, 80}, [2]float64{20, 95}))
	}
	if f.GrossMargin != nil {
		margin = ptr(scale(*f.GrossMargin,
			[2]float64{5, 30}, [2]float64{15, 50}, [2]float64{30, 75}, [2]float64{45, 90}))
	}
	if f.OCFToProfit != nil {
		ocf = ptr(scale(*f.OCFToProfit,
			[2]float64{0, 15}, [2]float64{0.5, 55}, [2]float64{0.8, 75}, [2]float64{1, 90}))
	}
	if f.GrossMarginStability != nil {
		stability = ptr(formulas.Clamp(10**f.GrossMarginStability, 0, 100))
	}
	v, _ := composite([]part{
		{"roe", WeightQualityROE, roe},
		{"margin", WeightQualityMargin, margin},
		{"ocf", WeightQualityOCF, ocf},
		{"stability", WeightQualityStability, stability},
	})
	return v
}

func growthSubScore(f *domain.StockFactors) *float64 {
	v, _ := composite([]part{
		{"profit_yoy", WeightGrowthProfitYoY, growthScore(f.ProfitGrowthYoY)},
		{"revenue_yoy", WeightGrowthRevenueYoY, growthScore(f.RevenueGrowthYoY)},
		{"profit_cagr", WeightGrowthProfitCAGR, growthScore(f.ProfitCAGR3Y)},
		{"revenue_cagr", WeightGrowthRevenueCAGR, growthScore(f.RevenueCAGR3Y)},
	})
	return v
}

// growthScore maps a growth percentage onto [0,100].
func growthScore(g *float64) *float64 {
	if g == nil {
		return nil
	}
	return ptr(scale(*g,
		[2]float64{-20, 10}, [2]float64{-10, 30}, [2]float64{0, 50},
		[2]float64{10, 70}, [2]float64{20, 85}, [2]float64{30, 95}))
}

// valuationSubScore rewards a low PEG and a cheap position within the
// stock's own PE/PB history. A PEG undefined through non-positive growth
// scores PEGNegativeGrowthScore; a PEG missing through missing inputs
// contributes nothing.
func valuationSubScore(f *domain.StockFactors) *float64 {
	var peg, pe, pb *float64
	switch {
	case f.PEGRatio != nil:
		peg = ptr(pegScore(*f.PEGRatio))
	case f.ProfitGrowthYoY != nil && *f.ProfitGrowthYoY <= 0:
		peg = ptr(PEGNegativeGrowthScore)
	}
	if f.PEPercentile != nil {
		pe = ptr(formulas.Clamp(100-*f.PEPercentile, 0, 100))
	}
	if f.PBPercentile != nil {
		pb = ptr(formulas.Clamp(100-*f.PBPercentile, 0, 100))
	}
	v, _ := composite([]part{
		{"peg", WeightValuationPEG, peg},
		{"pe_percentile", WeightValuationPEPercentile, pe},
		{"pb_percentile", WeightValuationPBPercentile, pb},
	})
	return v
}

// pegScore: 95 below 0.5, 80 at 1, 40 at 2, 20 above 2. Non-positive
// PEG means negative earnings and scores like stalled growth.
func pegScore(peg float64) float64 {
	switch {
	case peg <= 0:
		return PEGNegativeGrowthScore
	case peg > 2:
		return 20
	default:
		return scale(peg, [2]float64{0.5, 95}, [2]float64{1, 80}, [2]float64{2, 40})
	}
}

// moatSubScore proxies pricing power with the gross margin level and
// its stability across years.
func moatSubScore(f *domain.StockFactors) *float64 {
	var margin, stability *float64
	if f.GrossMargin != nil {
		margin = ptr(scale(*f.GrossMargin,
			[2]float64{10, 30}, [2]float64{25, 55}, [2]float64{40, 80}, [2]float64{55, 95}))
	}
	if f.GrossMarginStability != nil {
		stability = ptr(formulas.Clamp(10**f.GrossMarginStability, 0, 100))
	}
	v, _ := composite([]part{
		{"margin", WeightMoatMargin, margin},
		{"stability", WeightMoatStability, stability},
	})
	return v
}
