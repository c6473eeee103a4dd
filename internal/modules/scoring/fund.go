package scoring

import (
	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/pkg/formulas"
)

// FundScores carries both composites for one fund factor row.
type FundScores struct {
	ShortTerm       *float64
	LongTerm        *float64
	ShortComponents map[string]float64
	LongComponents  map[string]float64
}

// ScoreFund computes both strategy composites for a fund factor row.
func ScoreFund(f *domain.FundFactors) FundScores {
	s := FundScores{}
	s.ShortTerm, s.ShortComponents = shortTermFund(f)
	s.LongTerm, s.LongComponents = longTermFund(f)
	return s
}

// shortTermFund weighs momentum 40%, sector 30%, flow 20%, manager 10%.
// No sector-momentum or fund-flow feed is wired; both stay neutral, the
// same convention as the stock catalyst sub-score.
func shortTermFund(f *domain.FundFactors) (*float64, map[string]float64) {
	return composite([]part{
		{"momentum", WeightFundShortMomentum, momentumSubScore(f)},
		{"sector", WeightFundShortSector, ptr(Neutral)},
		{"flow", WeightFundShortFlow, ptr(Neutral)},
		{"manager", WeightFundShortManager, managerSubScore(f)},
	})
}

// longTermFund weighs risk-adjusted 35%, drawdown 25%, manager 25%,
// holdings 15%.
func longTermFund(f *domain.FundFactors) (*float64, map[string]float64) {
	return composite([]part{
		{"risk_adjusted", WeightFundLongRiskAdjusted, riskAdjustedSubScore(f)},
		{"drawdown", WeightFundLongDrawdown, drawdownSubScore(f)},
		{"manager", WeightFundLongManager, managerSubScore(f)},
		{"holdings", WeightFundLongHoldings, holdingsSubScore(f)},
	})
}

// momentumSubScore blends the short return windows, preferring the rank
// within the fund's own rolling history when available and the raw
// return otherwise.
func momentumSubScore(f *domain.FundFactors) *float64 {
	v, _ := composite([]part{
		{"1w", WeightMomentum1W, windowMomentum(f.Return1W, f.Rank1W, 3)},
		{"1m", WeightMomentum1M, windowMomentum(f.Return1M, f.Rank1M, 8)},
		{"3m", WeightMomentum3M, windowMomentum(f.Return3M, f.Rank3M, 15)},
	})
	return v
}

// windowMomentum averages the rank percentile with the return mapped
// against a full-score threshold for the window.
func windowMomentum(ret, rank *float64, fullAt float64) *float64 {
	var parts []part
	if rank != nil {
		parts = append(parts, part{"rank", 0.5, rank})
	}
	if ret != nil {
		s := scale(*ret, [2]float64{-fullAt, 10}, [2]float64{0, 50}, [2]float64{fullAt, 90})
		parts = append(parts, part{"return", 0.5, &s})
	}
	v, _ := composite(parts)
	return v
}

// riskAdjustedSubScore maps Sharpe, Sortino and Calmar onto [0,100].
func riskAdjustedSubScore(f *domain.FundFactors) *float64 {
	v, _ := composite([]part{
		{"sharpe", WeightRiskAdjSharpe, ratioScore(f.Sharpe1Y, 2.5)},
		{"sortino", WeightRiskAdjSortino, ratioScore(f.Sortino1Y, 3)},
		{"calmar", WeightRiskAdjCalmar, ratioScore(f.Calmar1Y, 2)},
	})
	return v
}

// ratioScore maps a risk-adjusted ratio onto [0,100]: 50 at zero, full
// score at fullAt, floor at -fullAt.
func ratioScore(r *float64, fullAt float64) *float64 {
	if r == nil {
		return nil
	}
	return ptr(scale(*r, [2]float64{-fullAt, 10}, [2]float64{0, 50}, [2]float64{fullAt, 95}))
}

// drawdownSubScore rewards shallow drawdowns and quick recoveries.
func drawdownSubScore(f *domain.FundFactors) *float64 {
	var depth, recovery *float64
	if f.MaxDrawdown1Y != nil {
		depth = ptr(scale(*f.MaxDrawdown1Y,
			[2]float64{5, 95}, [2]float64{10, 80}, [2]float64{20, 55},
			[2]float64{30, 30}, [2]float64{40, 15}))
	}
	if f.AvgRecoveryDays != nil {
		recovery = ptr(scale(*f.AvgRecoveryDays,
			[2]float64{10, 90}, [2]float64{30, 70}, [2]float64{60, 50},
			[2]float64{120, 25}))
	}
	v, _ := composite([]part{
		{"depth", WeightDrawdownDepth, depth},
		{"recovery", WeightDrawdownRecovery, recovery},
	})
	return v
}

// managerSubScore blends tenure, bull/bear alpha and style consistency.
func managerSubScore(f *domain.FundFactors) *float64 {
	var tenure, alpha, consistency *float64
	if f.ManagerTenureYears != nil {
		tenure = ptr(scale(*f.ManagerTenureYears,
			[2]float64{1, 30}, [2]float64{3, 60}, [2]float64{5, 80}, [2]float64{8, 95}))
	}
	switch {
	case f.BullAlpha != nil && f.BearAlpha != nil:
		// Bear-market alpha is the rarer skill and weighs double.
		a := (*f.BullAlpha + 2**f.BearAlpha) / 3
		alpha = ptr(scale(a, [2]float64{-10, 15}, [2]float64{0, 50}, [2]float64{10, 90}))
	case f.BullAlpha != nil:
		alpha = ptr(scale(*f.BullAlpha, [2]float64{-10, 15}, [2]float64{0, 50}, [2]float64{10, 90}))
	case f.BearAlpha != nil:
		alpha = ptr(scale(*f.BearAlpha, [2]float64{-10, 15}, [2]float64{0, 50}, [2]float64{10, 90}))
	}
	if f.StyleConsistency != nil {
		consistency = ptr(formulas.Clamp(*f.StyleConsistency, 0, 100))
	}
	v, _ := composite([]part{
		{"tenure", WeightManagerTenure, tenure},
		{"alpha", WeightManagerAlpha, alpha},
		{"consistency", WeightManagerConsistency, consistency},
	})
	return v
}

// holdingsSubScore reads through to the quality of what the fund owns.
func holdingsSubScore(f *domain.FundFactors) *float64 {
	var roe, div *float64
	if f.HoldingsAvgROE != nil {
		roe = ptr(scale(*f.HoldingsAvgROE,
			[2]float64{0, 20}, [2]float64{5, 40}, [2]float64{10, 65},
			[2]float64{15, 80}, [2]float64{20, 95}))
	}
	if f.HoldingsDiversification != nil {
		div = ptr(formulas.Clamp(*f.HoldingsDiversification, 0, 100))
	}
	v, _ := composite([]part{
		{"roe", WeightHoldingsROE, roe},
		{"diversification", WeightHoldingsDiversification, div},
	})
	return v
}
