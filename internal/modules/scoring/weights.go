package scoring

// All weight tables and breakpoints are declared here. Composite scores
// are weight-renormalized means of the available sub-scores: a missing
// sub-score removes its weight from the denominator instead of dragging
// the composite down.

// Neutral is the sub-score used where no signal is wired (catalyst for
// stocks, sector momentum and flow for funds).
const Neutral = 50.0

// Short-term stock composite weights.
const (
	WeightShortTechnical    = 0.40
	WeightShortAccumulation = 0.25
	WeightShortCatalyst     = 0.20
	WeightShortRisk         = 0.15
)

// Technical sub-score inner weights.
const (
	WeightTechConsolidation   = 0.40
	WeightTechVolumePrecursor = 0.35
	WeightTechMAConvergence   = 0.25
)

// Accumulation sub-score inner weights.
const (
	WeightAccumInflow = 0.45
	WeightAccumTrend  = 0.35
	WeightAccumRetail = 0.20
)

// Risk sub-score inner weights.
const (
	WeightRiskRSI       = 0.35
	WeightRiskBollinger = 0.30
	WeightRiskDebt      = 0.35
)

// Long-term stock composite weights.
const (
	WeightLongQuality   = 0.35
	WeightLongGrowth    = 0.30
	WeightLongValuation = 0.25
	WeightLongMoat      = 0.10
)

// Quality sub-score inner weights.
const (
	WeightQualityROE       = 0.40
	WeightQualityMargin    = 0.25
	WeightQualityOCF       = 0.20
	WeightQualityStability = 0.15
)

// Growth sub-score inner weights.
const (
	WeightGrowthProfitYoY   = 0.35
	WeightGrowthRevenueYoY  = 0.25
	WeightGrowthProfitCAGR  = 0.25
	WeightGrowthRevenueCAGR = 0.15
)

// Valuation sub-score inner weights.
const (
	WeightValuationPEG          = 0.50
	WeightValuationPEPercentile = 0.30
	WeightValuationPBPercentile = 0.20
)

// Moat sub-score inner weights.
const (
	WeightMoatMargin    = 0.60
	WeightMoatStability = 0.40
)

// QualityGateROE is the long-term eligibility floor: rows below it are
// hard-capped at QualityGateCap regardless of the other sub-scores.
const (
	QualityGateROE = 10.0
	QualityGateCap = 30.0
)

// PEGNegativeGrowthScore is the valuation sub-score assigned when the
// PEG ratio is undefined because profit growth is non-positive.
const PEGNegativeGrowthScore = 20.0

// Short-term fund composite weights.
const (
	WeightFundShortMomentum = 0.40
	WeightFundShortSector   = 0.30
	WeightFundShortFlow     = 0.20
	WeightFundShortManager  = 0.10
)

// Fund momentum inner weights.
const (
	WeightMomentum1W = 0.30
	WeightMomentum1M = 0.40
	WeightMomentum3M = 0.30
)

// Long-term fund composite weights.
const (
	WeightFundLongRiskAdjusted = 0.35
	WeightFundLongDrawdown     = 0.25
	WeightFundLongManager      = 0.25
	WeightFundLongHoldings     = 0.15
)

// Risk-adjusted inner weights.
const (
	WeightRiskAdjSharpe  = 0.45
	WeightRiskAdjSortino = 0.30
	WeightRiskAdjCalmar  = 0.25
)

// Drawdown inner weights.
const (
	WeightDrawdownDepth    = 0.70
	WeightDrawdownRecovery = 0.30
)

// Fund manager inner weights.
const (
	WeightManagerTenure      = 0.40
	WeightManagerAlpha       = 0.35
	WeightManagerConsistency = 0.25
)

// Fund holdings inner weights.
const (
	WeightHoldingsROE             = 0.60
	WeightHoldingsDiversification = 0.40
)
