package domain

import "time"

// Strategy selects the holding horizon a scorer targets.
type Strategy string

const (
	StrategyShortTerm Strategy = "short_term"
	StrategyLongTerm  Strategy = "long_term"
)

// RecType identifies one of the four strategy/universe combinations a
// recommendation belongs to.
type RecType string

const (
	RecShortStock RecType = "short_stock"
	RecLongStock  RecType = "long_stock"
	RecShortFund  RecType = "short_fund"
	RecLongFund   RecType = "long_fund"
)

// RecTypeFor maps a strategy/kind pair to its recommendation type.
func RecTypeFor(strategy Strategy, kind Kind) RecType {
	switch {
	case strategy == StrategyShortTerm && kind == KindStock:
		return RecShortStock
	case strategy == StrategyLongTerm && kind == KindStock:
		return RecLongStock
	case strategy == StrategyShortTerm && kind == KindFund:
		return RecShortFund
	default:
		return RecLongFund
	}
}

// Kind returns the instrument universe of a recommendation type.
func (rt RecType) Kind() Kind {
	if rt == RecShortStock || rt == RecLongStock {
		return KindStock
	}
	return KindFund
}

// Targets returns the success target and stop-loss for a recommendation
// type, both in percent.
func (rt RecType) Targets() (targetPct, stopPct float64) {
	switch rt {
	case RecShortStock:
		return 5, -3
	case RecLongStock:
		return 10, -5
	case RecShortFund:
		return 3, -2
	case RecLongFund:
		return 8, -4
	}
	return 0, 0
}

// Confidence buckets a composite score.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ConfidenceFor buckets a score: high at 75 and above, medium at 60 and
// above, low below.
func ConfidenceFor(score float64) Confidence {
	switch {
	case score >= 75:
		return ConfidenceHigh
	case score >= 60:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Recommendation statuses form a one-way lifecycle.
const (
	RecStatusPending     = "pending"
	RecStatusEvaluated7  = "evaluated_7d"
	RecStatusEvaluated30 = "evaluated_30d"
	RecStatusClosed      = "closed"
)

// Recommendation is one scored pick, as returned to callers and as
// recorded for performance tracking.
type Recommendation struct {
	ID          string             `json:"id"`
	RecType     RecType            `json:"rec_type"`
	Code        string             `json:"code"`
	Name        string             `json:"name"`
	TradeDate   TradeDate          `json:"trade_date"`
	Score       float64            `json:"score"`
	Confidence  Confidence         `json:"confidence"`
	Components  map[string]float64 `json:"components,omitempty"`
	KeyFactors  []string           `json:"key_factors,omitempty"`
	Explanation string             `json:"explanation,omitempty"`

	EntryPrice   *float64 `json:"entry_price,omitempty"`
	TargetReturn float64  `json:"target_return_pct"`
	StopLoss     float64  `json:"stop_loss_pct"`

	Status      string     `json:"status,omitempty"`
	Price7D     *float64   `json:"price_7d,omitempty"`
	Return7D    *float64   `json:"return_7d,omitempty"`
	Price30D    *float64   `json:"price_30d,omitempty"`
	Return30D   *float64   `json:"return_30d,omitempty"`
	FinalReturn *float64   `json:"final_return,omitempty"`
	HitTarget   *bool      `json:"hit_target,omitempty"`
	HitStop     *bool      `json:"hit_stop,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
	EvaluatedAt *time.Time `json:"evaluated_at,omitempty"`
}

// UserPrefs are the per-user screening preferences applied after scoring.
// Zero values mean "no constraint".
type UserPrefs struct {
	ExcludeST           bool     `json:"exclude_st"`
	ExcludeIndustries   []string `json:"exclude_industries,omitempty"`
	RequiredIndustries  []string `json:"required_industries,omitempty"` // non-empty restricts picks to these
	PreferredIndustries []string `json:"preferred_industries,omitempty"`
	MinROE              *float64 `json:"min_roe,omitempty"`
	MaxPE               *float64 `json:"max_pe,omitempty"`
	RequireProfitable   bool     `json:"require_profitable,omitempty"`
	MinMarketCap        *float64 `json:"min_market_cap,omitempty"` // 亿元
	MaxMarketCap        *float64 `json:"max_market_cap,omitempty"` // 亿元
	MinTurnoverRate     *float64 `json:"min_turnover_rate,omitempty"`

	// TrackedFunds is the watchlist fed to the tracked fund universe.
	TrackedFunds []string `json:"tracked_funds,omitempty"`
}

// PreferredBoost is the multiplier applied to the composite score of
// instruments in a preferred industry, before re-clamping to [0,100].
const PreferredBoost = 1.15
