package domain

import "time"

// Quote is a realtime price snapshot from any quote provider.
type Quote struct {
	Code      string    `json:"code"` // canonical code
	Name      string    `json:"name,omitempty"`
	Price     float64   `json:"price"`
	PrevClose float64   `json:"prev_close"`
	ChangePct float64   `json:"change_pct"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// DailyBar is one day of OHLCV history for a stock or index.
type DailyBar struct {
	TradeDate TradeDate `json:"trade_date"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	PreClose  float64   `json:"pre_close"`
	Volume    float64   `json:"volume"` // in lots of 100 shares
	Amount    float64   `json:"amount"` // in 1000 CNY
}

// NAVPoint is one day of fund net asset value history.
type NAVPoint struct {
	Date     TradeDate `json:"date"`
	UnitNAV  float64   `json:"unit_nav"`
	AccumNAV float64   `json:"accum_nav"`
	AdjNAV   float64   `json:"adj_nav"` // dividend-adjusted, used for returns
}

// FundHolding is one position from a fund's disclosed portfolio.
type FundHolding struct {
	StockCode string    `json:"stock_code"` // canonical stock code
	StockName string    `json:"stock_name,omitempty"`
	Weight    float64   `json:"weight"` // percent of fund assets
	EndDate   TradeDate `json:"end_date"`
}
