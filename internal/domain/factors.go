package domain

import "time"

// StockFactors is one dated factor snapshot for a stock. Every factor is
// nullable: a nil field means the inputs were unavailable on that day.
// Scorers renormalize around missing values instead of inventing them.
type StockFactors struct {
	Code      string    `json:"code"`
	TradeDate TradeDate `json:"trade_date"`

	// Technical
	ConsolidationScore *float64 `json:"consolidation_score"`
	VolumePrecursor    *float64 `json:"volume_precursor"`
	MAConvergence      *float64 `json:"ma_convergence"`
	RSI14              *float64 `json:"rsi_14"`
	MACDSignal         *float64 `json:"macd_signal"`
	BollingerPosition  *float64 `json:"bollinger_position"`

	// Fundamental
	ROE                  *float64 `json:"roe"`
	ROEYoY               *float64 `json:"roe_yoy"`
	GrossMargin          *float64 `json:"gross_margin"`
	GrossMarginStability *float64 `json:"gross_margin_stability"`
	DebtRatio            *float64 `json:"debt_ratio"`
	OCFToProfit          *float64 `json:"ocf_to_profit"`
	RevenueGrowthYoY     *float64 `json:"revenue_growth_yoy"`
	ProfitGrowthYoY      *float64 `json:"profit_growth_yoy"`
	RevenueCAGR3Y        *float64 `json:"revenue_cagr_3y"`
	ProfitCAGR3Y         *float64 `json:"profit_cagr_3y"`
	PEGRatio             *float64 `json:"peg_ratio"`
	PEPercentile         *float64 `json:"pe_percentile"`
	PBPercentile         *float64 `json:"pb_percentile"`

	// Money flow
	MainInflow5D       *float64 `json:"main_inflow_5d"`
	MainInflowTrend    *float64 `json:"main_inflow_trend"`
	NorthInflow5D      *float64 `json:"north_inflow_5d"`
	RetailOutflowRatio *float64 `json:"retail_outflow_ratio"`

	// Composite scores, set by the strategy scorers after the factor
	// computers have filled the row. Pure functions of the fields above.
	ShortTermScore *float64 `json:"short_term_score"`
	LongTermScore  *float64 `json:"long_term_score"`

	ComputedAt time.Time `json:"computed_at"`
}

// Score returns the composite for the given strategy, or nil when the
// scorers have not run.
func (f *StockFactors) Score(s Strategy) *float64 {
	if s == StrategyShortTerm {
		return f.ShortTermScore
	}
	return f.LongTermScore
}

// Merge copies non-nil factors from other into f. Computers each fill a
// slice of the row; the daily pipeline merges their partial results.
func (f *StockFactors) Merge(other *StockFactors) {
	if other == nil {
		return
	}
	dst := f.fieldMap()
	for name, src := range other.fieldMap() {
		if *src != nil {
			*dst[name] = *src
		}
	}
}

// AsMap exposes the factor fields by column name, for key-factor
// selection and tests. Nil entries are preserved.
func (f *StockFactors) AsMap() map[string]*float64 {
	out := make(map[string]*float64, 23)
	for name, p := range f.fieldMap() {
		out[name] = *p
	}
	return out
}

func (f *StockFactors) fieldMap() map[string]**float64 {
	return map[string]**float64{
		"consolidation_score":    &f.ConsolidationScore,
		"volume_precursor":       &f.VolumePrecursor,
		"ma_convergence":         &f.MAConvergence,
		"rsi_14":                 &f.RSI14,
		"macd_signal":            &f.MACDSignal,
		"bollinger_position":     &f.BollingerPosition,
		"roe":                    &f.ROE,
		"roe_yoy":                &f.ROEYoY,
		"gross_margin":           &f.GrossMargin,
		"gross_margin_stability": &f.GrossMarginStability,
		"debt_ratio":             &f.DebtRatio,
		"ocf_to_profit":          &f.OCFToProfit,
		"revenue_growth_yoy":     &f.RevenueGrowthYoY,
		"profit_growth_yoy":      &f.ProfitGrowthYoY,
		"revenue_cagr_3y":        &f.RevenueCAGR3Y,
		"profit_cagr_3y":         &f.ProfitCAGR3Y,
		"peg_ratio":              &f.PEGRatio,
		"pe_percentile":          &f.PEPercentile,
		"pb_percentile":          &f.PBPercentile,
		"main_inflow_5d":         &f.MainInflow5D,
		"main_inflow_trend":      &f.MainInflowTrend,
		"north_inflow_5d":        &f.NorthInflow5D,
		"retail_outflow_ratio":   &f.RetailOutflowRatio,
	}
}

// FundFactors is one dated factor snapshot for a fund.
type FundFactors struct {
	Code      string    `json:"code"`
	TradeDate TradeDate `json:"trade_date"`

	// Performance
	Return1W *float64 `json:"return_1w"`
	Return1M *float64 `json:"return_1m"`
	Return3M *float64 `json:"return_3m"`
	Return6M *float64 `json:"return_6m"`
	Return1Y *float64 `json:"return_1y"`
	Rank1W   *float64 `json:"rank_1w"`
	Rank1M   *float64 `json:"rank_1m"`
	Rank3M   *float64 `json:"rank_3m"`
	Rank6M   *float64 `json:"rank_6m"`
	Rank1Y   *float64 `json:"rank_1y"`

	// Risk
	Volatility20D   *float64 `json:"volatility_20d"`
	Volatility60D   *float64 `json:"volatility_60d"`
	Sharpe20D       *float64 `json:"sharpe_20d"`
	Sharpe1Y        *float64 `json:"sharpe_1y"`
	Sortino1Y       *float64 `json:"sortino_1y"`
	Calmar1Y        *float64 `json:"calmar_1y"`
	MaxDrawdown1Y   *float64 `json:"max_drawdown_1y"`
	AvgRecoveryDays *float64 `json:"avg_recovery_days"`

	// Manager and holdings
	ManagerTenureYears      *float64 `json:"manager_tenure_years"`
	BullAlpha               *float64 `json:"bull_alpha"`
	BearAlpha               *float64 `json:"bear_alpha"`
	StyleConsistency        *float64 `json:"style_consistency"`
	FundSize                *float64 `json:"fund_size"`
	HoldingsAvgROE          *float64 `json:"holdings_avg_roe"`
	HoldingsDiversification *float64 `json:"holdings_diversification"`
	HoldingsTurnover        *float64 `json:"holdings_turnover"`

	// Composite scores, set by the strategy scorers.
	ShortTermScore *float64 `json:"short_term_score"`
	LongTermScore  *float64 `json:"long_term_score"`

	ComputedAt time.Time `json:"computed_at"`
}

// Score returns the composite for the given strategy, or nil.
func (f *FundFactors) Score(s Strategy) *float64 {
	if s == StrategyShortTerm {
		return f.ShortTermScore
	}
	return f.LongTermScore
}

// Merge copies non-nil factors from other into f.
func (f *FundFactors) Merge(other *FundFactors) {
	if other == nil {
		return
	}
	dst := f.fieldMap()
	for name, src := range other.fieldMap() {
		if *src != nil {
			*dst[name] = *src
		}
	}
}

// AsMap exposes the factor fields by column name.
func (f *FundFactors) AsMap() map[string]*float64 {
	out := make(map[string]*float64, 26)
	for name, p := range f.fieldMap() {
		out[name] = *p
	}
	return out
}

func (f *FundFactors) fieldMap() map[string]**float64 {
	return map[string]**float64{
		"return_1w":                &f.Return1W,
		"return_1m":                &f.Return1M,
		"return_3m":                &f.Return3M,
		"return_6m":                &f.Return6M,
		"return_1y":                &f.Return1Y,
		"rank_1w":                  &f.Rank1W,
		"rank_1m":                  &f.Rank1M,
		"rank_3m":                  &f.Rank3M,
		"rank_6m":                  &f.Rank6M,
		"rank_1y":                  &f.Rank1Y,
		"volatility_20d":           &f.Volatility20D,
		"volatility_60d":           &f.Volatility60D,
		"sharpe_20d":               &f.Sharpe20D,
		"sharpe_1y":                &f.Sharpe1Y,
		"sortino_1y":               &f.Sortino1Y,
		"calmar_1y":                &f.Calmar1Y,
		"max_drawdown_1y":          &f.MaxDrawdown1Y,
		"avg_recovery_days":        &f.AvgRecoveryDays,
		"manager_tenure_years":     &f.ManagerTenureYears,
		"bull_alpha":               &f.BullAlpha,
		"bear_alpha":               &f.BearAlpha,
		"style_consistency":        &f.StyleConsistency,
		"fund_size":                &f.FundSize,
		"holdings_avg_roe":         &f.HoldingsAvgROE,
		"holdings_diversification": &f.HoldingsDiversification,
		"holdings_turnover":        &f.HoldingsTurnover,
	}
}
