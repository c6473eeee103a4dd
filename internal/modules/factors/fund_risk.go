package factors

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/pkg/formulas"
)

// Risk windows in trading days.
const (
	riskWindow20D = 20
	riskWindow60D = 60
)

// RiskComputer derives the volatility, drawdown and risk-adjusted
// return factors from NAV history.
type RiskComputer struct {
	data         FundDataSource
	riskFreeRate float64
	log          zerolog.Logger
}

// NewRiskComputer builds a fund risk computer. riskFreeRate is annual,
// as a decimal.
func NewRiskComputer(data FundDataSource, riskFreeRate float64, log zerolog.Logger) *RiskComputer {
	return &RiskComputer{
		data:         data,
		riskFreeRate: riskFreeRate,
		log:          log.With().Str("computer", "fund_risk").Logger(),
	}
}

// Compute fills the risk slice of the fund factor row.
func (c *RiskComputer) Compute(ctx context.Context, code string, date domain.TradeDate) (*domain.FundFactors, error) {
	out := &domain.FundFactors{Code: code, TradeDate: date}

	navs, err := c.data.FundNAVHistory(ctx, code, date.AddCalendarDays(-navLookbackDays))
	if err != nil {
		return out, err
	}
	prices := adjNAVsUpTo(navs, date)
	if len(prices) < 3 {
		return out, nil
	}

	out.Volatility20D = windowVolatility(prices, riskWindow20D)
	out.Volatility60D = windowVolatility(prices, riskWindow60D)

	out.Sharpe20D = c.windowSharpe(prices, riskWindow20D)
	out.Sharpe1Y = c.windowSharpe(prices, window1Y)

	year := tail(prices, window1Y+1)
	yearReturns := formulas.CalculateReturns(year)
	out.Sortino1Y = formulas.CalculateSortinoRatio(yearReturns, c.riskFreeRate, c.riskFreeRate, formulas.TradingDaysPerYear)

	out.MaxDrawdown1Y = formulas.CalculateMaxDrawdown(year)
	out.AvgRecoveryDays = formulas.CalculateAvgRecoveryDays(year)

	if annual := formulas.PeriodReturn(prices, min(window1Y, len(prices)-1)); annual != nil && out.MaxDrawdown1Y != nil {
		out.Calmar1Y = formulas.CalculateCalmarRatio(*annual, *out.MaxDrawdown1Y)
	}
	return out, nil
}

// windowVolatility annualizes the return dispersion over the trailing
// window, in percent.
func windowVolatility(prices []float64, window int) *float64 {
	seg := tail(prices, window+1)
	returns := formulas.CalculateReturns(seg)
	if len(returns) < 2 {
		return nil
	}
	v := 100 * formulas.AnnualizedVolatility(returns)
	return &v
}

func (c *RiskComputer) windowSharpe(prices []float64, window int) *float64 {
	seg := tail(prices, window+1)
	returns := formulas.CalculateReturns(seg)
	return formulas.CalculateSharpeRatio(returns, c.riskFreeRate, formulas.TradingDaysPerYear)
}

func tail(s []float64, n int) []float64 {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
