package factors

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/pkg/formulas"
)

// Return windows in trading days.
const (
	window1W = 5
	window1M = 21
	window3M = 63
	window6M = 126
	window1Y = 250
	// navLookbackDays is the calendar span fetched: two years covers the
	// 1-year window plus the rolling histories behind the ranks.
	navLookbackDays = 2 * 365
)

// PerformanceComputer derives the windowed return factors and their
// ranks from NAV history.
type PerformanceComputer struct {
	data FundDataSource
	log  zerolog.Logger
}

// NewPerformanceComputer builds a fund performance computer.
func NewPerformanceComputer(data FundDataSource, log zerolog.Logger) *PerformanceComputer {
	return &PerformanceComputer{
		data: data,
		log:  log.With().Str("computer", "fund_performance").Logger(),
	}
}

// Compute fills the performance slice of the fund factor row.
func (c *PerformanceComputer) Compute(ctx context.Context, code string, date domain.TradeDate) (*domain.FundFactors, error) {
	out := &domain.FundFactors{Code: code, TradeDate: date}

	navs, err := c.data.FundNAVHistory(ctx, code, date.AddCalendarDays(-navLookbackDays))
	if err != nil {
		return out, err
	}
	prices := adjNAVsUpTo(navs, date)
	if len(prices) == 0 {
		return out, nil
	}

	out.Return1W = formulas.PeriodReturn(prices, window1W)
	out.Return1M = formulas.PeriodReturn(prices, window1M)
	out.Return3M = formulas.PeriodReturn(prices, window3M)
	out.Return6M = formulas.PeriodReturn(prices, window6M)
	out.Return1Y = formulas.PeriodReturn(prices, window1Y)

	// Cross-sectional ranks are not reachable from a per-instrument
	// computer; the rank is the percentile of the current windowed
	// return within the fund's own rolling history of the same window.
	out.Rank1W = rollingRank(prices, window1W, out.Return1W)
	out.Rank1M = rollingRank(prices, window1M, out.Return1M)
	out.Rank3M = rollingRank(prices, window3M, out.Return3M)
	out.Rank6M = rollingRank(prices, window6M, out.Return6M)
	out.Rank1Y = rollingRank(prices, window1Y, out.Return1Y)
	return out, nil
}

// adjNAVsUpTo extracts the dividend-adjusted NAV series ending at date.
func adjNAVsUpTo(navs []domain.NAVPoint, date domain.TradeDate) []float64 {
	out := make([]float64, 0, len(navs))
	for _, p := range navs {
		if p.Date.After(date) {
			break
		}
		if p.AdjNAV > 0 {
			out = append(out, p.AdjNAV)
		}
	}
	return out
}

// rollingRank places the current windowed return within the history of
// rolling same-window returns.
func rollingRank(prices []float64, window int, current *float64) *float64 {
	if current == nil {
		return nil
	}
	history := formulas.RollingReturns(prices, window)
	if len(history) < 2 {
		return nil
	}
	return formulas.PercentileRank(history, *current)
}
