package formulas

import "math"

// CalculateSharpeRatio computes the annualized Sharpe ratio from periodic
// returns.
//
//	Sharpe = (mean return - periodic risk-free rate) / stddev of returns
//	annualized by sqrt(periodsPerYear)
//
// riskFreeRate is annual, as a decimal. Nil on insufficient data or zero
// dispersion.
func CalculateSharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int) *float64 {
	if len(returns) < 2 {
		return nil
	}
	stdDev := StdDev(returns)
	if stdDev == 0 {
		return nil
	}
	periodicRiskFree := riskFreeRate / float64(periodsPerYear)
	sharpe := (Mean(returns) - periodicRiskFree) / stdDev * math.Sqrt(float64(periodsPerYear))
	return &sharpe
}

// CalculateSortinoRatio computes the annualized Sortino ratio, penalizing
// only returns below the minimum acceptable return (annual, decimal).
func CalculateSortinoRatio(returns []float64, riskFreeRate, targetReturn float64, periodsPerYear int) *float64 {
	if len(returns) < 2 {
		return nil
	}
	periodicMAR := targetReturn / float64(periodsPerYear)

	var downsideSquaredSum float64
	downsideCount := 0
	for _, ret := range returns {
		if ret < periodicMAR {
			d := ret - periodicMAR
			downsideSquaredSum += d * d
			downsideCount++
		}
	}
	if downsideCount == 0 {
		return nil
	}
	downsideDeviation := math.Sqrt(downsideSquaredSum / float64(downsideCount))
	if downsideDeviation == 0 {
		return nil
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)
	sortino := (Mean(returns) - periodicRiskFree) / downsideDeviation * math.Sqrt(float64(periodsPerYear))
	return &sortino
}

// CalculateCalmarRatio divides the annualized return (percent) by the
// maximum drawdown (positive percent) over the same window.
func CalculateCalmarRatio(annualReturnPct float64, maxDrawdownPct float64) *float64 {
	if maxDrawdownPct <= 0 {
		return nil
	}
	calmar := annualReturnPct / maxDrawdownPct
	return &calmar
}
