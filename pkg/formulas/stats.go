package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the A-share annualization convention.
const TradingDaysPerYear = 250

// Mean calculates the arithmetic mean of a slice of float64 values.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation.
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Correlation calculates the Pearson correlation coefficient.
func Correlation(x, y []float64) float64 {
	if len(x) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// Beta regresses asset returns on benchmark returns (covariance over
// benchmark variance).
func Beta(asset, bench []float64) *float64 {
	if len(asset) < 2 || len(asset) != len(bench) {
		return nil
	}
	varB := stat.Variance(bench, nil)
	if varB == 0 {
		return nil
	}
	beta := stat.Covariance(asset, bench, nil) / varB
	return &beta
}

// CalculateReturns converts a price series to periodic fractional returns.
// Returns[i] = (Price[i+1] - Price[i]) / Price[i].
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}
	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return returns
}

// AnnualizedVolatility scales the standard deviation of daily returns by
// the square root of the trading year.
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}
	return StdDev(dailyReturns) * math.Sqrt(TradingDaysPerYear)
}

// PercentileRank places value within history: the share of historical
// observations strictly below it, as 0..100. Nil when history is empty.
func PercentileRank(history []float64, value float64) *float64 {
	if len(history) == 0 {
		return nil
	}
	below := 0
	for _, h := range history {
		if h < value {
			below++
		}
	}
	rank := 100 * float64(below) / float64(len(history))
	return &rank
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round2 rounds to two decimal places, the precision of stored scores.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
