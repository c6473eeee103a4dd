package formulas

import "math"

// PeriodReturn is the percentage change over the trailing window of n
// periods: 100 * (last / prices[len-1-n] - 1). Nil when the series is
// too short.
func PeriodReturn(prices []float64, n int) *float64 {
	if n <= 0 || len(prices) < n+1 {
		return nil
	}
	start := prices[len(prices)-1-n]
	end := prices[len(prices)-1]
	if start == 0 {
		return nil
	}
	r := 100 * (end - start) / start
	return &r
}

// CAGR is the compound annual growth rate between two values over the
// given number of years, in percent. Defined only for positive values.
func CAGR(first, last float64, years float64) *float64 {
	if first <= 0 || last <= 0 || years <= 0 {
		return nil
	}
	g := 100 * (math.Pow(last/first, 1/years) - 1)
	return &g
}

// RollingReturns produces the history of n-period percentage returns
// ending at every index that has a full window. Used to rank the latest
// return against the instrument's own history.
func RollingReturns(prices []float64, n int) []float64 {
	if n <= 0 || len(prices) < n+1 {
		return nil
	}
	out := make([]float64, 0, len(prices)-n)
	for i := n; i < len(prices); i++ {
		start := prices[i-n]
		if start == 0 {
			continue
		}
		out = append(out, 100*(prices[i]-start)/start)
	}
	return out
}
