package formulas

// CalculateMaxDrawdown finds the deepest peak-to-trough loss in a price
// series, as a positive percentage (25 means a 25% fall from the peak).
// Nil with fewer than two points.
func CalculateMaxDrawdown(prices []float64) *float64 {
	if len(prices) < 2 {
		return nil
	}
	maxDrawdown := 0.0
	peak := prices[0]
	for _, price := range prices {
		if price > peak {
			peak = price
		}
		if peak > 0 {
			dd := 100 * (peak - price) / peak
			if dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}
	return &maxDrawdown
}

// CalculateAvgRecoveryDays measures how quickly the series heals: the
// mean number of periods from entering a drawdown to regaining the prior
// peak, over completed drawdowns only. An open drawdown at the end of the
// series is ignored. Nil when no drawdown completed.
func CalculateAvgRecoveryDays(prices []float64) *float64 {
	if len(prices) < 2 {
		return nil
	}

	peak := prices[0]
	inDrawdown := false
	start := 0
	var lengths []int

	for i := 1; i < len(prices); i++ {
		p := prices[i]
		if !inDrawdown {
			if p < peak {
				inDrawdown = true
				start = i
			} else {
				peak = p
			}
			continue
		}
		if p >= peak {
			lengths = append(lengths, i-start+1)
			inDrawdown = false
			peak = p
		}
	}
	if len(lengths) == 0 {
		return nil
	}

	sum := 0
	for _, l := range lengths {
		sum += l
	}
	avg := float64(sum) / float64(len(lengths))
	return &avg
}
