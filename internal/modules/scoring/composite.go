// Package scoring turns factor rows into the two composite strategy
// scores. Scorers are pure functions of the row: the daily pipeline and
// the single-instrument analyze path call the exact same code, so their
// results always agree.
package scoring

import "github.com/argusquant/argus/pkg/formulas"

// part is one weighted sub-score. A nil value means the sub-score had no
// usable inputs and its weight is excluded from the denominator.
type part struct {
	name   string
	weight float64
	value  *float64
}

// composite folds weighted parts into a clamped, 2-decimal score.
// Returns nil when every part is missing. The components map records the
// clamped sub-scores that participated.
func composite(parts []part) (*float64, map[string]float64) {
	var sum, weight float64
	components := make(map[string]float64, len(parts))
	for _, p := range parts {
		if p.value == nil {
			continue
		}
		v := formulas.Clamp(*p.value, 0, 100)
		components[p.name] = formulas.Round2(v)
		sum += v * p.weight
		weight += p.weight
	}
	if weight == 0 {
		return nil, nil
	}
	score := formulas.Round2(formulas.Clamp(sum/weight, 0, 100))
	return &score, components
}

func ptr(v float64) *float64 { return &v }

// scale maps v onto a piecewise-linear curve through the given (input,
// score) anchor points, clamping outside the first and last anchors.
// Anchors must be ordered by ascending input.
func scale(v float64, anchors ...[2]float64) float64 {
	if len(anchors) == 0 {
		return Neutral
	}
	if v <= anchors[0][0] {
		return anchors[0][1]
	}
	last := anchors[len(anchors)-1]
	if v >= last[0] {
		return last[1]
	}
	for i := 1; i < len(anchors); i++ {
		lo, hi := anchors[i-1], anchors[i]
		if v <= hi[0] {
			t := (v - lo[0]) / (hi[0] - lo[0])
			return lo[1] + t*(hi[1]-lo[1])
		}
	}
	return last[1]
}
