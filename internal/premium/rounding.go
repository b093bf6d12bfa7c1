package premium

import "math"

// Round2 rounds a monetary value to two decimal places, half away from
// zero. Every stage applies it exactly once per arithmetic operation that
// produces a new monetary value; intermediate sums are never accumulated
// unrounded and rounded at the end. Moving the rounding point changes
// compounding results by cents, so callers must not re-round.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
