package ir

import "math"

// Tolerance is the maximum difference at which two weights compare equal.
const Tolerance = 0.001

// Round3 rounds a weight to 3 decimal places, half away from zero.
func Round3(v float64) float64 {
	r := math.Round(v*1000) / 1000
	if r == 0 {
		return 0 // normalize -0
	}
	return r
}

// ApproxEqual reports whether a and b are the same weight at 3-decimal
// resolution. Values one rounding step apart are not equal.
func ApproxEqual(a, b float64) bool {
	return math.Abs(a-b) <= Tolerance/2
}

// Finite reports whether v is neither NaN nor an infinity.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
