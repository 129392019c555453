package stats

import "math"

// Fallback rules used across the engine:
//   - a zero, NaN or Inf denominator yields the caller's fallback
//   - a non-finite result yields the caller's fallback
//   - a z-score with zero or undefined spread is 0

// Finite reports whether v is neither NaN nor Inf.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// OrZero maps NaN/Inf to 0.
func OrZero(v float64) float64 {
	if !Finite(v) {
		return 0
	}
	return v
}

// SafeDiv returns num/den or fallback.
func SafeDiv(num, den, fallback float64) float64 {
	if den == 0 || !Finite(den) || !Finite(num) {
		return fallback
	}
	q := num / den
	if !Finite(q) {
		return fallback
	}
	return q
}

// SafeZScore returns (v-mean)/std, or 0 when any input is undefined or std is 0.
func SafeZScore(v, mean, std float64) float64 {
	if !Finite(mean) {
		return 0
	}
	return SafeDiv(v-mean, std, 0)
}

// ZScores applies SafeZScore elementwise.
func ZScores(values, means, stds []float64) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		out[i] = SafeZScore(values[i], means[i], stds[i])
	}
	return out
}
