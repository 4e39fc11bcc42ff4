// Package interval provides prediction interval math utilities.
package interval

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ConfidenceLevel is the central prediction interval served to callers.
const ConfidenceLevel = 0.80

// WidthGrowth controls how fast interval half-widths grow per day of
// forecast horizon, modeling compounding uncertainty.
const WidthGrowth = 0.15

var zScore = distuv.Normal{Mu: 0, Sigma: 1}.Quantile(0.5 + ConfidenceLevel/2)

// HalfWidth returns the interval half-width for a residual standard
// deviation at daysOut days from the forecast start. Monotonically
// non-decreasing in daysOut.
func HalfWidth(sigma float64, daysOut int) float64 {
	if sigma < 0 {
		sigma = 0
	}
	return sigma * zScore * math.Sqrt(1+WidthGrowth*float64(daysOut))
}

// Bounds places a half-width around a central estimate. Demand cannot
// be negative, so the lower bound is clamped at zero.
func Bounds(center, halfWidth float64) (lower, upper float64) {
	lower = center - halfWidth
	if lower < 0 {
		lower = 0
	}
	upper = center + halfWidth
	if upper < center {
		upper = center
	}
	return lower, upper
}

// EnsureWidening walks paired bounds in horizon order and expands any
// interval narrower than its predecessor. Clamping lower bounds at
// zero can otherwise shrink widths on low-demand days.
func EnsureWidening(lowers, uppers []float64) {
	if len(lowers) != len(uppers) {
		return
	}
	prev := 0.0
	for i := range lowers {
		width := uppers[i] - lowers[i]
		if width < prev {
			uppers[i] = lowers[i] + prev
		} else {
			prev = width
		}
	}
}

// ClampNonNegative returns x floored at zero.
func ClampNonNegative(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}
