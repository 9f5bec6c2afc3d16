package spectral

import (
	"math"
)

// Refine performs parabolic (quadratic) interpolation of a spectral peak
// from three neighboring bin values. It returns the sub-bin offset from the
// center bin, clamped to [-0.5, 0.5], and the interpolated peak magnitude.
// Three collinear points have no parabolic vertex; the offset is 0 and the
// center value is returned unchanged.
func Refine(yPrev, y, yNext float64) (delta, refined float64) {
	denom := yPrev - 2*y + yNext
	if math.Abs(denom) < 1e-18 {
		return 0.0, y
	}

	delta = 0.5 * (yPrev - yNext) / denom
	// Clamp to avoid silly values if the spectrum is weird
	if delta > 0.5 {
		delta = 0.5
	} else if delta < -0.5 {
		delta = -0.5
	}

	refined = y - 0.25*(yPrev-yNext)*delta
	return delta, refined
}

// RefineAt refines the peak at index i of a spectrum slice. Bins at either
// edge have no neighbor pair, so the raw bin value is returned with a zero
// offset.
func RefineAt(values []float64, i int) (delta, refined float64) {
	if i <= 0 || i >= len(values)-1 {
		if i >= 0 && i < len(values) {
			return 0.0, values[i]
		}
		return 0.0, 0.0
	}
	return Refine(values[i-1], values[i], values[i+1])
}
