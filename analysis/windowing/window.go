package windowing

import (
	"fmt"
	"math"

	"github.com/scopelab/tracedsp/analysis/common"
)

// Tag identifies a window function
type Tag string

const (
	Rect    Tag = "rect"
	Hann    Tag = "hann"
	Flattop Tag = "flattop"
)

// 5-term flat-top (Harris) coefficients, amplitude-accurate for
// measurement FFTs
const (
	flattopA0 = 1.0
	flattopA1 = 1.933
	flattopA2 = 1.286
	flattopA3 = 0.388
	flattopA4 = 0.032
)

// Window holds the generated coefficients of a window function together
// with its amplitude-correction metadata. CoherentGain is the mean of the
// coefficients; any magnitude read from a windowed FFT must be divided by
// it to recover the physical amplitude. ENBWBins is the nominal equivalent
// noise bandwidth in bins.
type Window struct {
	tag          Tag
	size         int
	coefficients []float64
	coherentGain float64
	enbwBins     float64
}

// Make constructs the window for the given tag and length. Unknown tags
// and non-positive lengths are invalid arguments.
func Make(tag Tag, size int) (*Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d: %w", size, common.ErrInvalidArgument)
	}

	w := &Window{tag: tag, size: size}

	switch tag {
	case Rect:
		w.coefficients = make([]float64, size)
		for i := range w.coefficients {
			w.coefficients[i] = 1.0
		}
		w.coherentGain = 1.0
		w.enbwBins = 1.0

	case Hann:
		w.coefficients = generateHann(size)
		w.coherentGain = common.Mean(w.coefficients)
		w.enbwBins = 1.5

	case Flattop:
		w.coefficients = generateFlattop(size)
		w.coherentGain = common.Mean(w.coefficients)
		w.enbwBins = 3.77

	default:
		return nil, fmt.Errorf("unknown window %q: %w", tag, common.ErrInvalidArgument)
	}

	return w, nil
}

// generateHann creates symmetric raised-cosine coefficients (numpy.hanning
// convention, N-1 denominator)
func generateHann(size int) []float64 {
	coeffs := make([]float64, size)
	if size == 1 {
		coeffs[0] = 1.0
		return coeffs
	}
	denom := float64(size - 1)
	for i := range coeffs {
		coeffs[i] = 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/denom))
	}
	return coeffs
}

// generateFlattop creates the 5-term Harris flat-top coefficients
func generateFlattop(size int) []float64 {
	coeffs := make([]float64, size)
	if size == 1 {
		coeffs[0] = 1.0
		return coeffs
	}
	denom := float64(size - 1)
	for i := range coeffs {
		n := float64(i)
		coeffs[i] = flattopA0 -
			flattopA1*math.Cos(2*math.Pi*n/denom) +
			flattopA2*math.Cos(4*math.Pi*n/denom) -
			flattopA3*math.Cos(6*math.Pi*n/denom) +
			flattopA4*math.Cos(8*math.Pi*n/denom)
	}
	return coeffs
}

// Apply multiplies the signal by the window into a new slice. Returns nil
// when the lengths disagree.
func (w *Window) Apply(signal []float64) []float64 {
	if len(signal) != w.size {
		return nil
	}

	windowed := make([]float64, w.size)
	for i := range signal {
		windowed[i] = signal[i] * w.coefficients[i]
	}
	return windowed
}

// ApplyInPlace multiplies the signal by the window in-place
func (w *Window) ApplyInPlace(signal []float64) error {
	if len(signal) != w.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), w.size)
	}

	for i := range signal {
		signal[i] *= w.coefficients[i]
	}
	return nil
}

// Coefficients returns a copy of the window coefficients
func (w *Window) Coefficients() []float64 {
	coeffs := make([]float64, len(w.coefficients))
	copy(coeffs, w.coefficients)
	return coeffs
}

// CoherentGain returns the mean of the coefficients
func (w *Window) CoherentGain() float64 {
	return w.coherentGain
}

// ENBWBins returns the equivalent noise bandwidth in bins
func (w *Window) ENBWBins() float64 {
	return w.enbwBins
}

// SumSquares returns the sum of squared coefficients, used for PSD density
// scaling.
func (w *Window) SumSquares() float64 {
	sum := 0.0
	for _, c := range w.coefficients {
		sum += c * c
	}
	return sum
}

// Size returns the window length
func (w *Window) Size() int {
	return w.size
}

// Tag returns the window tag
func (w *Window) Tag() Tag {
	return w.tag
}
