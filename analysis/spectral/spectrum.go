package spectral

import (
	"fmt"
	"math/cmplx"

	"github.com/scopelab/tracedsp/analysis/common"
	"github.com/scopelab/tracedsp/analysis/windowing"
)

// SpectrumResult holds a one-sided spectrum of a single windowed block.
type SpectrumResult struct {
	Frequencies []float64    `json:"frequencies"` // Bin centers in Hz, ascending
	Magnitudes  []float64    `json:"magnitudes"`  // Raw |X[k]| of the windowed block
	Complex     []complex128 `json:"-"`           // One-sided complex bins
	Df          float64      `json:"df"`          // Bin spacing in Hz (fs/N)
	N           int          `json:"n"`           // Time-domain block length
	Window      *windowing.Window
}

// Compute windows the block and returns its one-sided magnitude spectrum.
// The signal slice is never mutated; DC removal and windowing operate on a
// copy. Magnitudes are the raw FFT values: dividing by N*CG/sqrt(2) etc. is
// the caller's concern because each consumer scales differently.
func Compute(x []float64, fs float64, tag windowing.Tag, removeDC bool) (*SpectrumResult, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("spectral: %w", common.ErrEmptySignal)
	}
	if fs <= 0 {
		return nil, fmt.Errorf("spectral: sample rate %v: %w", fs, common.ErrInvalidArgument)
	}

	win, err := windowing.Make(tag, len(x))
	if err != nil {
		return nil, err
	}

	var block []float64
	if removeDC {
		block = common.RemoveDC(x)
		if err := win.ApplyInPlace(block); err != nil {
			return nil, err
		}
	} else {
		block = win.Apply(x)
	}

	full := NewFFT().Compute(block)
	oneSided := OneSided(full)

	n := len(x)
	df := fs / float64(n)
	freqs := make([]float64, len(oneSided))
	mags := make([]float64, len(oneSided))
	for k, bin := range oneSided {
		freqs[k] = float64(k) * df
		mags[k] = cmplx.Abs(bin)
	}

	return &SpectrumResult{
		Frequencies: freqs,
		Magnitudes:  mags,
		Complex:     oneSided,
		Df:          df,
		N:           n,
		Window:      win,
	}, nil
}
