package spectral

import (
	"github.com/mjibson/go-dsp/fft"
)

// FFT provides forward and inverse transforms for the analysis pipelines,
// backed by mjibson/go-dsp.
type FFT struct {
	// No state needed for now
}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the FFT of a real signal.
// go-dsp handles all sizes efficiently, including non-power-of-2.
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.FFTReal(x)
}

// ComputePadded zero-pads the signal to nfft before transforming. When the
// signal is longer than nfft, the tail is transformed as-is.
func (f *FFT) ComputePadded(x []float64, nfft int) []complex128 {
	if nfft <= len(x) {
		return f.Compute(x)
	}

	padded := make([]float64, nfft)
	copy(padded, x)
	return fft.FFTReal(padded)
}

// ComputeInverse computes the inverse FFT
func (f *FFT) ComputeInverse(x []complex128) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.IFFT(x)
}

// ComputeInverseReal computes the inverse FFT and returns the real part only
func (f *FFT) ComputeInverseReal(x []complex128) []float64 {
	if len(x) == 0 {
		return []float64{}
	}

	result := fft.IFFT(x)
	realResult := make([]float64, len(result))
	for i, val := range result {
		realResult[i] = real(val)
	}
	return realResult
}

// OneSided extracts the non-negative frequency half of a full spectrum,
// including DC and Nyquist.
func OneSided(full []complex128) []complex128 {
	if len(full) == 0 {
		return []complex128{}
	}
	bins := len(full)/2 + 1
	if bins > len(full) {
		bins = len(full)
	}
	out := make([]complex128, bins)
	copy(out, full[:bins])
	return out
}
