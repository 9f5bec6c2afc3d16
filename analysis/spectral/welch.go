package spectral

import (
	"context"
	"fmt"
	"math/cmplx"

	"github.com/scopelab/tracedsp/analysis/common"
	"github.com/scopelab/tracedsp/analysis/windowing"
)

// MinSegment is the smallest record/segment length the segmented
// estimators accept. Fewer samples than this cannot produce a spectrum
// worth thresholding.
const MinSegment = 128

// WelchOptions configures segmented PSD estimation.
type WelchOptions struct {
	Seglen  int           `json:"seglen"`  // Requested segment length, clamped to the record length
	Overlap float64       `json:"overlap"` // Fractional overlap in [0, 1)
	NFFT    int           `json:"nfft"`    // Zero-padded FFT length, raised to the effective segment length
	Window  windowing.Tag `json:"window"`  // Defaults to Hann
}

// PSDResult is a one-sided power spectral density estimate.
type PSDResult struct {
	Frequencies []float64 `json:"frequencies"`
	Power       []float64 `json:"power"` // Density, units^2/Hz
	Df          float64   `json:"df"`
	Nperseg     int       `json:"nperseg"`
	NFFT        int       `json:"nfft"`
	Segments    int       `json:"segments"`  // Segments actually averaged
	Cancelled   bool      `json:"cancelled"` // True when the context expired mid-computation
}

// normalize resolves the effective segmentation for a record of length n.
func (o WelchOptions) normalize(n int) (nperseg, step, nfft int, tag windowing.Tag, err error) {
	nperseg = o.Seglen
	if nperseg <= 0 || nperseg > n {
		nperseg = n
	}
	if nperseg < MinSegment {
		nperseg = MinSegment
	}
	if nperseg > n {
		return 0, 0, 0, "", fmt.Errorf("record of %d samples is shorter than the minimum segment of %d: %w",
			n, MinSegment, common.ErrInsufficientSamples)
	}

	overlap := common.Clamp(o.Overlap, 0, 0.999)
	noverlap := int(overlap * float64(nperseg))
	if noverlap > nperseg-1 {
		noverlap = nperseg - 1
	}
	step = nperseg - noverlap

	nfft = o.NFFT
	if nfft < nperseg {
		nfft = nperseg
	}

	tag = o.Window
	if tag == "" {
		tag = windowing.Hann
	}

	return nperseg, step, nfft, tag, nil
}

// WelchPSD estimates the PSD by averaging windowed periodograms of
// overlapping segments. Power is averaged, not raw FFTs, so segment phases
// cannot cancel. The context is polled between segments; cancellation
// returns the average over the segments processed so far.
func WelchPSD(ctx context.Context, x []float64, fs float64, opts WelchOptions) (*PSDResult, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("welch: %w", common.ErrEmptySignal)
	}
	if fs <= 0 {
		return nil, fmt.Errorf("welch: sample rate %v: %w", fs, common.ErrInvalidArgument)
	}

	nperseg, step, nfft, tag, err := opts.normalize(len(x))
	if err != nil {
		return nil, err
	}

	win, err := windowing.Make(tag, nperseg)
	if err != nil {
		return nil, err
	}

	sig := common.RemoveDC(x)
	bins := nfft/2 + 1
	acc := make([]float64, bins)
	fftCalc := NewFFT()
	buf := make([]float64, nperseg)

	segments := 0
	cancelled := false
	for start := 0; start+nperseg <= len(sig); start += step {
		if ctx != nil && ctx.Err() != nil {
			cancelled = true
			break
		}

		copy(buf, sig[start:start+nperseg])
		if err := win.ApplyInPlace(buf); err != nil {
			return nil, err
		}

		spec := OneSided(fftCalc.ComputePadded(buf, nfft))
		for k, bin := range spec {
			acc[k] += real(bin)*real(bin) + imag(bin)*imag(bin)
		}
		segments++
	}

	// Density scaling: 1/(fs * sum(w^2)), doubled for the one-sided form
	// except at DC and Nyquist.
	scale := common.SafeDiv(1.0, fs*win.SumSquares())
	power := make([]float64, bins)
	if segments > 0 {
		for k := range acc {
			p := acc[k] / float64(segments) * scale
			if k != 0 && !(nfft%2 == 0 && k == bins-1) {
				p *= 2.0
			}
			power[k] = p
		}
	}

	df := fs / float64(nfft)
	freqs := make([]float64, bins)
	for k := range freqs {
		freqs[k] = float64(k) * df
	}

	return &PSDResult{
		Frequencies: freqs,
		Power:       power,
		Df:          df,
		Nperseg:     nperseg,
		NFFT:        nfft,
		Segments:    segments,
		Cancelled:   cancelled,
	}, nil
}

// CrossPSDResult holds jointly segmented auto- and cross-spectra of two
// channels, the raw material for magnitude-squared coherence.
type CrossPSDResult struct {
	Frequencies []float64    `json:"frequencies"`
	Pxx         []float64    `json:"pxx"`
	Pyy         []float64    `json:"pyy"`
	Pxy         []complex128 `json:"-"`
	Df          float64      `json:"df"`
	Nperseg     int          `json:"nperseg"`
	Segments    int          `json:"segments"`
	Cancelled   bool         `json:"cancelled"`
}

// CrossPSD averages per-segment auto and cross spectra of two equal-length
// channels. Scaling cancels in coherence ratios, so the raw averaged powers
// are returned unscaled.
func CrossPSD(ctx context.Context, x, y []float64, fs float64, opts WelchOptions) (*CrossPSDResult, error) {
	if len(x) == 0 || len(y) == 0 {
		return nil, fmt.Errorf("cross-psd: %w", common.ErrEmptySignal)
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("cross-psd: channel lengths %d and %d: %w", len(x), len(y), common.ErrChannelMismatch)
	}
	if fs <= 0 {
		return nil, fmt.Errorf("cross-psd: sample rate %v: %w", fs, common.ErrInvalidArgument)
	}

	nperseg, step, nfft, tag, err := opts.normalize(len(x))
	if err != nil {
		return nil, err
	}

	win, err := windowing.Make(tag, nperseg)
	if err != nil {
		return nil, err
	}

	sigX := common.RemoveDC(x)
	sigY := common.RemoveDC(y)

	bins := nfft/2 + 1
	pxx := make([]float64, bins)
	pyy := make([]float64, bins)
	pxy := make([]complex128, bins)
	fftCalc := NewFFT()
	bufX := make([]float64, nperseg)
	bufY := make([]float64, nperseg)

	segments := 0
	cancelled := false
	for start := 0; start+nperseg <= len(sigX); start += step {
		if ctx != nil && ctx.Err() != nil {
			cancelled = true
			break
		}

		copy(bufX, sigX[start:start+nperseg])
		copy(bufY, sigY[start:start+nperseg])
		if err := win.ApplyInPlace(bufX); err != nil {
			return nil, err
		}
		if err := win.ApplyInPlace(bufY); err != nil {
			return nil, err
		}

		specX := OneSided(fftCalc.ComputePadded(bufX, nfft))
		specY := OneSided(fftCalc.ComputePadded(bufY, nfft))
		for k := range specX {
			pxx[k] += real(specX[k])*real(specX[k]) + imag(specX[k])*imag(specX[k])
			pyy[k] += real(specY[k])*real(specY[k]) + imag(specY[k])*imag(specY[k])
			pxy[k] += specX[k] * cmplx.Conj(specY[k])
		}
		segments++
	}

	if segments > 0 {
		inv := 1.0 / float64(segments)
		for k := range pxx {
			pxx[k] *= inv
			pyy[k] *= inv
			pxy[k] = complex(real(pxy[k])*inv, imag(pxy[k])*inv)
		}
	}

	df := fs / float64(nfft)
	freqs := make([]float64, bins)
	for k := range freqs {
		freqs[k] = float64(k) * df
	}

	return &CrossPSDResult{
		Frequencies: freqs,
		Pxx:         pxx,
		Pyy:         pyy,
		Pxy:         pxy,
		Df:          df,
		Nperseg:     nperseg,
		Segments:    segments,
		Cancelled:   cancelled,
	}, nil
}
