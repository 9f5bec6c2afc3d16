package noise

import (
	"context"
	"fmt"
	"math/cmplx"

	"github.com/scopelab/tracedsp/analysis/common"
	"github.com/scopelab/tracedsp/analysis/spectral"
	"github.com/scopelab/tracedsp/analysis/windowing"
)

// BicoherenceAccumulator collects third-order statistics over the
// principal triangle f1 >= 0, f2 >= 0, f1+f2 <= fs/2. It is an explicit
// value type: Update folds in one sample block, Finalize produces the
// normalized result, and the accumulator itself holds no hidden global
// state, so interleaved analyses cannot contaminate each other.
type BicoherenceAccumulator struct {
	nfft     int
	noverlap int
	window   []float64 // RMS-normalized to avoid amplitude bias across segment counts
	demean   bool

	s1     [][]complex128 // sum X(f1) X(f2) conj(X(f1+f2))
	s2     [][]float64    // sum |X(f1) X(f2)|^2
	s3     []float64      // sum |X(f)|^2 for f = f1+f2
	frames int
	fs     float64
}

// BicoherenceResult holds the averaged bispectrum and the normalized
// bicoherence, both masked to the principal triangle.
type BicoherenceResult struct {
	Frequencies []float64      `json:"frequencies"`
	Bispectrum  [][]complex128 `json:"-"`
	Bicoherence [][]float64    `json:"bicoherence"` // Values in [0, 1]
	Frames      int            `json:"frames"`
}

// NewBicoherenceAccumulator creates an accumulator for nfft-point frames
// with the given overlap. The analysis window is Hann, RMS-normalized.
func NewBicoherenceAccumulator(nfft, noverlap int) (*BicoherenceAccumulator, error) {
	if nfft <= 0 {
		return nil, fmt.Errorf("bicoherence: nfft %d: %w", nfft, common.ErrInvalidArgument)
	}
	if noverlap < 0 || noverlap >= nfft {
		return nil, fmt.Errorf("bicoherence: noverlap %d for nfft %d: %w", noverlap, nfft, common.ErrInvalidArgument)
	}

	win, err := windowing.Make(windowing.Hann, nfft)
	if err != nil {
		return nil, err
	}
	coeffs := win.Coefficients()
	rms := common.RMS(coeffs)
	for i := range coeffs {
		coeffs[i] = common.SafeDiv(coeffs[i], rms)
	}

	m := nfft/2 + 1
	s1 := make([][]complex128, m)
	s2 := make([][]float64, m)
	for i := range s1 {
		s1[i] = make([]complex128, m)
		s2[i] = make([]float64, m)
	}

	return &BicoherenceAccumulator{
		nfft:     nfft,
		noverlap: noverlap,
		window:   coeffs,
		demean:   true,
		s1:       s1,
		s2:       s2,
		s3:       make([]float64, m),
	}, nil
}

// Update folds one time-series block into the running sums. Blocks shorter
// than one frame contribute nothing. The context is polled per f1 row;
// cancellation leaves already-accumulated statistics intact and returns
// without error.
func (acc *BicoherenceAccumulator) Update(ctx context.Context, x []float64, fs float64) error {
	if len(x) == 0 {
		return fmt.Errorf("bicoherence: %w", common.ErrEmptySignal)
	}
	if fs <= 0 {
		return fmt.Errorf("bicoherence: sample rate %v: %w", fs, common.ErrInvalidArgument)
	}
	acc.fs = fs

	sig := x
	if acc.demean {
		sig = common.RemoveDC(x)
	}

	step := acc.nfft - acc.noverlap
	if len(sig) < acc.nfft {
		return nil
	}

	m := acc.nfft/2 + 1
	fftCalc := spectral.NewFFT()
	buf := make([]float64, acc.nfft)

	for start := 0; start+acc.nfft <= len(sig); start += step {
		for i := range buf {
			buf[i] = sig[start+i] * acc.window[i]
		}
		frame := spectral.OneSided(fftCalc.Compute(buf))

		for f := 0; f < m; f++ {
			p := real(frame[f])*real(frame[f]) + imag(frame[f])*imag(frame[f])
			acc.s3[f] += p
		}

		for i := 0; i < m; i++ {
			if ctxDone(ctx) {
				return nil
			}
			xi := frame[i]
			maxJ := m - i
			for j := 0; j < maxJ; j++ {
				prod := xi * frame[j]
				acc.s1[i][j] += prod * cmplx.Conj(frame[i+j])
				mag := cmplx.Abs(prod)
				acc.s2[i][j] += mag * mag
			}
		}
		acc.frames++
	}

	return nil
}

// Finalize computes the averaged bispectrum and the bicoherence
//
//	b2(f1,f2) = |S1|^2 / (S2 * S3[f1+f2])
//
// clipped to [0, 1] and zeroed outside the principal triangle.
func (acc *BicoherenceAccumulator) Finalize() *BicoherenceResult {
	m := acc.nfft/2 + 1

	freqs := make([]float64, m)
	if acc.fs > 0 {
		df := acc.fs / float64(acc.nfft)
		for i := range freqs {
			freqs[i] = float64(i) * df
		}
	}

	bispec := make([][]complex128, m)
	b2 := make([][]float64, m)
	for i := range bispec {
		bispec[i] = make([]complex128, m)
		b2[i] = make([]float64, m)
	}

	if acc.frames == 0 {
		return &BicoherenceResult{Frequencies: freqs, Bispectrum: bispec, Bicoherence: b2}
	}

	invK := 1.0 / float64(acc.frames)
	for i := 0; i < m; i++ {
		maxJ := m - i
		for j := 0; j < maxJ; j++ {
			bispec[i][j] = acc.s1[i][j] * complex(invK, 0)

			num := cmplx.Abs(acc.s1[i][j])
			denom := acc.s2[i][j] * acc.s3[i+j]
			if denom > 0 {
				b2[i][j] = common.Clamp(num*num/denom, 0.0, 1.0)
			}
		}
	}

	return &BicoherenceResult{
		Frequencies: freqs,
		Bispectrum:  bispec,
		Bicoherence: b2,
		Frames:      acc.frames,
	}
}

// BicoherenceOptions configures the single-shot bicoherence detector.
type BicoherenceOptions struct {
	NFFT     int `json:"nfft"`
	NOverlap int `json:"noverlap"`
}

func (o *BicoherenceOptions) applyDefaults() {
	if o.NFFT <= 0 {
		o.NFFT = 512
	}
	if o.NOverlap <= 0 || o.NOverlap >= o.NFFT {
		o.NOverlap = o.NFFT / 2
	}
}

// Bicoherence runs the accumulator over a single record and wraps the
// triangle image in the shared detector result model. Quadratic phase
// coupling between frequency pairs shows as bicoherence near 1 at
// (f1, f2).
func Bicoherence(ctx context.Context, x []float64, fs float64, opts BicoherenceOptions) (*Result, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("bicoherence: %w", common.ErrEmptySignal)
	}
	if fs <= 0 {
		return nil, fmt.Errorf("bicoherence: sample rate %v: %w", fs, common.ErrInvalidArgument)
	}
	opts.applyDefaults()

	if len(x) < opts.NFFT {
		return nil, fmt.Errorf("bicoherence: %d samples for nfft %d: %w",
			len(x), opts.NFFT, common.ErrInsufficientSamples)
	}

	acc, err := NewBicoherenceAccumulator(opts.NFFT, opts.NOverlap)
	if err != nil {
		return nil, err
	}
	if err := acc.Update(ctx, x, fs); err != nil {
		return nil, err
	}
	bico := acc.Finalize()

	fMax := 0.0
	if len(bico.Frequencies) > 0 {
		fMax = bico.Frequencies[len(bico.Frequencies)-1]
	}

	result := &Result{
		Method: "Bicoherence",
		Image: &Image{
			Data:   bico.Bicoherence,
			Extent: [4]float64{0, fMax, 0, fMax},
			VMin:   0,
			VMax:   1,
			XLabel: "f1 (Hz)",
			YLabel: "f2 (Hz)",
		},
		DfHz: fs / float64(opts.NFFT),
		Params: map[string]any{
			"fs":       fs,
			"nfft":     opts.NFFT,
			"noverlap": opts.NOverlap,
			"frames":   bico.Frames,
		},
		Detections: []Detection{},
		Cancelled:  ctxDone(ctx),
	}

	return result, nil
}
