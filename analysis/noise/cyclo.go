package noise

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/scopelab/tracedsp/analysis/common"
	"github.com/scopelab/tracedsp/analysis/spectral"
	"github.com/scopelab/tracedsp/analysis/windowing"
)

// CycloOptions configures the spectral-correlation estimator.
type CycloOptions struct {
	NFFT         int     `json:"nfft"`
	Hop          int     `json:"hop"`
	AlphaMaxHz   float64 `json:"alpha_max_hz"` // Largest cyclic frequency mapped
	DbFloor      float64 `json:"db_floor"`     // Display floor in dB
	Normalize    bool    `json:"normalize"`    // Coherence-like normalization to [0, 1]
	AutoLevel    bool    `json:"auto_level"`   // Percentile-based display limits
	VClipDb      float64 `json:"vclip_db"`     // Display window width around the median
	PercentileHi float64 `json:"percentile_hi"`
}

// DefaultCycloOptions returns the display-ready configuration: normalized
// coherence magnitudes and percentile autoscaled color limits.
func DefaultCycloOptions() CycloOptions {
	opts := CycloOptions{Normalize: true, AutoLevel: true}
	opts.applyDefaults()
	return opts
}

func (o *CycloOptions) applyDefaults() {
	if o.NFFT < 256 {
		o.NFFT = 4096
	}
	if o.Hop <= 0 {
		o.Hop = o.NFFT / 2
	}
	if o.Hop < 64 {
		o.Hop = 64
	}
	if o.Hop > o.NFFT {
		o.Hop = o.NFFT
	}
	if o.AlphaMaxHz <= 0 {
		o.AlphaMaxHz = 5000.0
	}
	if o.DbFloor == 0 {
		o.DbFloor = -40.0
	}
	if o.VClipDb <= 0 {
		o.VClipDb = 12.0
	}
	if o.PercentileHi <= 0 {
		o.PercentileHi = 0.98
	}
}

// Cyclostationary builds a bin-aligned spectral correlation map over cyclic
// frequencies alpha = 2*m*df: for each m the frame spectra are combined as
// mean(X[f+m] * conj(X[f-m])) and, when normalized, divided by the
// geometric mean of the two bins' average power so the magnitude lands in
// [0, 1] like a coherence. The alpha=0 row is trivially ~1 and would
// dominate any color scale, so it is forced to the display floor.
func Cyclostationary(ctx context.Context, x []float64, fs float64, opts CycloOptions) (*Result, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("cyclo: %w", common.ErrEmptySignal)
	}
	if fs <= 0 {
		return nil, fmt.Errorf("cyclo: sample rate %v: %w", fs, common.ErrInvalidArgument)
	}
	if len(x) < spectral.MinSegment {
		return nil, fmt.Errorf("cyclo: record of %d samples is shorter than the minimum segment of %d: %w",
			len(x), spectral.MinSegment, common.ErrInsufficientSamples)
	}
	opts.applyDefaults()

	sig := common.RemoveDC(x)
	stft, err := spectral.STFT(ctx, sig, fs, opts.NFFT, opts.Hop, windowing.Hann, true)
	if err != nil {
		return nil, err
	}

	frames := stft.Complex
	k := len(frames)
	df := fs / float64(opts.NFFT)

	result := &Result{
		Method: "Cyclostationary",
		DfHz:   df,
		Params: map[string]any{
			"fs":        fs,
			"nfft":      opts.NFFT,
			"hop":       opts.Hop,
			"alpha_max": opts.AlphaMaxHz,
			"db_floor":  opts.DbFloor,
			"normalize": opts.Normalize,
			"frames":    k,
		},
		Detections: []Detection{},
	}

	if stft.Cancelled || k == 0 {
		result.Cancelled = true
		return result, nil
	}

	m := stft.FreqBins

	// Average power per bin for coherence normalization
	px := make([]float64, m)
	for _, frame := range frames {
		for f := 0; f < m; f++ {
			px[f] += real(frame[f])*real(frame[f]) + imag(frame[f])*imag(frame[f])
		}
	}
	for f := range px {
		px[f] = px[f]/float64(k) + common.EpsPower
	}

	mMax := int(math.Floor(opts.AlphaMaxHz / (2.0 * df)))
	if mMax < 0 {
		mMax = 0
	}
	if 2*mMax >= m {
		mMax = (m - 1) / 2
	}

	rows := make([][]float64, 0, mMax+1)
	cancelled := false
	for shift := 0; shift <= mMax; shift++ {
		if ctxDone(ctx) {
			cancelled = true
			break
		}

		row := make([]float64, m)
		// Correlate bins f+shift and f-shift across frames; row positions
		// outside [shift, m-shift) stay zero.
		for pos := shift; pos < m-shift; pos++ {
			var acc complex128
			for _, frame := range frames {
				acc += frame[pos+shift] * cmplx.Conj(frame[pos-shift])
			}
			acc /= complex(float64(k), 0)

			mag := cmplx.Abs(acc)
			if opts.Normalize {
				mag = common.SafeDiv(mag, math.Sqrt(px[pos+shift]*px[pos-shift]))
			}
			row[pos] = mag
		}
		rows = append(rows, row)
	}

	// Magnitude to dB, floored for display; the alpha=0 row is pushed to
	// the floor outright.
	image := make([][]float64, len(rows))
	for i, row := range rows {
		dbRow := make([]float64, m)
		for f := range row {
			db := 20.0 * math.Log10(row[f]+1e-12)
			if db < opts.DbFloor {
				db = opts.DbFloor
			}
			dbRow[f] = db
		}
		if i == 0 {
			for f := range dbRow {
				dbRow[f] = opts.DbFloor
			}
		}
		image[i] = dbRow
	}

	alphaMax := 2.0 * df * float64(len(rows)-1)
	vmin, vmax := opts.DbFloor, 0.0
	if opts.AutoLevel && len(image) > 1 {
		body := flatten(image[1:])
		median := common.Percentile(body, 0.5)
		pHi := common.Percentile(body, opts.PercentileHi)
		vmin = median - opts.VClipDb/2.0
		vmax = math.Max(pHi, median+opts.VClipDb/2.0)
	}

	result.Image = &Image{
		Data:   image,
		Extent: [4]float64{0, float64(m-1) * df, 0, alphaMax},
		VMin:   vmin,
		VMax:   vmax,
		XLabel: "Frequency (Hz)",
		YLabel: "Cyclic freq alpha (Hz)",
	}
	result.Cancelled = cancelled

	return result, nil
}
