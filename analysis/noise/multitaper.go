package noise

import (
	"context"

	"github.com/scopelab/tracedsp/analysis/common"
	"github.com/scopelab/tracedsp/analysis/spectral"
)

// MultitaperOptions configures the multitaper line detector.
type MultitaperOptions struct {
	Tapers     int     `json:"k_tapers"`
	NFFT       int     `json:"nfft"`
	Seglen     int     `json:"seglen"`
	Overlap    float64 `json:"overlap"`
	Pfa        float64 `json:"pfa"`
	SmoothBins int     `json:"smooth_bins"`
}

func (o *MultitaperOptions) applyDefaults() {
	if o.Tapers <= 0 {
		o.Tapers = 6
	}
	if o.NFFT <= 0 {
		o.NFFT = 4096
	}
	if o.Seglen <= 0 {
		o.Seglen = 4096
	}
	if o.Overlap == 0 {
		o.Overlap = 0.5
	}
	if o.Pfa == 0 {
		o.Pfa = 1e-3
	}
	if o.SmoothBins <= 0 {
		o.SmoothBins = 31
	}
}

// Multitaper runs the same CFAR logic as PSDCFAR on a lower-variance
// multitaper PSD, which keeps faint or closely spaced tones above the
// residual floor.
func Multitaper(ctx context.Context, x []float64, fs float64, opts MultitaperOptions) (*Result, error) {
	opts.applyDefaults()

	psd, err := spectral.MultitaperPSD(ctx, x, fs, spectral.MultitaperOptions{
		Tapers:  opts.Tapers,
		Seglen:  opts.Seglen,
		Overlap: opts.Overlap,
		NFFT:    opts.NFFT,
	})
	if err != nil {
		return nil, err
	}

	curve := make([]float64, len(psd.Power))
	for i, p := range psd.Power {
		curve[i] = common.SafeLog10(p)
	}

	result := &Result{
		Method: "Multitaper",
		PlotX:  psd.Frequencies,
		PlotY:  curve,
		DfHz:   psd.Df,
		Params: map[string]any{
			"fs":          fs,
			"k_tapers":    opts.Tapers,
			"nfft":        psd.NFFT,
			"seglen":      psd.Nperseg,
			"overlap":     opts.Overlap,
			"pfa":         common.Clamp(opts.Pfa, 1e-6, 0.2),
			"smooth_bins": opts.SmoothBins,
		},
		Detections: []Detection{},
	}

	if psd.Cancelled || ctxDone(ctx) {
		result.Cancelled = true
		return result, nil
	}

	baseline := robustBaseline(curve, opts.SmoothBins)
	residual := make([]float64, len(curve))
	for i := range curve {
		residual[i] = curve[i] - baseline[i]
	}

	offset := cfarOffset(residual, opts.Pfa)
	mask := make([]bool, len(curve))
	for i := range curve {
		mask[i] = curve[i] > baseline[i]+offset
	}

	result.Detections = detectLines(psd.Frequencies, curve, baseline, residual, mask, psd.Df, "line")
	return result, nil
}
