package noise

import (
	"context"

	"github.com/scopelab/tracedsp/analysis/common"
	"github.com/scopelab/tracedsp/analysis/spectral"
)

// PSDCFAROptions configures the Welch-PSD line detector.
type PSDCFAROptions struct {
	NFFT       int     `json:"nfft"`
	Seglen     int     `json:"seglen"`
	Overlap    float64 `json:"overlap"`
	Pfa        float64 `json:"pfa"`
	SmoothBins int     `json:"smooth_bins"`
}

func (o *PSDCFAROptions) applyDefaults() {
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

// PSDCFAR detects narrowband lines with a Welch PSD, a median-filtered
// log-domain baseline and a quantile CFAR threshold. Deterministic for a
// given parameter set.
func PSDCFAR(ctx context.Context, x []float64, fs float64, opts PSDCFAROptions) (*Result, error) {
	opts.applyDefaults()

	psd, err := spectral.WelchPSD(ctx, x, fs, spectral.WelchOptions{
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
		Method: "PSD+CFAR",
		PlotX:  psd.Frequencies,
		PlotY:  curve,
		DfHz:   psd.Df,
		Params: map[string]any{
			"fs":          fs,
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

// ctxDone reports whether the optional cancellation context has expired.
func ctxDone(ctx context.Context) bool {
	return ctx != nil && ctx.Err() != nil
}
