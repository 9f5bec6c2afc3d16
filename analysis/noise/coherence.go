package noise

import (
	"context"
	"fmt"

	"github.com/scopelab/tracedsp/analysis/common"
	"github.com/scopelab/tracedsp/analysis/spectral"
)

// CoherenceOptions configures the two-channel MSC detector.
type CoherenceOptions struct {
	NFFT      int     `json:"nfft"`
	Seglen    int     `json:"seglen"`
	Overlap   float64 `json:"overlap"`
	Threshold float64 `json:"threshold"` // Fixed MSC threshold in [0, 1]
}

func (o *CoherenceOptions) applyDefaults() {
	if o.NFFT <= 0 {
		o.NFFT = 4096
	}
	if o.Seglen <= 0 {
		o.Seglen = 4096
	}
	if o.Overlap == 0 {
		o.Overlap = 0.5
	}
	if o.Threshold == 0 {
		o.Threshold = 0.5
	}
}

// Coherence computes magnitude-squared coherence between two equal-length,
// equal-rate channels. Bins whose coherence clears a fixed threshold in
// [0,1] become detections; frequency content present in both channels (a
// shared interference source, a genuine common signal) scores high even at
// low absolute power.
func Coherence(ctx context.Context, x, ref []float64, fs float64, opts CoherenceOptions) (*Result, error) {
	if len(x) == 0 || len(ref) == 0 {
		return nil, fmt.Errorf("coherence: %w", common.ErrEmptySignal)
	}
	if len(x) != len(ref) {
		return nil, fmt.Errorf("coherence: channel lengths %d and %d: %w",
			len(x), len(ref), common.ErrChannelMismatch)
	}
	opts.applyDefaults()

	cross, err := spectral.CrossPSD(ctx, x, ref, fs, spectral.WelchOptions{
		Seglen:  opts.Seglen,
		Overlap: opts.Overlap,
		NFFT:    opts.NFFT,
	})
	if err != nil {
		return nil, err
	}

	msc := make([]float64, len(cross.Pxy))
	for k := range msc {
		num := real(cross.Pxy[k])*real(cross.Pxy[k]) + imag(cross.Pxy[k])*imag(cross.Pxy[k])
		msc[k] = common.Clamp(common.SafeDiv(num, cross.Pxx[k]*cross.Pyy[k]), 0.0, 1.0)
	}

	result := &Result{
		Method: "MSC",
		PlotX:  cross.Frequencies,
		PlotY:  msc,
		DfHz:   cross.Df,
		Params: map[string]any{
			"fs":        fs,
			"nfft":      opts.NFFT,
			"seglen":    cross.Nperseg,
			"overlap":   opts.Overlap,
			"threshold": opts.Threshold,
		},
		Detections: []Detection{},
	}

	if cross.Cancelled || ctxDone(ctx) {
		result.Cancelled = true
		return result, nil
	}

	mask := make([]bool, len(msc))
	for k := range msc {
		mask[k] = msc[k] >= opts.Threshold
	}

	for _, run := range groupRuns(mask) {
		peak := run[0]
		for i := run[0] + 1; i <= run[1]; i++ {
			if msc[i] > msc[peak] {
				peak = i
			}
		}
		bw := cross.Df
		if run[1] > run[0] {
			bw = cross.Frequencies[run[1]] - cross.Frequencies[run[0]]
		}
		result.Detections = append(result.Detections, Detection{
			Type:        "coh",
			F0Hz:        cross.Frequencies[peak],
			Metric:      msc[peak],
			MetricName:  "MSC",
			BandwidthHz: bw,
		})
	}

	return result, nil
}
