package noise

import (
	"context"
	"fmt"
	"math"

	"github.com/scopelab/tracedsp/analysis/common"
	"github.com/scopelab/tracedsp/analysis/spectral"
	"github.com/scopelab/tracedsp/analysis/windowing"
)

// SpectralKurtosisOptions configures the impulsive-band detector.
type SpectralKurtosisOptions struct {
	NFFT      int     `json:"nfft"`
	Hop       int     `json:"hop"`
	Threshold float64 `json:"sk_threshold"` // Excess-kurtosis threshold, not a quantile
}

func (o *SpectralKurtosisOptions) applyDefaults() {
	if o.NFFT <= 0 {
		o.NFFT = 4096
	}
	if o.Hop <= 0 {
		o.Hop = o.NFFT / 2
	}
	if o.Threshold == 0 {
		o.Threshold = 2.5
	}
}

// SpectralKurtosis highlights impulsive or bursty energy: for each
// frequency bin the log-magnitude sequence across time is standardized and
// its excess kurtosis mean(z^4)-3 computed. Persistent tones score near
// zero; bursts score high. The threshold is a fixed kurtosis value because
// the statistic is already normalized.
func SpectralKurtosis(ctx context.Context, x []float64, fs float64, opts SpectralKurtosisOptions) (*Result, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("spectral kurtosis: %w", common.ErrEmptySignal)
	}
	if len(x) < spectral.MinSegment {
		return nil, fmt.Errorf("spectral kurtosis: record of %d samples is shorter than the minimum segment of %d: %w",
			len(x), spectral.MinSegment, common.ErrInsufficientSamples)
	}
	opts.applyDefaults()

	windowSize := opts.NFFT
	if windowSize > len(x) {
		windowSize = len(x)
	}
	hop := opts.Hop
	if hop > windowSize {
		hop = windowSize
	}

	stft, err := spectral.STFT(ctx, x, fs, windowSize, hop, windowing.Hann, false)
	if err != nil {
		return nil, err
	}

	frames := stft.TimeFrames
	bins := stft.FreqBins
	df := stft.FreqResolution

	// Log-magnitude image (frequency rows, time columns), min-max scaled
	// for display
	logMag := make([][]float64, bins)
	for f := range logMag {
		logMag[f] = make([]float64, frames)
		for t := 0; t < frames; t++ {
			logMag[f][t] = math.Log(math.Max(stft.Magnitude[t][f], common.EpsPower))
		}
	}

	tMax := 0.0
	if frames > 1 {
		tMax = float64(frames-1) * stft.TimeResolution
	}

	result := &Result{
		Method: "Spectral Kurtosis",
		DfHz:   df,
		Params: map[string]any{
			"fs":           fs,
			"nfft":         windowSize,
			"hop":          hop,
			"sk_threshold": opts.Threshold,
		},
		Detections: []Detection{},
	}

	if frames > 0 {
		vals := flatten(logMag)
		lo, hi := common.Min(vals), common.Max(vals)
		span := math.Max(hi-lo, common.EpsStd)
		display := make([][]float64, bins)
		for f := range display {
			display[f] = make([]float64, frames)
			for t := range display[f] {
				display[f][t] = (logMag[f][t] - lo) / span
			}
		}
		result.Image = &Image{
			Data:   display,
			Extent: [4]float64{0, tMax, 0, float64(bins-1) * df},
			VMin:   0,
			VMax:   1,
			XLabel: "Time (s)",
			YLabel: "Frequency (Hz)",
		}
	}

	if stft.Cancelled || frames < 2 {
		result.Cancelled = stft.Cancelled
		return result, nil
	}

	// Excess kurtosis of the standardized log-magnitude per frequency bin
	sk := make([]float64, bins)
	for f := 0; f < bins; f++ {
		row := logMag[f]
		mu := common.Mean(row)
		sigma := common.PopulationStandardDeviation(row) + common.EpsStd

		sum4 := 0.0
		for _, v := range row {
			z := (v - mu) / sigma
			z2 := z * z
			sum4 += z2 * z2
		}
		sk[f] = sum4/float64(frames) - 3.0
	}

	mask := make([]bool, bins)
	for f := range sk {
		mask[f] = sk[f] >= opts.Threshold
	}

	for _, run := range groupRuns(mask) {
		peak := run[0]
		for i := run[0] + 1; i <= run[1]; i++ {
			if sk[i] > sk[peak] {
				peak = i
			}
		}
		bw := df
		if run[1] > run[0] {
			bw = float64(run[1]-run[0]) * df
		}
		result.Detections = append(result.Detections, Detection{
			Type:        "sk",
			F0Hz:        float64(peak) * df,
			Metric:      sk[peak],
			MetricName:  "SK",
			BandwidthHz: bw,
		})
	}

	return result, nil
}
