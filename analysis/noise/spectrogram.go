package noise

import (
	"context"
	"fmt"
	"sort"

	"github.com/scopelab/tracedsp/analysis/common"
	"github.com/scopelab/tracedsp/analysis/spectral"
	"github.com/scopelab/tracedsp/analysis/windowing"
)

// SpectrogramOptions configures the persistence-based line detector.
type SpectrogramOptions struct {
	NFFT int     `json:"nfft"`
	Hop  int     `json:"hop"`
	Pfa  float64 `json:"pfa"`
	TopK int     `json:"topk"`
}

func (o *SpectrogramOptions) applyDefaults() {
	if o.NFFT <= 0 {
		o.NFFT = 4096
	}
	if o.Hop <= 0 {
		o.Hop = o.NFFT / 2
	}
	if o.Pfa == 0 {
		o.Pfa = 1e-3
	}
	if o.TopK <= 0 {
		o.TopK = 8
	}
}

// Spectrogram ranks frequencies by persistence rather than instantaneous
// SNR: the baseline for each frequency row is its median across time, the
// threshold is a per-row residual quantile, and the detection metric is
// occupancy, the fraction of time frames above threshold. Slow-moving or
// intermittent tones that never dominate a single PSD average still score
// high occupancy.
func Spectrogram(ctx context.Context, x []float64, fs float64, opts SpectrogramOptions) (*Result, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("spectrogram: %w", common.ErrEmptySignal)
	}
	if len(x) < spectral.MinSegment {
		return nil, fmt.Errorf("spectrogram: record of %d samples is shorter than the minimum segment of %d: %w",
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

	// Log-power image, rows are frequency and columns are time
	image := make([][]float64, bins)
	for f := range image {
		image[f] = make([]float64, frames)
		for t := 0; t < frames; t++ {
			mag := stft.Magnitude[t][f]
			image[f][t] = common.SafeLog10(mag * mag)
		}
	}

	tMax := 0.0
	if frames > 1 {
		tMax = float64(frames-1) * stft.TimeResolution
	}

	result := &Result{
		Method: "Spectrogram",
		Image: &Image{
			Data:   image,
			Extent: [4]float64{0, tMax, 0, float64(bins-1) * df},
			XLabel: "Time (s)",
			YLabel: "Frequency (Hz)",
		},
		DfHz: df,
		Params: map[string]any{
			"fs":   fs,
			"nfft": windowSize,
			"hop":  hop,
			"pfa":  common.Clamp(opts.Pfa, 1e-6, 0.2),
			"topk": opts.TopK,
		},
		Detections: []Detection{},
	}

	if stft.Cancelled || frames == 0 {
		result.Cancelled = stft.Cancelled
		return result, nil
	}

	if len(image) > 0 {
		vals := flatten(image)
		result.Image.VMin = common.Min(vals)
		result.Image.VMax = common.Max(vals)
	}

	pfa := common.Clamp(opts.Pfa, 1e-6, 0.2)
	occupancy := make([]float64, bins)
	for f := range image {
		row := image[f]
		base := common.Percentile(row, 0.5) // median across time
		residual := make([]float64, len(row))
		for t := range row {
			residual[t] = row[t] - base
		}
		offset := common.Percentile(residual, 1.0-pfa)
		above := 0
		for t := range residual {
			if residual[t] > offset {
				above++
			}
		}
		occupancy[f] = float64(above) / float64(frames)
	}

	// Top-K frequencies by occupancy
	order := make([]int, bins)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return occupancy[order[a]] > occupancy[order[b]]
	})

	topK := opts.TopK
	if topK > bins {
		topK = bins
	}
	for _, f := range order[:topK] {
		if occupancy[f] <= 0 {
			break
		}
		result.Detections = append(result.Detections, Detection{
			Type:        "line",
			F0Hz:        float64(f) * df,
			Metric:      100.0 * occupancy[f],
			MetricName:  "Occupancy_%",
			BandwidthHz: df,
		})
	}

	return result, nil
}

func flatten(image [][]float64) []float64 {
	total := 0
	for _, row := range image {
		total += len(row)
	}
	out := make([]float64, 0, total)
	for _, row := range image {
		out = append(out, row...)
	}
	return out
}
