package noise

import (
	"github.com/scopelab/tracedsp/analysis/common"
	"github.com/scopelab/tracedsp/analysis/spectral"
)

// robustBaseline median-filters a log-domain spectrum into a slowly varying
// noise floor that isolated narrow peaks cannot drag upward.
func robustBaseline(logSpectrum []float64, smoothBins int) []float64 {
	return common.MedianFilter(logSpectrum, smoothBins)
}

// cfarOffset picks the detection offset as the (1-pfa) quantile of the
// residual, so the threshold tracks a target false-alarm rate instead of a
// fixed dB number. The quantile is a stable Pfa proxy for Gaussian-like
// noise floors; heavier-tailed residuals will run at a different effective
// rate.
func cfarOffset(residual []float64, pfa float64) float64 {
	pfa = common.Clamp(pfa, 1e-6, 0.2)
	if len(residual) == 0 {
		return 6.0 // dB fallback
	}
	return common.Percentile(residual, 1.0-pfa)
}

// groupRuns splits the indices where mask is true into contiguous runs; a
// gap of more than one bin starts a new run. Each run is [first, last]
// inclusive.
func groupRuns(mask []bool) [][2]int {
	var runs [][2]int
	start := -1
	for i, m := range mask {
		if m && start < 0 {
			start = i
		}
		if !m && start >= 0 {
			runs = append(runs, [2]int{start, i - 1})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, [2]int{start, len(mask) - 1})
	}
	return runs
}

// detectLines converts threshold-crossing runs of a log-domain curve into
// detections: the bin of maximum residual anchors each run, parabolic
// refinement gives the sub-bin frequency, and the refined value relative to
// the local baseline is the reported SNR.
func detectLines(freqs, curve, baseline, residual []float64, mask []bool, df float64, detType string) []Detection {
	var detections []Detection
	for _, run := range groupRuns(mask) {
		peak := run[0]
		for i := run[0] + 1; i <= run[1]; i++ {
			if residual[i] > residual[peak] {
				peak = i
			}
		}

		delta, refined := spectral.RefineAt(curve, peak)
		f0 := freqs[peak] + delta*df
		snr := refined - baseline[peak]

		bw := df
		if run[1] > run[0] {
			bw = freqs[run[1]] - freqs[run[0]]
		}

		detections = append(detections, Detection{
			Type:        detType,
			F0Hz:        f0,
			Metric:      snr,
			MetricName:  "SNR_dB",
			BandwidthHz: bw,
		})
	}
	return detections
}
