package common

import (
	"math"
	"sort"
)

// Epsilon floors for numeric guards. Degenerate input (zero power, log of
// zero) yields an uninformative but finite value rather than NaN/Inf; these
// floors are the single place that policy lives.
const (
	// EpsPower floors power/magnitude values before log or division.
	EpsPower = 1e-30

	// EpsStd floors standard deviations before standardization.
	EpsStd = 1e-12
)

// SafeLog10 returns 10*log10 of the value floored at EpsPower, i.e. a dB
// conversion that never produces -Inf.
func SafeLog10(v float64) float64 {
	return 10.0 * math.Log10(math.Max(v, EpsPower))
}

// SafeAmpLog10 is the amplitude (20*log10) variant of SafeLog10.
func SafeAmpLog10(v float64) float64 {
	return 20.0 * math.Log10(math.Max(v, EpsPower))
}

// SafeDiv divides num by den with the denominator floored at EpsPower.
func SafeDiv(num, den float64) float64 {
	return num / math.Max(den, EpsPower)
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MedianFilter applies a sliding-window median of odd kernel size with edge
// replication. Kernel sizes below 3 or even sizes are bumped to the next
// valid odd size, matching the baseline-smoothing contract used by the
// detectors.
func MedianFilter(data []float64, kernelSize int) []float64 {
	out := make([]float64, len(data))
	if len(data) == 0 {
		return out
	}

	k := kernelSize
	if k < 3 {
		k = 3
	}
	if k%2 == 0 {
		k++
	}
	if k > len(data) {
		// Degenerate record: fall back to the smallest odd kernel that fits
		k = len(data)
		if k%2 == 0 {
			k--
		}
		if k < 1 {
			k = 1
		}
	}

	half := k / 2
	window := make([]float64, 0, k)

	for i := range data {
		window = window[:0]
		for j := i - half; j <= i+half; j++ {
			idx := j
			if idx < 0 {
				idx = 0
			}
			if idx >= len(data) {
				idx = len(data) - 1
			}
			window = append(window, data[idx])
		}
		sort.Float64s(window)
		out[i] = window[len(window)/2]
	}

	return out
}
