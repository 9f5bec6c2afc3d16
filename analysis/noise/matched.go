package noise

import (
	"context"
	"fmt"
	"math"

	"github.com/scopelab/tracedsp/analysis/common"
)

// MatchedFilter slides a normalized template across the signal and reports
// the peak correlation and its lag. Both the template and the signal are
// demeaned and scaled to unit energy first, so the peak value is a
// dimensionless correlation rather than raw energy.
func MatchedFilter(ctx context.Context, x, template []float64, fs float64) (*Result, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("matched-filter: %w", common.ErrEmptySignal)
	}
	if fs <= 0 {
		return nil, fmt.Errorf("matched-filter: sample rate %v: %w", fs, common.ErrInvalidArgument)
	}
	if len(template) == 0 {
		return nil, fmt.Errorf("matched-filter: %w", common.ErrEmptyTemplate)
	}
	if len(template) > len(x) {
		return nil, fmt.Errorf("matched-filter: template of %d samples against %d-sample record: %w",
			len(template), len(x), common.ErrInsufficientSamples)
	}

	h := common.RemoveDC(template)
	sig := common.RemoveDC(x)

	normalizeEnergy(h)
	normalizeEnergy(sig)

	lags := len(sig) - len(h) + 1
	corr := make([]float64, 0, lags)
	times := make([]float64, 0, lags)

	cancelled := false
	for lag := 0; lag < lags; lag++ {
		if lag%1024 == 0 && ctxDone(ctx) {
			cancelled = true
			break
		}
		sum := 0.0
		for i := range h {
			sum += h[i] * sig[lag+i]
		}
		corr = append(corr, sum)
		times = append(times, float64(lag)/fs)
	}

	result := &Result{
		Method: "Matched Filter",
		PlotX:  times,
		PlotY:  corr,
		Params: map[string]any{
			"fs":           fs,
			"template_len": len(template),
		},
		Detections: []Detection{},
		Cancelled:  cancelled,
	}

	if cancelled || len(corr) == 0 {
		return result, nil
	}

	peak := common.ArgMax(corr)
	result.Detections = append(result.Detections, Detection{
		Type:       "corr",
		F0Hz:       0,
		Metric:     corr[peak],
		MetricName: "correlation",
		Notes:      fmt.Sprintf("peak idx %d", peak),
	})

	return result, nil
}

// normalizeEnergy scales the slice to unit L2 norm in place.
func normalizeEnergy(x []float64) {
	sumSq := 0.0
	for _, v := range x {
		sumSq += v * v
	}
	norm := math.Sqrt(sumSq) + common.EpsStd
	for i := range x {
		x[i] /= norm
	}
}
