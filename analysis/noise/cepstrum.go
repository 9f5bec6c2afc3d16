package noise

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"github.com/scopelab/tracedsp/analysis/common"
	"github.com/scopelab/tracedsp/analysis/spectral"
	"github.com/scopelab/tracedsp/analysis/windowing"
)

// CepstrumOptions configures the comb-spacing detector.
type CepstrumOptions struct {
	NFFT   int     `json:"nfft"`
	QMinMs float64 `json:"qmin_ms"` // Quefrency search window, milliseconds
	QMaxMs float64 `json:"qmax_ms"`
	TopK   int     `json:"topk"`
}

func (o *CepstrumOptions) applyDefaults() {
	if o.NFFT < 1024 {
		o.NFFT = 1024
	}
	if o.NFFT > 1<<18 {
		o.NFFT = 1 << 18
	}
	if o.QMinMs <= 0 {
		o.QMinMs = 0.02
	}
	if o.QMaxMs <= 0 {
		o.QMaxMs = 5.0
	}
	if o.TopK <= 0 {
		o.TopK = 3
	}
}

// Cepstrum detects periodic comb structure: the inverse FFT of the
// log-magnitude spectrum concentrates evenly spaced spectral lines into a
// peak at their common spacing's quefrency. Each reported peak inverts to a
// candidate fundamental spacing, not a direct spectral line frequency.
func Cepstrum(ctx context.Context, x []float64, fs float64, opts CepstrumOptions) (*Result, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("cepstrum: %w", common.ErrEmptySignal)
	}
	if fs <= 0 {
		return nil, fmt.Errorf("cepstrum: sample rate %v: %w", fs, common.ErrInvalidArgument)
	}
	opts.applyDefaults()

	nfft := opts.NFFT
	winLen := len(x)
	if winLen > nfft {
		winLen = nfft
	}
	win, err := windowing.Make(windowing.Hann, winLen)
	if err != nil {
		return nil, err
	}

	// Analyze the most recent winLen samples
	block := win.Apply(x[len(x)-winLen:])

	fftCalc := spectral.NewFFT()
	oneSided := spectral.OneSided(fftCalc.ComputePadded(block, nfft))

	logMag := make([]float64, len(oneSided))
	for k, bin := range oneSided {
		logMag[k] = math.Log(cmplx.Abs(bin) + common.EpsPower)
	}

	// Real cepstrum: inverse transform of the hermitian-extended
	// log-magnitude spectrum
	full := make([]complex128, nfft)
	for k := range logMag {
		full[k] = complex(logMag[k], 0)
		if k > 0 && nfft-k > len(logMag)-1 {
			full[nfft-k] = complex(logMag[k], 0)
		}
	}
	cep := fftCalc.ComputeInverseReal(full)

	result := &Result{
		Method: "Cepstrum",
		Params: map[string]any{
			"fs":      fs,
			"nfft":    nfft,
			"qmin_ms": opts.QMinMs,
			"qmax_ms": opts.QMaxMs,
			"topk":    opts.TopK,
		},
		Detections: []Detection{},
	}

	// Quefrency window
	qmin := math.Max(1.0/fs, opts.QMinMs*1e-3)
	qmax := math.Min(float64(len(cep)-1)/fs, opts.QMaxMs*1e-3)

	var qIdx []int
	for i := range cep {
		q := float64(i) / fs
		if q >= qmin && q <= qmax {
			qIdx = append(qIdx, i)
		}
	}
	if len(qIdx) == 0 {
		return result, nil
	}

	// Curve on an equivalent-frequency axis (1/quefrency)
	plotX := make([]float64, len(qIdx))
	plotY := make([]float64, len(qIdx))
	for j, i := range qIdx {
		q := float64(i) / fs
		plotX[j] = common.SafeDiv(1.0, q)
		plotY[j] = cep[i]
	}
	result.PlotX = plotX
	result.PlotY = plotY
	// The 1/quefrency frequency axis is non-uniform, so there is no single
	// bin width; DfHz echoes the spacing of the first two plotted points
	// only.
	if len(plotX) > 1 {
		result.DfHz = math.Abs(plotX[1] - plotX[0])
	}

	if ctxDone(ctx) {
		result.Cancelled = true
		return result, nil
	}

	// Largest TopK cepstral peaks within the window
	order := make([]int, len(qIdx))
	for j := range order {
		order[j] = j
	}
	sort.Slice(order, func(a, b int) bool {
		return plotY[order[a]] > plotY[order[b]]
	})

	topK := opts.TopK
	if topK > len(order) {
		topK = len(order)
	}
	for _, j := range order[:topK] {
		q0 := float64(qIdx[j]) / fs
		f0 := 0.0
		if q0 > 0 {
			f0 = 1.0 / q0
		}
		result.Detections = append(result.Detections, Detection{
			Type:       "comb",
			F0Hz:       f0,
			Metric:     plotY[j],
			MetricName: "SNR_dB",
			Notes:      "fundamental spacing",
		})
	}

	return result, nil
}
