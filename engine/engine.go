// Package engine is the function-call boundary of the analysis core: one
// entry point that validates input, dispatches on the method kind and
// returns either a harmonic result or a detector result. The host
// application calls it from a worker thread; every analysis is a pure,
// synchronous computation whose only cancellation mechanism is the polled
// context.
package engine

import (
	"context"
	"fmt"

	"github.com/scopelab/tracedsp/analysis/common"
	"github.com/scopelab/tracedsp/analysis/harmonic"
	"github.com/scopelab/tracedsp/analysis/noise"
	"github.com/scopelab/tracedsp/analysis/windowing"
	"github.com/scopelab/tracedsp/logging"
)

// Method enumerates the analysis kinds. Dispatch is a tagged switch into
// one pure function per variant; the variants share the windowing,
// baseline and CFAR helpers rather than a runtime hierarchy.
type Method int

const (
	MethodHarmonics Method = iota
	MethodPSDCFAR
	MethodSpectrogram
	MethodMultitaper
	MethodSpectralKurtosis
	MethodCoherence
	MethodCepstrum
	MethodARSpectrum
	MethodMatchedFilter
	MethodCyclostationary
	MethodBicoherence
)

func (m Method) String() string {
	switch m {
	case MethodHarmonics:
		return "Harmonics"
	case MethodPSDCFAR:
		return "PSD+CFAR"
	case MethodSpectrogram:
		return "Spectrogram"
	case MethodMultitaper:
		return "Multitaper"
	case MethodSpectralKurtosis:
		return "Spectral Kurtosis"
	case MethodCoherence:
		return "MSC"
	case MethodCepstrum:
		return "Cepstrum"
	case MethodARSpectrum:
		return "AR Spectrum"
	case MethodMatchedFilter:
		return "Matched Filter"
	case MethodCyclostationary:
		return "Cyclostationary"
	case MethodBicoherence:
		return "Bicoherence"
	default:
		return "Unknown"
	}
}

// Params is the fixed parameter vocabulary shared across methods. Each
// method reads the subset it understands and ignores the rest; zero values
// mean "use the method default".
type Params struct {
	NFFT       int           `json:"nfft"`
	Seglen     int           `json:"seglen"`
	Hop        int           `json:"hop"`
	Overlap    float64       `json:"overlap"` // [0, 1)
	Pfa        float64       `json:"pfa"`     // (0, 0.2]
	SmoothBins int           `json:"smooth_bins"`
	Window     windowing.Tag `json:"window"`

	NHarmonics  int  `json:"n_harmonics"`
	IncludeDC   bool `json:"include_dc"`
	ComputeTHDN bool `json:"compute_thdn"`

	KTapers     int     `json:"k_tapers"`
	SKThreshold float64 `json:"sk_threshold"`
	MSCThresh   float64 `json:"msc_threshold"`
	AROrder     int     `json:"ar_order"`
	AlphaMaxHz  float64 `json:"alpha_max_hz"`
	TopK        int     `json:"topk"`
	QMinMs      float64 `json:"qmin_ms"`
	QMaxMs      float64 `json:"qmax_ms"`

	// TemplatePath locates the matched-filter template CSV.
	TemplatePath string `json:"template_path"`

	// Reference is the second channel for two-channel methods. ReferenceFs
	// of zero means "same rate as the primary channel".
	Reference   []float64 `json:"-"`
	ReferenceFs float64   `json:"reference_fs"`
}

// Result is the union of the two output contracts.
type Result struct {
	Method   Method           `json:"method"`
	Harmonic *harmonic.Result `json:"harmonic,omitempty"`
	Detector *noise.Result    `json:"detector,omitempty"`
}

// Analyze validates the capture and dispatches to the requested method.
// The samples slice is read-only for the duration of the call and is never
// retained.
func Analyze(ctx context.Context, samples []float64, fs float64, method Method, p Params) (*Result, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("analyze: %w", common.ErrEmptySignal)
	}
	if fs <= 0 {
		return nil, fmt.Errorf("analyze: sample rate %v: %w", fs, common.ErrInvalidArgument)
	}

	logger := logging.GetGlobalLogger().WithFields(logging.Fields{
		"method":  method.String(),
		"samples": len(samples),
		"fs":      fs,
	})
	logger.Debug("starting analysis")

	switch method {
	case MethodHarmonics:
		res, err := harmonic.NewAnalyzer(harmonic.Config{
			NHarmonics:  p.NHarmonics,
			Window:      p.Window,
			IncludeDC:   p.IncludeDC,
			ComputeTHDN: p.ComputeTHDN,
		}).Analyze(samples, fs)
		if err != nil {
			return nil, err
		}
		if len(res.Warnings) > 0 {
			logger.Debug("analysis produced warnings", logging.Fields{"warnings": res.Warnings})
		}
		return &Result{Method: method, Harmonic: res}, nil

	case MethodPSDCFAR:
		res, err := noise.PSDCFAR(ctx, samples, fs, noise.PSDCFAROptions{
			NFFT:       p.NFFT,
			Seglen:     p.Seglen,
			Overlap:    p.Overlap,
			Pfa:        p.Pfa,
			SmoothBins: p.SmoothBins,
		})
		return wrap(method, res, err, logger)

	case MethodSpectrogram:
		res, err := noise.Spectrogram(ctx, samples, fs, noise.SpectrogramOptions{
			NFFT: p.NFFT,
			Hop:  p.Hop,
			Pfa:  p.Pfa,
			TopK: p.TopK,
		})
		return wrap(method, res, err, logger)

	case MethodMultitaper:
		res, err := noise.Multitaper(ctx, samples, fs, noise.MultitaperOptions{
			Tapers:     p.KTapers,
			NFFT:       p.NFFT,
			Seglen:     p.Seglen,
			Overlap:    p.Overlap,
			Pfa:        p.Pfa,
			SmoothBins: p.SmoothBins,
		})
		return wrap(method, res, err, logger)

	case MethodSpectralKurtosis:
		res, err := noise.SpectralKurtosis(ctx, samples, fs, noise.SpectralKurtosisOptions{
			NFFT:      p.NFFT,
			Hop:       p.Hop,
			Threshold: p.SKThreshold,
		})
		return wrap(method, res, err, logger)

	case MethodCoherence:
		if len(p.Reference) == 0 {
			return nil, fmt.Errorf("analyze: coherence needs a reference channel: %w", common.ErrChannelMismatch)
		}
		if p.ReferenceFs != 0 && p.ReferenceFs != fs {
			return nil, fmt.Errorf("analyze: reference rate %v against %v: %w",
				p.ReferenceFs, fs, common.ErrChannelMismatch)
		}
		res, err := noise.Coherence(ctx, samples, p.Reference, fs, noise.CoherenceOptions{
			NFFT:      p.NFFT,
			Seglen:    p.Seglen,
			Overlap:   p.Overlap,
			Threshold: p.MSCThresh,
		})
		return wrap(method, res, err, logger)

	case MethodCepstrum:
		res, err := noise.Cepstrum(ctx, samples, fs, noise.CepstrumOptions{
			NFFT:   p.NFFT,
			QMinMs: p.QMinMs,
			QMaxMs: p.QMaxMs,
			TopK:   p.TopK,
		})
		return wrap(method, res, err, logger)

	case MethodARSpectrum:
		res, err := noise.ARSpectrum(ctx, samples, fs, noise.ARSpectrumOptions{
			Order: p.AROrder,
			NFFT:  p.NFFT,
		})
		return wrap(method, res, err, logger)

	case MethodMatchedFilter:
		template, err := noise.LoadTemplateCSV(p.TemplatePath)
		if err != nil {
			return nil, err
		}
		res, err := noise.MatchedFilter(ctx, samples, template, fs)
		return wrap(method, res, err, logger)

	case MethodCyclostationary:
		opts := noise.DefaultCycloOptions()
		if p.NFFT > 0 {
			opts.NFFT = p.NFFT
		}
		if p.Hop > 0 {
			opts.Hop = p.Hop
		}
		if p.AlphaMaxHz > 0 {
			opts.AlphaMaxHz = p.AlphaMaxHz
		}
		res, err := noise.Cyclostationary(ctx, samples, fs, opts)
		return wrap(method, res, err, logger)

	case MethodBicoherence:
		opts := noise.BicoherenceOptions{NFFT: p.NFFT}
		if p.NFFT > 0 && p.Overlap > 0 {
			opts.NOverlap = int(p.Overlap * float64(p.NFFT))
		}
		res, err := noise.Bicoherence(ctx, samples, fs, opts)
		return wrap(method, res, err, logger)

	default:
		return nil, fmt.Errorf("analyze: unknown method %d: %w", method, common.ErrInvalidArgument)
	}
}

func wrap(method Method, res *noise.Result, err error, logger logging.Logger) (*Result, error) {
	if err != nil {
		return nil, err
	}
	logger.Debug("analysis finished", logging.Fields{
		"detections": len(res.Detections),
		"cancelled":  res.Cancelled,
	})
	return &Result{Method: method, Detector: res}, nil
}
