package harmonic

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/scopelab/tracedsp/analysis/common"
	"github.com/scopelab/tracedsp/analysis/spectral"
	"github.com/scopelab/tracedsp/analysis/windowing"
)

// Config holds harmonic analysis parameters.
type Config struct {
	NHarmonics  int           `json:"n_harmonics"`  // Highest harmonic order considered (cap)
	Window      windowing.Tag `json:"window"`       // Defaults to Hann
	IncludeDC   bool          `json:"include_dc"`   // Keep the DC component in the signal
	ComputeTHDN bool          `json:"compute_thdn"` // Also derive THD+N / SINAD / SNR
}

// Row is one entry of the harmonic table. Rows are strictly increasing in K
// and only exist while K*f1 stays below Nyquist.
type Row struct {
	K        int     `json:"k"`
	FreqHz   float64 `json:"f_hz"`
	MagRMS   float64 `json:"mag_rms"`
	Percent  float64 `json:"percent"` // Relative to the fundamental RMS, in percent
	PhaseDeg float64 `json:"phase_deg"`
}

// Result aggregates the harmonic analysis of one capture. THD is a
// fraction (multiply by 100 for percent). THDN/SINADdB/SNRdB are nil when
// not requested or when no fundamental was found.
type Result struct {
	F1Hz            float64       `json:"f1_hz"`
	V1RMS           float64       `json:"v1_rms"`
	THD             float64       `json:"thd"`
	THDN            *float64      `json:"thdn,omitempty"`
	SINADdB         *float64      `json:"sinad_db,omitempty"`
	SNRdB           *float64      `json:"snr_db,omitempty"`
	Crest           float64       `json:"crest"`
	FormFactor      float64       `json:"form_factor"`
	Rows            []Row         `json:"rows"`
	CoherenceCycles float64       `json:"coherence_cycles"` // Buffer duration times f1
	Warnings        []string      `json:"warnings"`
	Fs              float64       `json:"fs"`
	Window          windowing.Tag `json:"window"`
	IncludeDC       bool          `json:"include_dc"`
	ENBWBins        float64       `json:"enbw_bins"`
}

// Analyzer estimates the fundamental, builds the harmonic table and derives
// distortion metrics from a single capture. It is stateless between calls.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer creates a harmonic analyzer with defaults filled in
func NewAnalyzer(cfg Config) *Analyzer {
	if cfg.NHarmonics < 1 {
		cfg.NHarmonics = 25
	}
	if cfg.Window == "" {
		cfg.Window = windowing.Hann
	}
	return &Analyzer{cfg: cfg}
}

// Analyze runs the full harmonic pipeline on already-scaled samples.
// Degenerate but non-empty input (constant signal, no detectable
// fundamental) never fails; fields that cannot be computed are zero and a
// warning explains why.
func (a *Analyzer) Analyze(x []float64, fs float64) (*Result, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("harmonic: %w", common.ErrEmptySignal)
	}
	if fs <= 0 {
		return nil, fmt.Errorf("harmonic: sample rate %v: %w", fs, common.ErrInvalidArgument)
	}

	warnings := []string{}
	n := len(x)

	spec, err := spectral.Compute(x, fs, a.cfg.Window, !a.cfg.IncludeDC)
	if err != nil {
		return nil, err
	}
	cg := spec.Window.CoherentGain()

	// Time-domain copy consistent with the spectrum (DC removed unless kept)
	sig := x
	if !a.cfg.IncludeDC {
		sig = common.RemoveDC(x)
	}

	f1, v1RMS, k0 := a.estimateFundamental(spec, fs, n)
	v1RMS /= cg

	duration := float64(n) / fs
	coherenceCycles := 0.0
	if f1 > 0 {
		coherenceCycles = duration * f1
	}
	if f1 <= 0 {
		warnings = append(warnings, "No fundamental detected (f1<=0)")
	}
	if coherenceCycles > 0 && coherenceCycles < 3.0 {
		warnings = append(warnings, "Low cycle count in buffer (<3 cycles)")
	}
	if f1 > 0 && fs/f1 < 20.0 {
		warnings = append(warnings, fmt.Sprintf("fs/f0 ratio below 20 (%.1f) - increase sample rate", fs/f1))
	}

	rows := a.buildTable(spec, fs, n, f1, v1RMS, cg)

	sumH2 := 0.0
	for _, r := range rows {
		sumH2 += r.MagRMS * r.MagRMS
	}
	thd := 0.0
	if v1RMS > 0 {
		thd = math.Sqrt(sumH2) / v1RMS
	}

	totalRMS := common.RMS(sig)
	crest := common.SafeDiv(common.MaxAbs(sig), totalRMS)
	formFactor := common.SafeDiv(totalRMS, common.MeanAbs(sig))

	result := &Result{
		F1Hz:            f1,
		V1RMS:           v1RMS,
		THD:             thd,
		Crest:           crest,
		FormFactor:      formFactor,
		Rows:            rows,
		CoherenceCycles: coherenceCycles,
		Fs:              fs,
		Window:          a.cfg.Window,
		IncludeDC:       a.cfg.IncludeDC,
		ENBWBins:        spec.Window.ENBWBins(),
	}

	if a.cfg.ComputeTHDN && v1RMS > 0 {
		thdn := math.Max(0, math.Sqrt(math.Max(0, totalRMS*totalRMS-v1RMS*v1RMS))/v1RMS)
		result.THDN = &thdn

		residRMS := math.Sqrt(math.Max(common.EpsPower, totalRMS*totalRMS-v1RMS*v1RMS))
		sinadDB := 20.0 * math.Log10(common.SafeDiv(v1RMS, residRMS))
		result.SINADdB = &sinadDB

		snrDB := a.snrEstimate(spec, fs, n, rows, k0, v1RMS)
		result.SNRdB = &snrDB
	}

	result.Warnings = warnings
	return result, nil
}

// estimateFundamental finds the magnitude peak excluding DC and refines it
// with parabolic interpolation. The returned RMS is not yet corrected for
// the window coherent gain.
func (a *Analyzer) estimateFundamental(spec *spectral.SpectrumResult, fs float64, n int) (f1, v1RMS float64, k0 int) {
	mag := make([]float64, len(spec.Magnitudes))
	copy(mag, spec.Magnitudes)
	if len(mag) > 0 {
		mag[0] = 0.0 // exclude DC from the peak search
	}

	k0 = common.ArgMax(mag)
	if k0 <= 0 || k0 >= len(mag)-1 {
		if k0 < 0 {
			return 0, 0, 0
		}
		f1 = float64(k0) * fs / float64(n)
		v1RMS = (mag[k0] / float64(n)) / math.Sqrt2
		return f1, v1RMS, k0
	}

	delta, refined := spectral.Refine(mag[k0-1], mag[k0], mag[k0+1])
	kHat := float64(k0) + delta
	f1 = kHat * fs / float64(n)
	v1RMS = (refined / float64(n)) / math.Sqrt2
	return f1, v1RMS, k0
}

// buildTable extracts each harmonic at its assumed exact frequency k*f1.
// Only magnitude and phase are measured; the frequency is not re-estimated
// per harmonic.
func (a *Analyzer) buildTable(spec *spectral.SpectrumResult, fs float64, n int, f1, v1RMS, cg float64) []Row {
	rows := []Row{}
	if f1 <= 0 {
		return rows
	}

	nyquist := fs / 2.0
	for k := 2; k <= a.cfg.NHarmonics; k++ {
		fK := float64(k) * f1
		if fK >= nyquist {
			break
		}

		magRMS, phaseDeg := a.harmonicAt(spec, fs, n, fK)
		magRMS /= cg
		percent := 0.0
		if v1RMS > 0 {
			percent = 100.0 * magRMS / v1RMS
		}

		rows = append(rows, Row{
			K:        k,
			FreqHz:   fK,
			MagRMS:   magRMS,
			Percent:  percent,
			PhaseDeg: phaseDeg,
		})
	}
	return rows
}

// harmonicAt reads the magnitude (parabolically refined) and phase (center
// bin) nearest to the target frequency.
func (a *Analyzer) harmonicAt(spec *spectral.SpectrumResult, fs float64, n int, fTarget float64) (magRMS, phaseDeg float64) {
	k := int(math.Round(fTarget * float64(n) / fs))
	if k <= 0 || k >= len(spec.Complex) {
		return 0, 0
	}

	_, refined := spectral.RefineAt(spec.Magnitudes, k)
	phase := cmplx.Phase(spec.Complex[k])
	return (refined / float64(n)) / math.Sqrt2, phase * 180.0 / math.Pi
}

// snrEstimate zeroes DC (when excluded), the fundamental +/-1 bin and each
// harmonic +/-1 bin, then treats the remaining spectral power as the noise
// floor. This is a coarse proxy for in-band noise, not an exact
// measurement; treat the value as a best-effort diagnostic.
func (a *Analyzer) snrEstimate(spec *spectral.SpectrumResult, fs float64, n int, rows []Row, k0 int, v1RMS float64) float64 {
	residual := make([]complex128, len(spec.Complex))
	copy(residual, spec.Complex)

	if !a.cfg.IncludeDC && len(residual) > 0 {
		residual[0] = 0
	}
	if k0 >= 1 && k0 < len(residual)-1 {
		residual[k0-1] = 0
		residual[k0] = 0
		residual[k0+1] = 0
	}
	for _, r := range rows {
		kIdx := int(math.Round(r.FreqHz * float64(n) / fs))
		for k := kIdx - 1; k <= kIdx+1; k++ {
			if k >= 0 && k < len(residual) {
				residual[k] = 0
			}
		}
	}

	sumSq := 0.0
	for _, bin := range residual {
		sumSq += real(bin)*real(bin) + imag(bin)*imag(bin)
	}
	noiseRMS := math.Sqrt(sumSq) / (float64(n) * math.Sqrt2)

	return 20.0 * math.Log10(common.SafeDiv(math.Max(v1RMS, common.EpsPower), noiseRMS))
}
