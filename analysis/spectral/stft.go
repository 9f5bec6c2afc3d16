package spectral

import (
	"context"
	"fmt"
	"math/cmplx"

	"github.com/scopelab/tracedsp/analysis/common"
	"github.com/scopelab/tracedsp/analysis/windowing"
)

// STFTResult holds a framed short-time spectrum. Frames are rows, frequency
// bins are columns.
type STFTResult struct {
	Magnitude      [][]float64    `json:"magnitude"`       // Time x Frequency magnitude matrix
	Complex        [][]complex128 `json:"-"`               // Raw complex spectrogram (not serialized)
	TimeFrames     int            `json:"time_frames"`     // Frames actually computed
	FreqBins       int            `json:"freq_bins"`       // Frequency bins per frame
	WindowSize     int            `json:"window_size"`     // Frame length
	HopSize        int            `json:"hop_size"`        // Hop between frame starts
	FreqResolution float64        `json:"freq_resolution"` // Hz per bin
	TimeResolution float64        `json:"time_resolution"` // Seconds per frame hop
	Cancelled      bool           `json:"cancelled"`
}

// STFT computes a sequential short-time Fourier transform. The analysis
// core is deliberately single-threaded so it can run on any caller thread;
// the context is polled between frames and cancellation truncates the frame
// list without error.
//
// When pad is true a record shorter than one frame is zero-padded up to the
// frame length instead of being rejected.
func STFT(ctx context.Context, x []float64, fs float64, windowSize, hop int, tag windowing.Tag, pad bool) (*STFTResult, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("stft: %w", common.ErrEmptySignal)
	}
	if fs <= 0 {
		return nil, fmt.Errorf("stft: sample rate %v: %w", fs, common.ErrInvalidArgument)
	}
	if windowSize <= 0 || hop <= 0 {
		return nil, fmt.Errorf("stft: window %d hop %d: %w", windowSize, hop, common.ErrInvalidArgument)
	}

	sig := x
	if len(sig) < windowSize {
		if !pad {
			return nil, fmt.Errorf("stft: %d samples for window of %d: %w",
				len(sig), windowSize, common.ErrInsufficientSamples)
		}
		padded := make([]float64, windowSize)
		copy(padded, sig)
		sig = padded
	}

	if tag == "" {
		tag = windowing.Hann
	}
	win, err := windowing.Make(tag, windowSize)
	if err != nil {
		return nil, err
	}

	numFrames := (len(sig)-windowSize)/hop + 1
	freqBins := windowSize/2 + 1

	magnitude := make([][]float64, 0, numFrames)
	complexSpec := make([][]complex128, 0, numFrames)

	fftCalc := NewFFT()
	frameBuffer := make([]float64, windowSize)

	cancelled := false
	for frameIdx := 0; frameIdx < numFrames; frameIdx++ {
		if ctx != nil && ctx.Err() != nil {
			cancelled = true
			break
		}

		start := frameIdx * hop
		copy(frameBuffer, sig[start:start+windowSize])
		if err := win.ApplyInPlace(frameBuffer); err != nil {
			return nil, err
		}

		spec := OneSided(fftCalc.Compute(frameBuffer))
		magRow := make([]float64, freqBins)
		cplxRow := make([]complex128, freqBins)
		for i := 0; i < freqBins && i < len(spec); i++ {
			cplxRow[i] = spec[i]
			magRow[i] = cmplx.Abs(spec[i])
		}
		magnitude = append(magnitude, magRow)
		complexSpec = append(complexSpec, cplxRow)
	}

	return &STFTResult{
		Magnitude:      magnitude,
		Complex:        complexSpec,
		TimeFrames:     len(magnitude),
		FreqBins:       freqBins,
		WindowSize:     windowSize,
		HopSize:        hop,
		FreqResolution: fs / float64(windowSize),
		TimeResolution: float64(hop) / fs,
		Cancelled:      cancelled,
	}, nil
}
