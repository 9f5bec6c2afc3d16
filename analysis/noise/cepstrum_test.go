package noise

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopelab/tracedsp/analysis/common"
)

// impulseTrain has a perfectly flat harmonic comb, the cleanest possible
// cepstral peak at its period.
func impulseTrain(period, n int) []float64 {
	x := make([]float64, n)
	for i := 0; i < n; i += period {
		x[i] = 1.0
	}
	return x
}

func TestCepstrumDetectsCombSpacing(t *testing.T) {
	const fs = 48000.0
	x := impulseTrain(96, 16384) // 48000/96 = 500 Hz spacing

	res, err := Cepstrum(context.Background(), x, fs, CepstrumOptions{NFFT: 8192, QMinMs: 0.5, QMaxMs: 5.0})
	require.NoError(t, err)
	require.NotEmpty(t, res.Detections)

	found := false
	for _, d := range res.Detections {
		assert.Equal(t, "comb", d.Type)
		assert.Equal(t, "fundamental spacing", d.Notes)
		if math.Abs(d.F0Hz-500.0) < 25.0 {
			found = true
		}
	}
	assert.True(t, found, "500 Hz comb spacing should appear in the top peaks")
}

func TestCepstrumQuefrencyWindow(t *testing.T) {
	const fs = 48000.0
	res, err := Cepstrum(context.Background(), impulseTrain(96, 16384), fs,
		CepstrumOptions{QMinMs: 0.5, QMaxMs: 4.0})
	require.NoError(t, err)
	require.NotEmpty(t, res.PlotX)

	// Equivalent-frequency axis: every point inverts a quefrency inside
	// the configured window
	for _, f := range res.PlotX {
		assert.GreaterOrEqual(t, f, 1.0/(4.0e-3)-1e-9)
		assert.LessOrEqual(t, f, 1.0/(0.5e-3)+1e-9)
	}
}

func TestCepstrumInputErrors(t *testing.T) {
	_, err := Cepstrum(context.Background(), nil, 48000, CepstrumOptions{})
	assert.True(t, errors.Is(err, common.ErrEmptySignal))

	_, err = Cepstrum(context.Background(), impulseTrain(96, 4096), 0, CepstrumOptions{})
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))
}

func TestCepstrumCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Cepstrum(ctx, impulseTrain(96, 16384), 48000, CepstrumOptions{})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Empty(t, res.Detections)
}

func TestARSpectrumDetectsResonance(t *testing.T) {
	const fs = 8192.0
	x := mix(sineAt(1000, 1.0, fs, 8192), noiseRecord(8192, 0.1, 41))

	res, err := ARSpectrum(context.Background(), x, fs, ARSpectrumOptions{Order: 32, NFFT: 4096})
	require.NoError(t, err)
	require.NotEmpty(t, res.Detections)

	found := false
	for _, d := range res.Detections {
		assert.Equal(t, "ar", d.Type)
		if math.Abs(d.F0Hz-1000.0) < 10.0 {
			found = true
		}
	}
	assert.True(t, found, "AR pole should sit near the tone")
}

func TestARSpectrumInsufficientSamples(t *testing.T) {
	_, err := ARSpectrum(context.Background(), noiseRecord(40, 1.0, 1), 48000, ARSpectrumOptions{Order: 32})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrInsufficientSamples))
}

func TestARSpectrumInputErrors(t *testing.T) {
	_, err := ARSpectrum(context.Background(), nil, 48000, ARSpectrumOptions{})
	assert.True(t, errors.Is(err, common.ErrEmptySignal))

	_, err = ARSpectrum(context.Background(), noiseRecord(4096, 1.0, 1), 0, ARSpectrumOptions{})
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))
}

func TestLevinsonDurbinRecoversAR1(t *testing.T) {
	// Exact AR(1) autocorrelation with a = 0.5: r[k] = a^k
	r := []float64{1.0, 0.5, 0.25, 0.125}

	phi, noiseVar := levinsonDurbin(r, 1)
	require.Len(t, phi, 1)
	assert.InDelta(t, 0.5, phi[0], 1e-12)
	assert.InDelta(t, 0.75, noiseVar, 1e-12)

	// Over-ordered fit on the same sequence: extra coefficients vanish
	phi, _ = levinsonDurbin(r, 3)
	assert.InDelta(t, 0.5, phi[0], 1e-12)
	assert.InDelta(t, 0.0, phi[1], 1e-12)
	assert.InDelta(t, 0.0, phi[2], 1e-12)
}

func TestLevinsonDurbinRecoversAR2(t *testing.T) {
	// Yule-Walker autocorrelation of phi = (0.5, -0.25)
	r := []float64{1.0, 0.4, -0.05}

	phi, _ := levinsonDurbin(r, 2)
	require.Len(t, phi, 2)
	assert.InDelta(t, 0.5, phi[0], 1e-12)
	assert.InDelta(t, -0.25, phi[1], 1e-12)
}

func TestAutocorrelationLagZeroIsPower(t *testing.T) {
	x := []float64{1, -1, 1, -1}
	r := autocorrelation(x, 2)
	assert.InDelta(t, 1.0, r[0], 1e-12)
	assert.InDelta(t, -0.75, r[1], 1e-12)
	assert.InDelta(t, 0.5, r[2], 1e-12)
}
