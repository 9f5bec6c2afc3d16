package spectral

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopelab/tracedsp/analysis/common"
	"github.com/scopelab/tracedsp/analysis/windowing"
)

func sineWave(freq, fs float64, n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * freq * float64(i) / fs)
	}
	return x
}

func whiteNoise(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	x := make([]float64, n)
	for i := range x {
		x[i] = rng.NormFloat64()
	}
	return x
}

func TestWelchPSDTonePeak(t *testing.T) {
	const fs = 48000.0
	x := sineWave(1000.0, fs, 32768)

	res, err := WelchPSD(context.Background(), x, fs, WelchOptions{Seglen: 4096, Overlap: 0.5})
	require.NoError(t, err)
	require.Equal(t, 4096/2+1, len(res.Power))
	assert.False(t, res.Cancelled)
	assert.Greater(t, res.Segments, 1)

	peak := common.ArgMax(res.Power)
	assert.InDelta(t, 1000.0, res.Frequencies[peak], res.Df)
}

func TestWelchPSDPowerConservation(t *testing.T) {
	const fs = 10000.0
	x := whiteNoise(65536, 42)

	res, err := WelchPSD(context.Background(), x, fs, WelchOptions{Seglen: 4096, Overlap: 0.5})
	require.NoError(t, err)

	integral := 0.0
	for _, p := range res.Power {
		integral += p * res.Df
	}
	assert.InDelta(t, common.Variance(x), integral, 0.15)
}

func TestWelchPSDFrequencyAxis(t *testing.T) {
	res, err := WelchPSD(context.Background(), whiteNoise(8192, 1), 8192.0, WelchOptions{Seglen: 1024})
	require.NoError(t, err)

	assert.Equal(t, 8192.0/1024.0, res.Df)
	assert.Equal(t, 0.0, res.Frequencies[0])
	assert.InDelta(t, 4096.0, res.Frequencies[len(res.Frequencies)-1], 1e-9)
}

func TestWelchPSDErrors(t *testing.T) {
	_, err := WelchPSD(context.Background(), nil, 48000, WelchOptions{})
	assert.True(t, errors.Is(err, common.ErrEmptySignal))

	_, err = WelchPSD(context.Background(), sineWave(100, 48000, 1024), 0, WelchOptions{})
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))

	_, err = WelchPSD(context.Background(), sineWave(100, 48000, 64), 48000, WelchOptions{})
	assert.True(t, errors.Is(err, common.ErrInsufficientSamples))
}

func TestWelchPSDShortRecordClampsSegment(t *testing.T) {
	// 500 samples force the segment down from the requested 4096
	res, err := WelchPSD(context.Background(), whiteNoise(500, 7), 1000, WelchOptions{Seglen: 4096})
	require.NoError(t, err)
	assert.Equal(t, 500, res.Nperseg)
	assert.Equal(t, 1, res.Segments)
}

func TestWelchPSDCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := WelchPSD(ctx, whiteNoise(32768, 3), 48000, WelchOptions{Seglen: 4096})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 0, res.Segments)
	for _, p := range res.Power {
		assert.Equal(t, 0.0, p)
	}
}

func TestCrossPSDChannelMismatch(t *testing.T) {
	_, err := CrossPSD(context.Background(), whiteNoise(4096, 1), whiteNoise(2048, 2), 48000, WelchOptions{})
	assert.True(t, errors.Is(err, common.ErrChannelMismatch))
}

func TestCrossPSDIdenticalChannels(t *testing.T) {
	x := whiteNoise(16384, 9)
	res, err := CrossPSD(context.Background(), x, x, 48000, WelchOptions{Seglen: 2048, Overlap: 0.5})
	require.NoError(t, err)

	// x against itself: Pxy == Pxx at every bin
	for k := range res.Pxx {
		assert.InDelta(t, res.Pxx[k], real(res.Pxy[k]), 1e-6*math.Max(res.Pxx[k], 1))
		assert.InDelta(t, 0.0, imag(res.Pxy[k]), 1e-6*math.Max(res.Pxx[k], 1))
	}
}

func TestMultitaperPSDTonePeak(t *testing.T) {
	const fs = 48000.0
	x := sineWave(2000.0, fs, 16384)

	res, err := MultitaperPSD(context.Background(), x, fs, MultitaperOptions{Seglen: 4096, Overlap: 0.5, Tapers: 6})
	require.NoError(t, err)

	peak := common.ArgMax(res.Power)
	assert.InDelta(t, 2000.0, res.Frequencies[peak], 2*res.Df)
}

func TestSTFTFrameGeometry(t *testing.T) {
	x := whiteNoise(10240, 5)
	res, err := STFT(context.Background(), x, 48000, 1024, 512, windowing.Hann, false)
	require.NoError(t, err)

	assert.Equal(t, (10240-1024)/512+1, res.TimeFrames)
	assert.Equal(t, 1024/2+1, res.FreqBins)
	assert.Len(t, res.Magnitude, res.TimeFrames)
	assert.Len(t, res.Magnitude[0], res.FreqBins)
	assert.Equal(t, 48000.0/1024.0, res.FreqResolution)
}

func TestSTFTPadsShortRecord(t *testing.T) {
	x := sineWave(440, 48000, 300)

	_, err := STFT(context.Background(), x, 48000, 1024, 512, windowing.Hann, false)
	assert.True(t, errors.Is(err, common.ErrInsufficientSamples))

	res, err := STFT(context.Background(), x, 48000, 1024, 512, windowing.Hann, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TimeFrames)
}

func TestSTFTCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := STFT(ctx, whiteNoise(10240, 11), 48000, 1024, 512, windowing.Hann, false)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 0, res.TimeFrames)
}

func TestComputeSpectrumExactBin(t *testing.T) {
	const (
		fs = 8192.0
		n  = 8192
		f0 = 500.0
	)
	x := sineWave(f0, fs, n)

	res, err := Compute(x, fs, windowing.Rect, true)
	require.NoError(t, err)

	peak := common.ArgMax(res.Magnitudes)
	assert.Equal(t, 500, peak)
	// Full-scale sine at an exact bin: |X[k0]| = N/2
	assert.InDelta(t, float64(n)/2.0, res.Magnitudes[peak], 1.0)
}
