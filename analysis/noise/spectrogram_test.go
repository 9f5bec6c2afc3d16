package noise

import (
	"context"
	"errors"
	"testing"

	"github.com/scopelab/tracedsp/analysis/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpectrogramStructure(t *testing.T) {
	x := noiseRecord(65536, 1.0, 21)

	res, err := Spectrogram(context.Background(), x, 48000, SpectrogramOptions{NFFT: 2048, Hop: 1024, TopK: 5})
	require.NoError(t, err)
	require.NotNil(t, res.Image)

	bins := 2048/2 + 1
	frames := (65536-2048)/1024 + 1
	assert.Len(t, res.Image.Data, bins)
	assert.Len(t, res.Image.Data[0], frames)
	assert.LessOrEqual(t, res.Image.VMin, res.Image.VMax)
	assert.Equal(t, "Time (s)", res.Image.XLabel)
	assert.Equal(t, "Frequency (Hz)", res.Image.YLabel)

	assert.LessOrEqual(t, len(res.Detections), 5)
	for _, d := range res.Detections {
		assert.Equal(t, "Occupancy_%", d.MetricName)
		assert.GreaterOrEqual(t, d.Metric, 0.0)
		assert.LessOrEqual(t, d.Metric, 100.0)
	}
}

func TestSpectrogramDetectionsRankedByOccupancy(t *testing.T) {
	x := mix(sineAt(2000, 1.0, 48000, 65536), noiseRecord(65536, 0.3, 22))

	res, err := Spectrogram(context.Background(), x, 48000, SpectrogramOptions{NFFT: 2048, Hop: 1024})
	require.NoError(t, err)

	for i := 1; i < len(res.Detections); i++ {
		assert.GreaterOrEqual(t, res.Detections[i-1].Metric, res.Detections[i].Metric,
			"detections must be ordered by occupancy")
	}
}

func TestSpectrogramCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Spectrogram(ctx, noiseRecord(65536, 1.0, 23), 48000, SpectrogramOptions{})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Empty(t, res.Detections)
}

func TestSpectrogramInputErrors(t *testing.T) {
	_, err := Spectrogram(context.Background(), nil, 48000, SpectrogramOptions{})
	assert.True(t, errors.Is(err, common.ErrEmptySignal))

	_, err = Spectrogram(context.Background(), noiseRecord(16, 1.0, 24), 48000, SpectrogramOptions{})
	assert.True(t, errors.Is(err, common.ErrInsufficientSamples),
		"records below the minimum segment length are refused")
}

func TestSpectralKurtosisBurst(t *testing.T) {
	x := noiseRecord(65536, 0.001, 31)
	burst := noiseRecord(400, 5.0, 32)
	for i := range burst {
		x[20000+i] += burst[i]
	}

	res, err := SpectralKurtosis(context.Background(), x, 48000, SpectralKurtosisOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.Image)
	require.NotEmpty(t, res.Detections, "wideband burst should raise spectral kurtosis")

	for _, d := range res.Detections {
		assert.Equal(t, "sk", d.Type)
		assert.Equal(t, "SK", d.MetricName)
		assert.GreaterOrEqual(t, d.Metric, 2.5)
	}
}

func TestSpectralKurtosisSteadyTone(t *testing.T) {
	x := sineAt(3000, 1.0, 48000, 65536)

	res, err := SpectralKurtosis(context.Background(), x, 48000, SpectralKurtosisOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Detections, "a persistent tone is not impulsive")
}

func TestSpectralKurtosisImageNormalized(t *testing.T) {
	res, err := SpectralKurtosis(context.Background(), noiseRecord(32768, 1.0, 33), 48000, SpectralKurtosisOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.Image)

	assert.Equal(t, 0.0, res.Image.VMin)
	assert.Equal(t, 1.0, res.Image.VMax)
	for _, row := range res.Image.Data {
		for _, v := range row {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestSpectralKurtosisInputErrors(t *testing.T) {
	_, err := SpectralKurtosis(context.Background(), nil, 48000, SpectralKurtosisOptions{})
	assert.True(t, errors.Is(err, common.ErrEmptySignal))

	_, err = SpectralKurtosis(context.Background(), noiseRecord(16, 1.0, 25), 48000, SpectralKurtosisOptions{})
	assert.True(t, errors.Is(err, common.ErrInsufficientSamples),
		"records below the minimum segment length are refused")
}

func TestSpectralKurtosisCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := SpectralKurtosis(ctx, noiseRecord(65536, 1.0, 34), 48000, SpectralKurtosisOptions{})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Empty(t, res.Detections)
}
