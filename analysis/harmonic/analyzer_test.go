package harmonic

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopelab/tracedsp/analysis/common"
	"github.com/scopelab/tracedsp/analysis/windowing"
)

const (
	testFs = 8192.0
	testN  = 8192
)

func sineWave(freq, amp float64, n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/testFs)
	}
	return x
}

func addInPlace(dst, src []float64) {
	for i := range dst {
		dst[i] += src[i]
	}
}

func TestAnalyzePureSine(t *testing.T) {
	x := sineWave(64.0, 1.0, testN)

	res, err := NewAnalyzer(Config{}).Analyze(x, testFs)
	require.NoError(t, err)

	assert.InDelta(t, 64.0, res.F1Hz, testFs/float64(testN))
	assert.Less(t, res.THD, 0.005, "pure sine should have near-zero THD")
	assert.InDelta(t, 64.0, res.CoherenceCycles, 0.1)
	assert.Empty(t, res.Warnings)

	// Time-domain shape factors of a sine
	assert.InDelta(t, math.Sqrt2, res.Crest, 0.01)
	assert.InDelta(t, math.Pi/(2*math.Sqrt2), res.FormFactor, 0.01)
}

func TestAnalyzeKnownHarmonic(t *testing.T) {
	x := sineWave(64.0, 1.0, testN)
	addInPlace(x, sineWave(128.0, 0.1, testN))

	res, err := NewAnalyzer(Config{}).Analyze(x, testFs)
	require.NoError(t, err)
	require.NotEmpty(t, res.Rows)

	second := res.Rows[0]
	assert.Equal(t, 2, second.K)
	assert.InDelta(t, 128.0, second.FreqHz, 1e-6)
	assert.InDelta(t, 10.0, second.Percent, 1.0, "second harmonic level should be recovered")
	assert.InDelta(t, 0.10, res.THD, 0.01)
}

func TestAnalyzeTableOrdering(t *testing.T) {
	x := sineWave(500.0, 1.0, testN)
	addInPlace(x, sineWave(1000.0, 0.05, testN))
	addInPlace(x, sineWave(1500.0, 0.02, testN))

	res, err := NewAnalyzer(Config{NHarmonics: 25}).Analyze(x, testFs)
	require.NoError(t, err)

	nyquist := testFs / 2.0
	prevK := 1
	for _, row := range res.Rows {
		assert.Greater(t, row.K, prevK, "harmonic orders must be strictly increasing")
		assert.InDelta(t, float64(row.K)*res.F1Hz, row.FreqHz, 1e-6)
		assert.Less(t, row.FreqHz, nyquist)
		assert.GreaterOrEqual(t, row.MagRMS, 0.0)
		prevK = row.K
	}
}

func TestAnalyzeTHDNOptional(t *testing.T) {
	x := sineWave(64.0, 1.0, testN)

	res, err := NewAnalyzer(Config{}).Analyze(x, testFs)
	require.NoError(t, err)
	assert.Nil(t, res.THDN)
	assert.Nil(t, res.SINADdB)
	assert.Nil(t, res.SNRdB)

	res, err = NewAnalyzer(Config{ComputeTHDN: true}).Analyze(x, testFs)
	require.NoError(t, err)
	require.NotNil(t, res.THDN)
	require.NotNil(t, res.SINADdB)
	require.NotNil(t, res.SNRdB)
	assert.GreaterOrEqual(t, *res.THDN, 0.0)
	assert.False(t, math.IsNaN(*res.SINADdB))
	assert.Greater(t, *res.SNRdB, 20.0, "clean sine should have a high spectral SNR")
}

func TestAnalyzeEmptySignal(t *testing.T) {
	_, err := NewAnalyzer(Config{}).Analyze(nil, testFs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrEmptySignal))
}

func TestAnalyzeInvalidSampleRate(t *testing.T) {
	_, err := NewAnalyzer(Config{}).Analyze(sineWave(64, 1, 1024), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))

	_, err = NewAnalyzer(Config{}).Analyze(sineWave(64, 1, 1024), -48000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))
}

func TestAnalyzeConstantSignal(t *testing.T) {
	x := make([]float64, testN)
	for i := range x {
		x[i] = 2.5
	}

	res, err := NewAnalyzer(Config{}).Analyze(x, testFs)
	require.NoError(t, err, "degenerate input must warn, not fail")

	assert.Equal(t, 0.0, res.F1Hz)
	assert.Equal(t, 0.0, res.THD)
	assert.Empty(t, res.Rows)
	assert.Contains(t, res.Warnings, "No fundamental detected (f1<=0)")
}

func TestAnalyzeLowCycleWarning(t *testing.T) {
	x := sineWave(2.0, 1.0, testN) // two cycles in the buffer

	res, err := NewAnalyzer(Config{}).Analyze(x, testFs)
	require.NoError(t, err)
	assert.Contains(t, res.Warnings, "Low cycle count in buffer (<3 cycles)")
}

func TestAnalyzeLowOversamplingWarning(t *testing.T) {
	x := sineWave(1000.0, 1.0, testN) // fs/f0 = 8.192

	res, err := NewAnalyzer(Config{}).Analyze(x, testFs)
	require.NoError(t, err)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "fs/f0 ratio below 20")
}

func TestAnalyzeWindowChoice(t *testing.T) {
	x := sineWave(64.0, 1.0, testN)

	for _, tag := range []windowing.Tag{windowing.Rect, windowing.Hann, windowing.Flattop} {
		res, err := NewAnalyzer(Config{Window: tag}).Analyze(x, testFs)
		require.NoError(t, err, "window %s", tag)
		assert.InDelta(t, 64.0, res.F1Hz, 1.0, "window %s", tag)
		assert.Equal(t, tag, res.Window)
	}
}

func TestAnalyzeAmplitudeIndependentRatios(t *testing.T) {
	small := sineWave(100.0, 0.01, testN)
	addInPlace(small, sineWave(200.0, 0.001, testN))
	large := sineWave(100.0, 10.0, testN)
	addInPlace(large, sineWave(200.0, 1.0, testN))

	resSmall, err := NewAnalyzer(Config{}).Analyze(small, testFs)
	require.NoError(t, err)
	resLarge, err := NewAnalyzer(Config{}).Analyze(large, testFs)
	require.NoError(t, err)

	assert.InDelta(t, resSmall.THD, resLarge.THD, 1e-6)
	assert.InDelta(t, resSmall.Rows[0].Percent, resLarge.Rows[0].Percent, 1e-4)
}
