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

// coupledTriple returns two tones plus their sum frequency with a locked
// phase relation, the canonical quadratic phase coupling signal.
func coupledTriple(f1, f2, fs float64, n int) []float64 {
	const p1, p2 = 0.3, 1.1
	x := make([]float64, n)
	for i := range x {
		tt := 2 * math.Pi * float64(i) / fs
		x[i] = math.Cos(f1*tt+p1) + math.Cos(f2*tt+p2) + math.Cos((f1+f2)*tt+p1+p2)
	}
	return x
}

func TestBicoherenceQuadraticCoupling(t *testing.T) {
	const (
		fs   = 5120.0
		nfft = 512 // df = 10 Hz
	)
	x := coupledTriple(200, 300, fs, 10240)

	res, err := Bicoherence(context.Background(), x, fs, BicoherenceOptions{NFFT: nfft})
	require.NoError(t, err)
	require.NotNil(t, res.Image)

	b2 := res.Image.Data
	assert.Greater(t, b2[20][30], 0.8, "coupled pair (200, 300) Hz should score near 1")
}

func TestBicoherenceBoundsAndTriangle(t *testing.T) {
	x := mix(coupledTriple(200, 300, 5120, 10240), noiseRecord(10240, 0.1, 81))

	res, err := Bicoherence(context.Background(), x, 5120, BicoherenceOptions{NFFT: 512})
	require.NoError(t, err)

	m := 512/2 + 1
	b2 := res.Image.Data
	require.Len(t, b2, m)
	for i := range b2 {
		for j := range b2[i] {
			assert.GreaterOrEqual(t, b2[i][j], 0.0)
			assert.LessOrEqual(t, b2[i][j], 1.0)
			if i+j >= m {
				assert.Equal(t, 0.0, b2[i][j], "outside the principal triangle (%d,%d)", i, j)
			}
		}
	}
}

func TestBicoherenceInsufficientSamples(t *testing.T) {
	_, err := Bicoherence(context.Background(), noiseRecord(256, 1, 1), 48000, BicoherenceOptions{NFFT: 512})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrInsufficientSamples))
}

func TestBicoherenceInputErrors(t *testing.T) {
	_, err := Bicoherence(context.Background(), nil, 48000, BicoherenceOptions{})
	assert.True(t, errors.Is(err, common.ErrEmptySignal))

	_, err = Bicoherence(context.Background(), noiseRecord(4096, 1, 1), 0, BicoherenceOptions{})
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))
}

func TestBicoherenceAccumulatorValidation(t *testing.T) {
	_, err := NewBicoherenceAccumulator(0, 0)
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))

	_, err = NewBicoherenceAccumulator(512, 512)
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))

	_, err = NewBicoherenceAccumulator(512, -1)
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))
}

func TestBicoherenceAccumulatorIncremental(t *testing.T) {
	acc, err := NewBicoherenceAccumulator(512, 256)
	require.NoError(t, err)

	block := coupledTriple(200, 300, 5120, 1024)
	require.NoError(t, acc.Update(context.Background(), block, 5120))
	framesAfterOne := acc.Finalize().Frames
	assert.Equal(t, 3, framesAfterOne)

	// A second block folds into the same statistics
	require.NoError(t, acc.Update(context.Background(), block, 5120))
	res := acc.Finalize()
	assert.Equal(t, 6, res.Frames)
	assert.Greater(t, res.Bicoherence[20][30], 0.8)
}

func TestBicoherenceAccumulatorShortBlockIsNoOp(t *testing.T) {
	acc, err := NewBicoherenceAccumulator(512, 256)
	require.NoError(t, err)

	require.NoError(t, acc.Update(context.Background(), noiseRecord(100, 1, 1), 5120))
	res := acc.Finalize()
	assert.Equal(t, 0, res.Frames)
	for i := range res.Bicoherence {
		for j := range res.Bicoherence[i] {
			assert.Equal(t, 0.0, res.Bicoherence[i][j])
		}
	}
}

func TestBicoherenceAccumulatorCancellation(t *testing.T) {
	acc, err := NewBicoherenceAccumulator(512, 256)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Cancellation mid-update leaves the accumulator usable, not poisoned
	require.NoError(t, acc.Update(ctx, coupledTriple(200, 300, 5120, 2048), 5120))
	require.NoError(t, acc.Update(context.Background(), coupledTriple(200, 300, 5120, 1024), 5120))
	assert.Equal(t, 3, acc.Finalize().Frames)
}
