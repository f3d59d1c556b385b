package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/memograph/memory"
)

type failingExtractor struct{}

func (failingExtractor) Keywords(ctx context.Context, text string) ([]string, error) {
	return nil, errors.New("model unavailable")
}

func TestEmbedDeterministic(t *testing.T) {
	b := NewBuilder(StaticExtractor{"redis", "pipeline"})
	ctx := context.Background()

	v1, err := b.Embed(ctx, "Use pipelines for every multi-key write")
	require.NoError(t, err)
	v2, err := b.Embed(ctx, "Use pipelines for every multi-key write")
	require.NoError(t, err)

	assert.Len(t, v1, memory.VectorSize)
	assert.Equal(t, v1, v2)
}

func TestEmbedUnitNorm(t *testing.T) {
	b := NewBuilder(nil)
	v, err := b.Embed(context.Background(), "some nonempty content")
	require.NoError(t, err)

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestEmbedEmptyTextIsZeroVector(t *testing.T) {
	b := NewBuilder(nil)
	v, err := b.Embed(context.Background(), "")
	require.NoError(t, err)

	assert.Len(t, v, memory.VectorSize)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestEmbedKeywordsLandInUpperHalf(t *testing.T) {
	ctx := context.Background()
	plain, err := NewBuilder(nil).Embed(ctx, "short text")
	require.NoError(t, err)
	keyed, err := NewBuilder(StaticExtractor{"redis"}).Embed(ctx, "short text")
	require.NoError(t, err)

	// Without keywords the upper 64 buckets stay empty.
	for i := 64; i < memory.VectorSize; i++ {
		assert.Zero(t, plain[i])
	}
	var upper float64
	for i := 64; i < memory.VectorSize; i++ {
		upper += keyed[i]
	}
	assert.Greater(t, upper, 0.0)
}

func TestEmbedExtractorFailureDegrades(t *testing.T) {
	ctx := context.Background()
	got, err := NewBuilder(failingExtractor{}).Embed(ctx, "fallback please")
	require.NoError(t, err)
	want, err := NewBuilder(nil).Embed(ctx, "fallback please")
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestEmbedHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBuilder(nil).Embed(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCosineSimilarity(t *testing.T) {
	a := []float64{1, 0, 0}
	b := []float64{1, 0, 0}
	c := []float64{0, 1, 0}

	got, err := CosineSimilarity(a, b)
	assert.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-12)

	got, err = CosineSimilarity(a, c)
	assert.NoError(t, err)
	assert.InDelta(t, 0.0, got, 1e-12)

	// Zero vectors compare as 0, not NaN.
	got, err = CosineSimilarity(a, []float64{0, 0, 0})
	assert.NoError(t, err)
	assert.Zero(t, got)

	_, err = CosineSimilarity(a, []float64{1})
	assert.Error(t, err)
	assert.True(t, memory.IsInvalidInput(err))
}

func TestSimilarTextScoresHigher(t *testing.T) {
	b := NewBuilder(nil)
	ctx := context.Background()

	query, _ := b.Embed(ctx, "redis connection pool settings")
	near, _ := b.Embed(ctx, "redis connection pool tuning")
	far, _ := b.Embed(ctx, "weekly grocery shopping list")

	simNear, err := CosineSimilarity(query, near)
	require.NoError(t, err)
	simFar, err := CosineSimilarity(query, far)
	require.NoError(t, err)

	assert.Greater(t, simNear, simFar)
}
