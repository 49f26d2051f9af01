package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedderDeterministic(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	a, err := e.Embed(context.Background(), "the whiteness of the whale")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "the whiteness of the whale")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestStaticEmbedderUnitNorm(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "call me Ishmael")
	require.NoError(t, err)
	require.Len(t, vec, StaticDimensions)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 0.0001)
}

func TestStaticEmbedderEmptyText(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	require.Len(t, vec, StaticDimensions)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestStaticEmbedderSimilarVsDissimilar(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	ctx := context.Background()
	whale1, err := e.Embed(ctx, "the white whale breached the waves")
	require.NoError(t, err)
	whale2, err := e.Embed(ctx, "a white whale rose above the waves")
	require.NoError(t, err)
	tax, err := e.Embed(ctx, "quarterly corporate income tax filings")
	require.NoError(t, err)

	assert.Greater(t, dot(whale1, whale2), dot(whale1, tax))
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestStaticEmbedderBatch(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	texts := []string{"one fish", "two fish", "red fish"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	single, err := e.Embed(context.Background(), "two fish")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[1])
}

func TestStaticEmbedderClosed(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)
	_, err = e.EmbedBatch(context.Background(), []string{"text"})
	assert.Error(t, err)
}

func TestNormalizeVectorZero(t *testing.T) {
	v := []float32{0, 0, 0}
	assert.Equal(t, v, normalizeVector(v))
}

func TestCachedEmbedderReturnsSameVector(t *testing.T) {
	c := NewCachedEmbedder(NewStaticEmbedder(), 10)
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	a, err := c.Embed(ctx, "repeated query")
	require.NoError(t, err)
	b, err := c.Embed(ctx, "repeated query")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestCachedEmbedderBatchMixedHits(t *testing.T) {
	c := NewCachedEmbedder(NewStaticEmbedder(), 10)
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	warm, err := c.Embed(ctx, "cached already")
	require.NoError(t, err)

	vecs, err := c.EmbedBatch(ctx, []string{"fresh one", "cached already", "fresh two"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, warm, vecs[1])

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 0.0001)
}

func TestCachedEmbedderPassthrough(t *testing.T) {
	inner := NewStaticEmbedder()
	c := NewCachedEmbedder(inner, 10)
	defer func() { _ = c.Close() }()

	assert.Equal(t, StaticDimensions, c.Dimensions())
	assert.Equal(t, "static", c.ModelName())
}
