package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("Should produce deterministic normalized vectors", func(t *testing.T) {
		e := NewHash(128)
		a, err := e.Embed(ctx, "the quick brown fox")
		require.NoError(t, err)
		b, err := e.Embed(ctx, "the quick brown fox")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, 128)
		var norm float64
		for _, v := range a {
			norm += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, norm, 1e-5)
	})

	t.Run("Should keep similar texts closer than unrelated texts", func(t *testing.T) {
		e := NewHash(256)
		base, _ := e.Embed(ctx, "scheduled maintenance of the vector memory store")
		near, _ := e.Embed(ctx, "scheduled maintenance of the vector memory index")
		far, _ := e.Embed(ctx, "pelicans migrate across the southern hemisphere")
		assert.Greater(t, dot(base, near), dot(base, far))
	})

	t.Run("Should never return a zero vector", func(t *testing.T) {
		e := NewHash(64)
		vec, err := e.Embed(ctx, "")
		require.NoError(t, err)
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		assert.Positive(t, norm)
	})
}

// countingEmbedder records backend calls for cache tests.
type countingEmbedder struct {
	inner Embedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) Dimension() int { return c.inner.Dimension() }

func TestCached(t *testing.T) {
	t.Run("Should serve repeated texts from the cache", func(t *testing.T) {
		counting := &countingEmbedder{inner: NewHash(64)}
		cached, err := NewCached(counting, 16)
		require.NoError(t, err)
		ctx := context.Background()
		first, err := cached.Embed(ctx, "same text")
		require.NoError(t, err)
		second, err := cached.Embed(ctx, "same text")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, counting.calls)
		_, err = cached.Embed(ctx, "different text")
		require.NoError(t, err)
		assert.Equal(t, 2, counting.calls)
	})

	t.Run("Should require an inner embedder", func(t *testing.T) {
		_, err := NewCached(nil, 16)
		assert.Error(t, err)
	})
}

func dot(a, b []float32) float32 {
	var out float32
	for i := range a {
		out += a[i] * b[i]
	}
	return out
}
