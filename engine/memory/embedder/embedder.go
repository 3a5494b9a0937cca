// Package embedder turns text into vectors for the memory index. The real
// backend rides langchaingo's embeddings stack; a deterministic hash
// embedder keeps the runtime functional with zero credentials.
package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"

	"github.com/aionlabs/aion/engine/core"
)

// Embedder is the single-text contract the memory layer consumes.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension is the width of produced vectors.
	Dimension() int
}

// langchainEmbedder adapts a langchaingo embedder to the local contract.
type langchainEmbedder struct {
	inner     embeddings.Embedder
	dimension int
}

// NewLangchain wraps a langchaingo embedder client.
func NewLangchain(client embeddings.EmbedderClient, dimension int) (Embedder, error) {
	if client == nil {
		return nil, core.NewError(errors.New("embedder client is required"), "MISSING_DEPENDENCY", nil)
	}
	inner, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("embedder: wrap client: %w", err)
	}
	return &langchainEmbedder{inner: inner, dimension: dimension}, nil
}

func (e *langchainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedder: embed query: %w", err)
	}
	return vec, nil
}

func (e *langchainEmbedder) Dimension() int {
	return e.dimension
}

// Cached wraps an embedder with an LRU keyed by content hash, so repeated
// dedup scans and retrievals of the same text cost one backend call.
type Cached struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

func NewCached(inner Embedder, size int) (*Cached, error) {
	if inner == nil {
		return nil, core.NewError(errors.New("inner embedder is required"), "MISSING_DEPENDENCY", nil)
	}
	if size <= 0 {
		size = 2048
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("embedder: create cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

func (c *Cached) Dimension() int {
	return c.inner.Dimension()
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
