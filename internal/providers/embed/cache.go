package embed

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"github.com/sandevgo/mnemo/internal/core"
)

// CachedEmbedder memoizes embeddings by text. Recall queries repeat often
// within a session and remote embedding calls are the slowest step.
type CachedEmbedder struct {
	next  core.Embedder
	cache *ristretto.Cache
}

func NewCachedEmbedder(next core.Embedder, maxEntries int) (*CachedEmbedder, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(maxEntries) * 10,
		MaxCost:     int64(maxEntries),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

func (c *CachedEmbedder) key(text string) string {
	return c.next.Model() + "\x00" + text
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if v, ok := c.cache.Get(key); ok {
		return v.([]float32), nil
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, vec, 1)
	return vec, nil
}

func (c *CachedEmbedder) Dims() int {
	return c.next.Dims()
}

func (c *CachedEmbedder) Model() string {
	return c.next.Model()
}

// Wait blocks until pending cache writes are visible.
func (c *CachedEmbedder) Wait() {
	c.cache.Wait()
}

func (c *CachedEmbedder) Close() error {
	c.cache.Close()
	return nil
}
