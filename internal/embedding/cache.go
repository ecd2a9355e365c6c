package embedding

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/tmc/langchaingo/embeddings"
)

// CachedEmbedder remembers query embeddings for a while, so repeated
// questions do not hit a remote embedding model again.
type CachedEmbedder struct {
	embeddings.Embedder
	cache *cache.Cache
}

// WithQueryCache wraps emb with a query cache. A non-positive ttl returns emb unchanged.
func WithQueryCache(emb embeddings.Embedder, ttl time.Duration) embeddings.Embedder {
	if ttl <= 0 {
		return emb
	}
	return &CachedEmbedder{Embedder: emb, cache: cache.New(ttl, 2*ttl)}
}

// EmbedQuery returns the cached vector for text or computes and stores it.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if x, found := c.cache.Get(text); found {
		return x.([]float32), nil
	}
	v, err := c.Embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, v, cache.DefaultExpiration)
	return v, nil
}

// Prepare forwards to the wrapped embedder and drops vectors computed
// against the previous vocabulary.
func (c *CachedEmbedder) Prepare(corpus []string) error {
	p, ok := c.Embedder.(Preparer)
	if !ok {
		return nil
	}
	if err := p.Prepare(corpus); err != nil {
		return err
	}
	c.cache.Flush()
	return nil
}
