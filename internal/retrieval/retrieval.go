// Package retrieval adapts a vector store to the pipeline's retrieval contract.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"ragflow/internal/domain"
)

// Searcher is the query side of a langchaingo vector store.
type Searcher interface {
	SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error)
}

// Client queries a Searcher and keeps at most TopK results in the store's order.
type Client struct {
	store   Searcher
	topK    int
	timeout time.Duration
}

// NewClient wraps store. topK defaults to 4, timeout to 30s.
func NewClient(store Searcher, topK int, timeout time.Duration) *Client {
	if topK <= 0 {
		topK = 4
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{store: store, topK: topK, timeout: timeout}
}

// Retrieve returns documents ranked by the store. Failures, including timeouts,
// are reported as domain.ErrRetrievalUnavailable.
func (c *Client) Retrieve(ctx context.Context, query string) ([]domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.store.SimilaritySearch(ctx, query, c.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRetrievalUnavailable, err)
	}
	if len(res) > c.topK {
		res = res[:c.topK]
	}
	out := make([]domain.Document, len(res))
	for i, d := range res {
		out[i] = domain.Document{Content: d.PageContent, Metadata: d.Metadata}
	}
	return out, nil
}
