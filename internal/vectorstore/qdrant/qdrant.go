// Package qdrant connects the retriever to a remote Qdrant collection through langchaingo.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	lcqdrant "github.com/tmc/langchaingo/vectorstores/qdrant"
)

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config contains connection details for a Qdrant vector store.
type Config struct {
	URL        string
	APIKey     string
	Collection string
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: URL required", ErrInvalidConfig)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	return nil
}

// Store is a Qdrant-backed vector store. The collection is expected to exist.
type Store struct {
	store lcqdrant.Store
}

// New creates a Store that embeds queries with emb.
func New(cfg Config, emb embeddings.Embedder) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing Qdrant URL: %w", err)
	}
	opts := []lcqdrant.Option{
		lcqdrant.WithURL(*u),
		lcqdrant.WithCollectionName(cfg.Collection),
		lcqdrant.WithEmbedder(emb),
	}
	if cfg.APIKey != "" {
		opts = append(opts, lcqdrant.WithAPIKey(cfg.APIKey))
	}
	store, err := lcqdrant.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating Qdrant store: %w", err)
	}
	return &Store{store: store}, nil
}

// AddDocuments embeds and upserts docs.
func (s *Store) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	return s.store.AddDocuments(ctx, docs, options...)
}

// SimilaritySearch returns up to numDocuments nearest documents.
func (s *Store) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	return s.store.SimilaritySearch(ctx, query, numDocuments, options...)
}
