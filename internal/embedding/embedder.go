// Package embedding selects the embedder used to index and query the corpus.
package embedding

import (
	"fmt"

	"github.com/tmc/langchaingo/embeddings"

	"ragflow/internal/config"
	"ragflow/internal/embedding/tfidf"
)

// Preparer is implemented by embedders that must see the corpus before embedding.
type Preparer interface {
	Prepare(corpus []string) error
}

// New returns the embedder named by cfg.Type. An empty type, or one naming a
// generation backend, uses the provider's embedding client.
func New(cfg config.EmbedderConfig, client embeddings.EmbedderClient) (embeddings.Embedder, error) {
	switch cfg.Type {
	case "tfidf":
		return tfidf.NewEmbedder(), nil
	case "", string(config.BackendOllama), string(config.BackendOpenAI):
		if client == nil {
			return nil, fmt.Errorf("no embedding client for embedder %q", cfg.Type)
		}
		emb, err := embeddings.NewEmbedder(client)
		if err != nil {
			return nil, fmt.Errorf("creating embedder: %w", err)
		}
		return emb, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

// Prepare feeds corpus to emb when it needs a preparation phase.
func Prepare(emb embeddings.Embedder, corpus []string) error {
	if p, ok := emb.(Preparer); ok {
		return p.Prepare(corpus)
	}
	return nil
}
