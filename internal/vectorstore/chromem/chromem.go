// Package chromem is an embedded, in-memory vector store built on chromem-go.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	chromem "github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// ErrEmptyDocuments is returned when AddDocuments gets nothing to add.
var ErrEmptyDocuments = errors.New("empty or nil documents")

// Store keeps one chromem collection and exposes the langchaingo vector store methods.
type Store struct {
	collection *chromem.Collection
}

// New creates an in-memory collection that embeds with emb.
func New(collection string, emb embeddings.Embedder) (*Store, error) {
	if emb == nil {
		return nil, errors.New("embedder is required")
	}
	db := chromem.NewDB()
	c, err := db.GetOrCreateCollection(collection, nil, func(ctx context.Context, text string) ([]float32, error) {
		return emb.EmbedQuery(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", collection, err)
	}
	return &Store{collection: c}, nil
}

// AddDocuments embeds and stores docs. Documents without an "id" metadata key
// get a positional ID.
func (s *Store) AddDocuments(ctx context.Context, docs []schema.Document, _ ...vectorstores.Option) ([]string, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}
	base := s.collection.Count()
	ids := make([]string, len(docs))
	cdocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		id, _ := d.Metadata["id"].(string)
		if id == "" {
			id = fmt.Sprintf("doc_%d", base+i)
		}
		ids[i] = id
		cdocs[i] = chromem.Document{
			ID:       id,
			Content:  d.PageContent,
			Metadata: stringMetadata(d.Metadata),
		}
	}
	if err := s.collection.AddDocuments(ctx, cdocs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("adding documents: %w", err)
	}
	return ids, nil
}

// SimilaritySearch returns up to numDocuments documents ordered by similarity.
func (s *Store) SimilaritySearch(ctx context.Context, query string, numDocuments int, _ ...vectorstores.Option) ([]schema.Document, error) {
	n := min(numDocuments, s.collection.Count())
	if n <= 0 {
		return []schema.Document{}, nil
	}
	res, err := s.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}
	out := make([]schema.Document, len(res))
	for i, r := range res {
		meta := make(map[string]any, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			meta[k] = v
		}
		meta["id"] = r.ID
		out[i] = schema.Document{PageContent: r.Content, Metadata: meta, Score: r.Similarity}
	}
	return out, nil
}

// Count returns the number of stored documents.
func (s *Store) Count() int { return s.collection.Count() }

func stringMetadata(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = fmt.Sprint(v)
	}
	return out
}
