package similarity

import (
	"context"
	"fmt"

	"github.com/starford/ansuz/internal/index"
)

// SQLite keeps vectors in the index database so they survive restarts.
// Queries scan every stored vector.
type SQLite struct {
	embedder Embedder
	store    index.VectorStore
}

// NewSQLite returns an index backed by store.
func NewSQLite(e Embedder, store index.VectorStore) *SQLite {
	return &SQLite{embedder: e, store: store}
}

// Index embeds and persists docs.
func (s *SQLite) Index(ctx context.Context, docs ...Doc) error {
	if len(docs) == 0 {
		return nil
	}
	vecs, err := embedDocs(ctx, s.embedder, docs)
	if err != nil {
		return fmt.Errorf("similarity: embed: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("similarity: embed returned %d vectors for %d docs", len(vecs), len(docs))
	}
	for i, d := range docs {
		if err := s.store.PutEmbedding(ctx, index.EmbeddingRow{ID: d.ID, Vector: vecs[i], Attrs: d.Attrs}); err != nil {
			return fmt.Errorf("similarity: %w", err)
		}
	}
	return nil
}

// Query returns the topK nearest stored vectors that pass f.
func (s *SQLite) Query(ctx context.Context, text string, k int, f Filter) ([]Hit, error) {
	q, err := embedOne(ctx, s.embedder, text)
	if err != nil {
		return nil, fmt.Errorf("similarity: embed query: %w", err)
	}
	var hits []Hit
	err = s.store.Embeddings(ctx, func(e index.EmbeddingRow) error {
		if f.allows(e.ID, e.Attrs) {
			hits = append(hits, Hit{ID: e.ID, Distance: cosineDistance(q, e.Vector), Attrs: e.Attrs})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("similarity: %w", err)
	}
	return topK(hits, k), nil
}
