package similarity

import (
	"context"
	"fmt"
	"sync"
)

type entry struct {
	vec   []float32
	attrs map[string]string
}

// Memory is an in-process index. Safe for concurrent use.
type Memory struct {
	embedder Embedder

	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemory returns an empty in-memory index.
func NewMemory(e Embedder) *Memory {
	return &Memory{embedder: e, entries: make(map[string]entry)}
}

// Index embeds and stores docs, replacing earlier entries with the same ID.
func (m *Memory) Index(ctx context.Context, docs ...Doc) error {
	if len(docs) == 0 {
		return nil
	}
	vecs, err := embedDocs(ctx, m.embedder, docs)
	if err != nil {
		return fmt.Errorf("similarity: embed: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("similarity: embed returned %d vectors for %d docs", len(vecs), len(docs))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range docs {
		m.entries[d.ID] = entry{vec: vecs[i], attrs: d.Attrs}
	}
	return nil
}

// Query returns the topK nearest entries that pass f.
func (m *Memory) Query(ctx context.Context, text string, k int, f Filter) ([]Hit, error) {
	q, err := embedOne(ctx, m.embedder, text)
	if err != nil {
		return nil, fmt.Errorf("similarity: embed query: %w", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	hits := make([]Hit, 0, len(m.entries))
	for id, e := range m.entries {
		if !f.allows(id, e.attrs) {
			continue
		}
		hits = append(hits, Hit{ID: id, Distance: cosineDistance(q, e.vec), Attrs: e.attrs})
	}
	return topK(hits, k), nil
}

// Len returns the number of indexed entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
