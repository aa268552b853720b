// Package similarity provides nearest-neighbour lookup over record embeddings.
package similarity

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/starford/ansuz/internal/generation"
)

// Doc is one indexed record.
type Doc struct {
	ID    string
	Text  string
	Attrs map[string]string
}

// Hit is one query result. Distance is 1 - cosine similarity.
type Hit struct {
	ID       string
	Distance float64
	Attrs    map[string]string
}

// Filter restricts query results. Exclude drops IDs; Match requires each
// attribute to equal the given value; ExcludeAttrs drops hits whose
// attribute equals the given value.
type Filter struct {
	Exclude      []string
	Match        map[string]string
	ExcludeAttrs map[string]string
}

// Index is the similarity-index contract used by the linker.
type Index interface {
	Index(ctx context.Context, docs ...Doc) error
	Query(ctx context.Context, text string, topK int, f Filter) ([]Hit, error)
}

// Embedder is re-exported so callers need not import generation.
type Embedder = generation.Embedder

func (f Filter) allows(id string, attrs map[string]string) bool {
	for _, x := range f.Exclude {
		if x == id {
			return false
		}
	}
	for k, v := range f.Match {
		if attrs[k] != v {
			return false
		}
	}
	for k, v := range f.ExcludeAttrs {
		if attrs[k] == v {
			return false
		}
	}
	return true
}

// cosineDistance returns 1 - cos(a, b). Vectors of different length are
// compared over their common prefix; zero vectors are maximally distant.
func cosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// topK sorts hits by ascending distance (ties by ID) and keeps k.
func topK(hits []Hit, k int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func embedDocs(ctx context.Context, e Embedder, docs []Doc) ([][]float32, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	return e.Embed(ctx, texts)
}

func embedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return vecs[0], nil
}

// FixedDim wraps an embedder and rejects vectors whose length is not Dim.
type FixedDim struct {
	Embedder Embedder
	Dim      int
}

// Embed implements Embedder.
func (f FixedDim) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	vecs, err := f.Embedder.Embed(ctx, inputs)
	if err != nil {
		return nil, err
	}
	for _, v := range vecs {
		if len(v) != f.Dim {
			return nil, fmt.Errorf("similarity: embedding has %d dimensions, want %d", len(v), f.Dim)
		}
	}
	return vecs, nil
}
