package similarity

import (
	"context"
	"testing"

	"github.com/starford/ansuz/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docs() []Doc {
	return []Doc{
		{ID: "a", Text: "working memory capacity limits", Attrs: map[string]string{"kind": "permanent", "domain": "psychology"}},
		{ID: "b", Text: "working memory and attention", Attrs: map[string]string{"kind": "permanent", "domain": "psychology"}},
		{ID: "c", Text: "thermodynamics entropy heat", Attrs: map[string]string{"kind": "permanent", "domain": "physics"}},
		{ID: "lit", Text: "working memory capacity limits source", Attrs: map[string]string{"kind": "literature"}},
	}
}

func exercise(t *testing.T, idx Index) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, docs()...))

	hits, err := idx.Query(ctx, "working memory capacity limits", 10, Filter{
		Exclude:      []string{"a"},
		ExcludeAttrs: map[string]string{"kind": "literature"},
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "b", hits[0].ID)
	assert.Equal(t, "c", hits[1].ID)
	assert.Less(t, hits[0].Distance, hits[1].Distance)

	hits, err = idx.Query(ctx, "memory", 10, Filter{Match: map[string]string{"domain": "physics"}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c", hits[0].ID)

	hits, err = idx.Query(ctx, "memory", 1, Filter{})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestMemoryIndex(t *testing.T) {
	m := NewMemory(testutil.HashEmbedder{Dim: 1024})
	exercise(t, m)
	assert.Equal(t, 4, m.Len())
}

func TestSQLiteIndex(t *testing.T) {
	exercise(t, NewSQLite(testutil.HashEmbedder{Dim: 1024}, testutil.TestDB(t)))
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, cosineDistance([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 1, cosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 1, cosineDistance([]float32{0, 0}, []float32{0, 1}), 1e-9)
}

func TestNewBackends(t *testing.T) {
	idx, err := New(BackendNone, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, idx)

	idx, err = New(BackendMemory, testutil.HashEmbedder{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, idx)

	_, err = New(BackendSQLite, testutil.HashEmbedder{}, nil)
	assert.Error(t, err)

	_, err = New("faiss", nil, nil)
	assert.Error(t, err)
}

func TestFixedDim(t *testing.T) {
	ctx := context.Background()
	ok := FixedDim{Embedder: testutil.HashEmbedder{Dim: 32}, Dim: 32}
	vecs, err := ok.Embed(ctx, []string{"a b", "c"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)

	bad := FixedDim{Embedder: testutil.HashEmbedder{Dim: 32}, Dim: 768}
	_, err = bad.Embed(ctx, []string{"a"})
	assert.ErrorContains(t, err, "want 768")

	idx := NewMemory(bad)
	assert.Error(t, idx.Index(ctx, docs()...))
	assert.Zero(t, idx.Len())
}
