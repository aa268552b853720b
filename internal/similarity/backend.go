package similarity

import (
	"fmt"

	"github.com/starford/ansuz/internal/index"
)

// Backend names accepted by New.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// New builds the configured backend. BackendNone (or "") returns a nil
// Index, which the linker treats as "similarity strategy disabled".
func New(backend string, e Embedder, store index.VectorStore) (Index, error) {
	switch backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return NewMemory(e), nil
	case BackendSQLite:
		if store == nil {
			return nil, fmt.Errorf("similarity: sqlite backend needs a vector store")
		}
		return NewSQLite(e, store), nil
	default:
		return nil, fmt.Errorf("similarity: unknown backend %q", backend)
	}
}
