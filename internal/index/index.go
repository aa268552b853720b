package index

import "context"

// RecordIndex defines the read/write surface of the record index.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type RecordIndex interface {
	UpsertRecord(row RecordRow, body string, edges []EdgeRow) error
	DeleteRecord(path string) error
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	GetRecord(id string) (*RecordRow, error)
	ListRecords(f RecordFilter) ([]RecordRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Graph() ([]GraphNode, []GraphLink, error)
	Inbound(title string) ([]EdgeRow, error)
	Close() error
}

// VectorStore persists embeddings for the similarity index.
type VectorStore interface {
	PutEmbedding(ctx context.Context, e EmbeddingRow) error
	Embeddings(ctx context.Context, fn func(EmbeddingRow) error) error
}

// JobStore persists pipeline jobs as opaque JSON documents.
type JobStore interface {
	PutJob(ctx context.Context, j JobRow) error
	GetJob(ctx context.Context, id string) (*JobRow, error)
	ListJobs(ctx context.Context, limit int) ([]JobRow, error)
}

// Verify *DB satisfies the interfaces at compile time.
var (
	_ RecordIndex = (*DB)(nil)
	_ VectorStore = (*DB)(nil)
	_ JobStore    = (*DB)(nil)
)
