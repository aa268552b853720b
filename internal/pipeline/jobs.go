package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/index"
)

// JobStatus is the lifecycle state of a submitted job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Job is an asynchronous pipeline run.
type Job struct {
	ID        string     `json:"id"`
	Path      string     `json:"path"`
	Status    JobStatus  `json:"status"`
	Stage     Stage      `json:"stage,omitempty"`
	Progress  float64    `json:"progress"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Finished reports whether the job reached a terminal state.
func (j *Job) Finished() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// JobStore persists jobs.
type JobStore interface {
	Get(ctx context.Context, id string) (*Job, error)
	Put(ctx context.Context, j *Job) error
	List(ctx context.Context) ([]*Job, error)
}

var (
	_ JobStore = (*MemoryJobStore)(nil)
	_ JobStore = (*SQLiteJobStore)(nil)
)

// MemoryJobStore keeps jobs in process memory.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewMemoryJobStore returns an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]Job)}
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("pipeline: job %s: %w", id, apperr.ErrNotFound)
	}
	return &j, nil
}

func (s *MemoryJobStore) Put(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = *j
	return nil
}

// List returns jobs newest first.
func (s *MemoryJobStore) List(_ context.Context) ([]*Job, error) {
	s.mu.RLock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		j := j
		out = append(out, &j)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

// SQLiteJobStore keeps jobs in the index database so they survive restarts.
type SQLiteJobStore struct {
	db    index.JobStore
	limit int
}

// NewSQLiteJobStore returns a store over db. List returns at most limit jobs.
func NewSQLiteJobStore(db index.JobStore, limit int) *SQLiteJobStore {
	if limit <= 0 {
		limit = 100
	}
	return &SQLiteJobStore{db: db, limit: limit}
}

func (s *SQLiteJobStore) Get(ctx context.Context, id string) (*Job, error) {
	row, err := s.db.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return decodeJob(row.Data)
}

func (s *SQLiteJobStore) Put(ctx context.Context, j *Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("pipeline: encode job: %w", err)
	}
	return s.db.PutJob(ctx, index.JobRow{
		ID:        j.ID,
		Status:    string(j.Status),
		Data:      data,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	})
}

func (s *SQLiteJobStore) List(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.ListJobs(ctx, s.limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Job, 0, len(rows))
	for _, row := range rows {
		j, err := decodeJob(row.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

func decodeJob(data []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("pipeline: decode job: %w", err)
	}
	return &j, nil
}
