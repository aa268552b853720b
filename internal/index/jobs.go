package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

// JobRow is a persisted job. Data holds the caller's JSON encoding.
type JobRow struct {
	ID        string
	Status    string
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PutJob inserts or replaces a job.
func (db *DB) PutJob(ctx context.Context, j JobRow) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO jobs (id, status, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status     = excluded.status,
			data       = excluded.data,
			updated_at = excluded.updated_at
	`, j.ID, j.Status, string(j.Data), j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: put job: %w", err)
	}
	return nil
}

// GetJob returns a job by ID.
func (db *DB) GetJob(ctx context.Context, id string) (*JobRow, error) {
	var (
		j    JobRow
		data string
	)
	err := db.conn.QueryRowContext(ctx, `SELECT id, status, data, created_at, updated_at FROM jobs WHERE id = ?`, id).
		Scan(&j.ID, &j.Status, &data, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: job %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get job: %w", err)
	}
	j.Data = []byte(data)
	return &j, nil
}

// ListJobs returns the most recent jobs first.
func (db *DB) ListJobs(ctx context.Context, limit int) ([]JobRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx, `SELECT id, status, data, created_at, updated_at FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("index: list jobs: %w", err)
	}
	defer rows.Close()

	var out []JobRow
	for rows.Next() {
		var (
			j    JobRow
			data string
		)
		if err := rows.Scan(&j.ID, &j.Status, &data, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		j.Data = []byte(data)
		out = append(out, j)
	}
	return out, rows.Err()
}
