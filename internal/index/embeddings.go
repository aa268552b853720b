package index

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// EmbeddingRow is one stored vector with its filter attributes.
type EmbeddingRow struct {
	ID     string
	Vector []float32
	Attrs  map[string]string
}

// PutEmbedding inserts or replaces the vector for e.ID.
func (db *DB) PutEmbedding(ctx context.Context, e EmbeddingRow) error {
	attrs, err := json.Marshal(e.Attrs)
	if err != nil {
		return fmt.Errorf("index: marshal attrs: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO embeddings (id, dim, vector, attrs, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			dim        = excluded.dim,
			vector     = excluded.vector,
			attrs      = excluded.attrs,
			updated_at = excluded.updated_at
	`, e.ID, len(e.Vector), encodeVector(e.Vector), string(attrs), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("index: put embedding: %w", err)
	}
	return nil
}

// Embeddings streams every stored vector to fn. Iteration stops at the
// first error fn returns.
func (db *DB) Embeddings(ctx context.Context, fn func(EmbeddingRow) error) error {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, vector, attrs FROM embeddings`)
	if err != nil {
		return fmt.Errorf("index: embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e     EmbeddingRow
			blob  []byte
			attrs string
		)
		if err := rows.Scan(&e.ID, &blob, &attrs); err != nil {
			return err
		}
		e.Vector = decodeVector(blob)
		_ = json.Unmarshal([]byte(attrs), &e.Attrs)
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
