package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

// RecordRow represents a row in the records table.
type RecordRow struct {
	Path               string    `json:"path"`
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Kind               string    `json:"kind"`
	Status             string    `json:"status"`
	Domain             string    `json:"domain"`
	Tags               []string  `json:"tags"`
	ConnectionsCount   int       `json:"connections_count"`
	ConnectionsQuality float64   `json:"connections_quality"`
	Checksum           string    `json:"-"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// EdgeRow represents one outbound edge. Target is a record title.
type EdgeRow struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Strategy   string  `json:"strategy,omitempty"`
}

// RecordFilter narrows ListRecords.
type RecordFilter struct {
	Kind   string
	Domain string
	Limit  int
	Offset int
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	ID      string `json:"id"`
	Title   string `json:"title"`
	Kind    string `json:"kind"`
	Snippet string `json:"snippet"`
}

// GraphNode is a record in the graph view.
type GraphNode struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Title  string `json:"title"`
	Kind   string `json:"kind"`
	Domain string `json:"domain"`
}

// GraphLink is a resolved edge between two indexed records.
type GraphLink struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

const recordColumns = `path, id, title, kind, status, domain, tags, connections_count, connections_quality, checksum, updated_at`

// UpsertRecord inserts or replaces a record, its FTS entry, and outbound edges within a transaction.
func (db *DB) UpsertRecord(r RecordRow, body string, edges []EdgeRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if r.Tags == nil {
		r.Tags = []string{}
	}
	tagsJSON, _ := json.Marshal(r.Tags)
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}

	_, err = tx.Exec(`
		INSERT INTO records (path, id, title, kind, status, domain, tags, connections_count, connections_quality, checksum, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			id                  = excluded.id,
			title               = excluded.title,
			kind                = excluded.kind,
			status              = excluded.status,
			domain              = excluded.domain,
			tags                = excluded.tags,
			connections_count   = excluded.connections_count,
			connections_quality = excluded.connections_quality,
			checksum            = excluded.checksum,
			body                = excluded.body,
			updated_at          = excluded.updated_at
	`, r.Path, r.ID, r.Title, r.Kind, r.Status, r.Domain, string(tagsJSON),
		r.ConnectionsCount, r.ConnectionsQuality, r.Checksum, body, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert record: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, r.Path, r.Title, body, r.Tags); err != nil {
		return err
	}

	// Replace edges: delete old then bulk insert.
	_, _ = tx.Exec(`DELETE FROM edges WHERE source = ?`, r.Path)
	if len(edges) > 0 {
		stmt, err := tx.Prepare(`INSERT OR REPLACE INTO edges (source, target, type, confidence, strategy) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare edge insert: %w", err)
		}
		defer stmt.Close()
		for _, e := range edges {
			if _, err := stmt.Exec(r.Path, e.Target, e.Type, e.Confidence, e.Strategy); err != nil {
				return fmt.Errorf("index: insert edge: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteRecord removes a record, its FTS entry, and outbound edges.
func (db *DB) DeleteRecord(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM edges WHERE source = ?`, path)
	_, _ = tx.Exec(`DELETE FROM records WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a record, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM records WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns path → checksum for every indexed record.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM records`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// GetRecord looks a record up by ID.
func (db *DB) GetRecord(id string) (*RecordRow, error) {
	row := db.conn.QueryRow(`SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: record %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get record: %w", err)
	}
	return r, nil
}

// ListRecords returns one page of records plus the total count for the filter.
func (db *DB) ListRecords(f RecordFilter) ([]RecordRow, int, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Domain != "" {
		where = append(where, "domain = ?")
		args = append(args, f.Domain)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM records`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count records: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+recordColumns+` FROM records`+clause+` ORDER BY title LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list records: %w", err)
	}
	defer rows.Close()

	out := []RecordRow{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

// Inbound returns all edges whose target is the given title.
func (db *DB) Inbound(title string) ([]EdgeRow, error) {
	rows, err := db.conn.Query(`SELECT source, target, type, confidence, strategy FROM edges WHERE target = ? ORDER BY confidence DESC`, title)
	if err != nil {
		return nil, fmt.Errorf("index: inbound: %w", err)
	}
	defer rows.Close()

	var out []EdgeRow
	for rows.Next() {
		var e EdgeRow
		if err := rows.Scan(&e.Source, &e.Target, &e.Type, &e.Confidence, &e.Strategy); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Graph returns every record as a node and every edge whose target title
// resolves to an indexed record.
func (db *DB) Graph() ([]GraphNode, []GraphLink, error) {
	rows, err := db.conn.Query(`SELECT id, path, title, kind, domain FROM records ORDER BY path`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph nodes: %w", err)
	}
	nodes := []GraphNode{}
	for rows.Next() {
		var n GraphNode
		if err := rows.Scan(&n.ID, &n.Path, &n.Title, &n.Kind, &n.Domain); err != nil {
			rows.Close()
			return nil, nil, err
		}
		nodes = append(nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	lrows, err := db.conn.Query(`
		SELECT s.id, t.id, e.type, e.confidence
		FROM edges e
		JOIN records s ON s.path = e.source
		JOIN records t ON t.title = e.target
		ORDER BY s.id, t.id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph links: %w", err)
	}
	defer lrows.Close()
	links := []GraphLink{}
	for lrows.Next() {
		var l GraphLink
		if err := lrows.Scan(&l.Source, &l.Target, &l.Type, &l.Confidence); err != nil {
			return nil, nil, err
		}
		links = append(links, l)
	}
	return nodes, links, lrows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*RecordRow, error) {
	var (
		r    RecordRow
		tags string
	)
	if err := s.Scan(&r.Path, &r.ID, &r.Title, &r.Kind, &r.Status, &r.Domain, &tags,
		&r.ConnectionsCount, &r.ConnectionsQuality, &r.Checksum, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		r.Tags = []string{}
	}
	return &r, nil
}
