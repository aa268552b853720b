// Package recordservice is the read side of the vault used by the HTTP API
// and the MCP server.
package recordservice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/mapmaint"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/similarity"
	"github.com/starford/ansuz/internal/storage"
)

// RecordDetail is the full representation of a record.
type RecordDetail struct {
	Path      string              `json:"path"`
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Kind      models.Kind         `json:"type"`
	Status    models.Status       `json:"status"`
	Domain    string              `json:"domain"`
	Tags      []string            `json:"tags"`
	Content   string              `json:"content"`
	Checksum  string              `json:"checksum"`
	LinksOut  []models.Edge       `json:"links_out"`
	LinksIn   []models.Edge       `json:"links_in"`
	Backlinks []string            `json:"backlinks"`
	Source    *models.Source      `json:"source,omitempty"`
	Quality   models.Quality      `json:"quality"`
	Zettel    models.Zettelkasten `json:"zettelkasten"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// RecordListItem is a lightweight item in a list response.
type RecordListItem = index.RecordRow

// MapSummary describes one map record.
type MapSummary struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Path    string        `json:"path"`
	Domain  string        `json:"domain"`
	Status  models.Status `json:"status"`
	Members int           `json:"members"`
}

// Service coordinates storage, index and similarity lookups.
type Service struct {
	store storage.Provider
	db    *index.DB
	sim   similarity.Index
}

// New creates a record service. sim may be nil, which disables semantic search.
func New(store storage.Provider, db *index.DB, sim similarity.Index) *Service {
	return &Service{store: store, db: db, sim: sim}
}

// Get returns a record by ID, or by vault path when ref names an existing file.
func (s *Service) Get(_ context.Context, ref string) (*RecordDetail, error) {
	path := ref
	if !s.store.Exists(ref) {
		row, err := s.db.GetRecord(ref)
		if err != nil {
			return nil, err
		}
		path = row.Path
	}
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("recordservice: %s: %w", ref, apperr.ErrNotFound)
		}
		return nil, err
	}
	return s.buildDetail(path, data)
}

// List returns one page of records plus the total for the filter.
func (s *Service) List(_ context.Context, f index.RecordFilter) ([]RecordListItem, int, error) {
	rows, total, err := s.db.ListRecords(f)
	if err != nil {
		return nil, 0, err
	}
	for i := range rows {
		rows[i].Tags = nonNilSlice(rows[i].Tags)
	}
	return rows, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// SemanticAvailable reports whether Similar can be used.
func (s *Service) SemanticAvailable() bool { return s.sim != nil }

// Similar ranks permanent and map records by embedding distance to text.
func (s *Service) Similar(ctx context.Context, text string, limit int) ([]index.SearchResult, error) {
	if s.sim == nil {
		return nil, fmt.Errorf("recordservice: semantic search: no similarity index configured")
	}
	if limit <= 0 {
		limit = 10
	}
	hits, err := s.sim.Query(ctx, text, limit, similarity.Filter{
		ExcludeAttrs: map[string]string{"kind": string(models.KindLiterature)},
	})
	if err != nil {
		return nil, fmt.Errorf("recordservice: semantic search: %w", err)
	}
	out := make([]index.SearchResult, 0, len(hits))
	for _, h := range hits {
		row, err := s.db.GetRecord(h.ID)
		if err != nil {
			continue
		}
		out = append(out, index.SearchResult{
			Path:    row.Path,
			ID:      row.ID,
			Title:   row.Title,
			Kind:    row.Kind,
			Snippet: fmt.Sprintf("similarity %.2f", 1-h.Distance),
		})
	}
	return out, nil
}

// Maps lists every map record with its member count.
func (s *Service) Maps(ctx context.Context) ([]MapSummary, error) {
	rows, _, err := s.db.ListRecords(index.RecordFilter{Kind: string(models.KindMap), Limit: 1000})
	if err != nil {
		return nil, err
	}
	out := make([]MapSummary, 0, len(rows))
	for _, row := range rows {
		m := MapSummary{ID: row.ID, Title: row.Title, Path: row.Path, Domain: row.Domain, Status: models.Status(row.Status)}
		if data, err := s.store.Read(row.Path); err == nil {
			if rec, err := parser.ParseRecord(data); err == nil {
				m.Members = len(mapmaint.Members(rec.Body))
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// Graph returns all nodes and links for graph visualization.
func (s *Service) Graph(_ context.Context) ([]index.GraphNode, []index.GraphLink, error) {
	return s.db.Graph()
}

// buildDetail constructs a RecordDetail from raw data without re-reading the file.
func (s *Service) buildDetail(path string, data []byte) (*RecordDetail, error) {
	rec, err := parser.ParseRecord(data)
	if err != nil {
		return nil, err
	}
	inbound, err := s.db.Inbound(rec.Title)
	if err != nil {
		return nil, err
	}
	backlinks := make([]string, 0, len(inbound))
	for _, e := range inbound {
		backlinks = append(backlinks, e.Source)
	}
	updated := rec.Modified
	if updated.IsZero() {
		updated = time.Now()
	}
	return &RecordDetail{
		Path:      path,
		ID:        rec.ID,
		Title:     rec.Title,
		Kind:      rec.Kind,
		Status:    rec.Status,
		Domain:    rec.Domain,
		Tags:      nonNilSlice(rec.Tags),
		Content:   string(data),
		Checksum:  storage.Checksum(data),
		LinksOut:  nonNilSlice(rec.LinksOut),
		LinksIn:   nonNilSlice(rec.LinksIn),
		Backlinks: backlinks,
		Source:    rec.Source,
		Quality:   rec.Quality,
		Zettel:    rec.Zettelkasten,
		UpdatedAt: updated,
	}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
