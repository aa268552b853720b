// Package vault maps records onto the Markdown vault layout and persists
// them through storage with per-path locking.
package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/storage"
)

// Vault reads and writes records. When db is set, every write is also
// reflected in the record index.
type Vault struct {
	store  storage.Provider
	db     *index.DB
	logger *slog.Logger
}

// New returns a Vault over store. db may be nil.
func New(store storage.Provider, db *index.DB, logger *slog.Logger) *Vault {
	if logger == nil {
		logger = slog.Default()
	}
	return &Vault{store: store, db: db, logger: logger}
}

// Store exposes the underlying provider.
func (v *Vault) Store() storage.Provider { return v.store }

// Exists reports whether a file exists at path.
func (v *Vault) Exists(path string) bool { return v.store.Exists(path) }

// Load reads and parses the record at path.
func (v *Vault) Load(path string) (*models.Record, error) {
	data, err := v.store.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("vault: %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("vault: read %s: %w", path, err)
	}
	rec, err := parser.ParseRecord(data)
	if err != nil {
		return nil, fmt.Errorf("vault: parse %s: %w", path, err)
	}
	rec.Path = path
	return rec, nil
}

// LoadDir parses every record under dir, sorted by path. Unparseable files
// are skipped with a warning.
func (v *Vault) LoadDir(dir string) ([]*models.Record, error) {
	metas, err := v.store.List(dir)
	if err != nil {
		return nil, fmt.Errorf("vault: list %s: %w", dir, err)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Path < metas[j].Path })
	out := make([]*models.Record, 0, len(metas))
	for _, m := range metas {
		rec, err := v.Load(m.Path)
		if err != nil {
			v.logger.Warn("vault: skip record", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Save writes rec to rec.Path, replacing any existing file.
func (v *Vault) Save(rec *models.Record) error {
	if rec.Path == "" {
		return fmt.Errorf("vault: save %q: empty path: %w", rec.Title, apperr.ErrPersistence)
	}
	data, err := parser.RenderRecord(rec)
	if err != nil {
		return fmt.Errorf("vault: render %s: %w: %v", rec.Path, apperr.ErrPersistence, err)
	}
	if err := v.store.Write(rec.Path, data); err != nil {
		return fmt.Errorf("vault: write %s: %w: %v", rec.Path, apperr.ErrPersistence, err)
	}
	v.reindex(rec, data)
	return nil
}

// Update re-reads the record at path under its lock, applies fn and writes
// the result. fn sees the current on-disk state.
func (v *Vault) Update(path string, fn func(*models.Record) error) (*models.Record, error) {
	var out *models.Record
	var rendered []byte
	err := v.store.Update(path, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, fmt.Errorf("vault: %s: %w", path, apperr.ErrNotFound)
		}
		rec, err := parser.ParseRecord(current)
		if err != nil {
			return nil, err
		}
		rec.Path = path
		if err := fn(rec); err != nil {
			return nil, err
		}
		data, err := parser.RenderRecord(rec)
		if err != nil {
			return nil, err
		}
		out, rendered = rec, data
		return data, nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("vault: update %s: %w: %v", path, apperr.ErrPersistence, err)
	}
	v.reindex(out, rendered)
	return out, nil
}

func (v *Vault) reindex(rec *models.Record, data []byte) {
	if v.db == nil {
		return
	}
	if err := index.IndexRecord(v.db, rec, data); err != nil {
		v.logger.Warn("vault: index failed", slog.String("path", rec.Path), slog.String("error", err.Error()))
	}
}

// Upsert creates the record at path with create when the file is missing,
// or applies update to the current on-disk record otherwise. Both run under
// the path lock, so concurrent upserts of one path serialize.
func (v *Vault) Upsert(path string, create func() *models.Record, update func(*models.Record) error) (rec *models.Record, created bool, err error) {
	var rendered []byte
	err = v.store.Update(path, func(current []byte) ([]byte, error) {
		if current == nil {
			rec, created = create(), true
		} else {
			parsed, err := parser.ParseRecord(current)
			if err != nil {
				return nil, err
			}
			parsed.Path = path
			if err := update(parsed); err != nil {
				return nil, err
			}
			rec = parsed
		}
		rec.Path = path
		data, err := parser.RenderRecord(rec)
		if err != nil {
			return nil, err
		}
		rendered = data
		return data, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("vault: upsert %s: %w: %v", path, apperr.ErrPersistence, err)
	}
	v.reindex(rec, rendered)
	return rec, created, nil
}
