package index

import (
	"log/slog"
	"strings"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/storage"
)

// Sync walks the vault and brings the index up to date:
//   - new/changed records are parsed and upserted
//   - records removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if !isRecordPath(m.Path) {
			continue
		}
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteRecord(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexFile parses a record file and upserts it into the DB.
func IndexFile(db *DB, path string, data []byte) error {
	rec, err := parser.ParseRecord(data)
	if err != nil {
		return err
	}
	rec.Path = path
	row, edges := rowFromRecord(rec)
	row.Checksum = storage.Checksum(data)
	return db.UpsertRecord(row, rec.Body, edges)
}

// IndexRecord upserts an in-memory record that was just written with data.
func IndexRecord(db *DB, rec *models.Record, data []byte) error {
	row, edges := rowFromRecord(rec)
	row.Checksum = storage.Checksum(data)
	return db.UpsertRecord(row, rec.Body, edges)
}

func rowFromRecord(rec *models.Record) (RecordRow, []EdgeRow) {
	row := RecordRow{
		Path:               rec.Path,
		ID:                 rec.ID,
		Title:              rec.Title,
		Kind:               string(rec.Kind),
		Status:             string(rec.Status),
		Domain:             rec.Domain,
		Tags:               rec.Tags,
		ConnectionsCount:   rec.ConnectionCount(),
		ConnectionsQuality: rec.Zettelkasten.ConnectionsQuality,
		UpdatedAt:          rec.Modified,
	}
	edges := make([]EdgeRow, 0, len(rec.LinksOut))
	for _, e := range rec.LinksOut {
		edges = append(edges, EdgeRow{
			Source:     rec.Path,
			Target:     e.Target,
			Type:       string(e.Type),
			Confidence: e.Confidence,
			Strategy:   string(e.Strategy),
		})
	}
	// Hand-written wikilinks count as related edges when not already typed.
	seen := make(map[string]struct{}, len(edges))
	for _, e := range edges {
		seen[e.Target] = struct{}{}
	}
	for _, l := range parser.Wikilinks(rec.Body) {
		if _, ok := seen[l]; ok || l == rec.Title {
			continue
		}
		seen[l] = struct{}{}
		edges = append(edges, EdgeRow{Source: rec.Path, Target: l, Type: string(models.EdgeRelated)})
	}
	return row, edges
}

func isRecordPath(p string) bool {
	return strings.HasSuffix(p, ".md")
}
