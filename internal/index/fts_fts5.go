//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
		path UNINDEXED, title, body, tags,
		tokenize = 'unicode61 remove_diacritics 2'
	)`)
	return err
}

func ftsUpsert(tx *sql.Tx, path, title, body string, tags []string) error {
	ftsDelete(tx, path)
	if _, err := tx.Exec(`INSERT INTO records_fts (path, title, body, tags) VALUES (?, ?, ?, ?)`,
		path, title, body, strings.Join(tags, " ")); err != nil {
		return fmt.Errorf("index: fts insert %s: %w", path, err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) {
	_, _ = tx.Exec(`DELETE FROM records_fts WHERE path = ?`, path)
}

// matchExpr quotes each term as an FTS5 string so that user input such as
// "sleep-spindles" or "NOT" is never parsed as query syntax.
func matchExpr(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

func searchStatement(terms []string) (string, []any) {
	return `SELECT f.path, r.id, r.title, r.kind,
		       snippet(records_fts, 2, '<b>', '</b>', '...', 64)
		FROM records_fts f
		JOIN records r ON r.path = f.path
		WHERE records_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, []any{matchExpr(terms)}
}
