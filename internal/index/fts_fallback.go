//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"strings"
)

// Without FTS5 there is no side table; Search scans records with LIKE.
func initFTS(*sql.DB) error { return nil }

func ftsUpsert(*sql.Tx, string, string, string, []string) error { return nil }

func ftsDelete(*sql.Tx, string) {}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func searchStatement(terms []string) (string, []any) {
	conds := make([]string, len(terms))
	args := make([]any, 0, 3*len(terms))
	for i, t := range terms {
		conds[i] = `(title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\')`
		like := "%" + likeEscaper.Replace(t) + "%"
		args = append(args, like, like, like)
	}
	return `SELECT path, id, title, kind, substr(body, 1, 200)
		FROM records
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY title
		LIMIT ?`, args
}
