package index

import (
	"fmt"
	"strings"
)

const defaultSearchLimit = 20

// Search returns records matching every whitespace-separated term of query.
// Terms are matched literally; operator syntax in the query has no effect.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	terms := strings.Fields(query)
	out := []SearchResult{}
	if len(terms) == 0 {
		return out, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	stmt, args := searchStatement(terms)
	rows, err := db.conn.Query(stmt, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.ID, &r.Title, &r.Kind, &r.Snippet); err != nil {
			return nil, fmt.Errorf("index: scan search hit: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
