//go:build !sqlite_fts5

package index

import (
	"testing"
	"time"
)

func TestLikeSearchRequiresEveryTerm(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertRecord(RecordRow{Path: "a.md", ID: "a", Title: "Sleep Spindles", Checksum: "1", UpdatedAt: now}, "bursts during stage two sleep", nil)
	_ = db.UpsertRecord(RecordRow{Path: "b.md", ID: "b", Title: "Memory", Checksum: "2", UpdatedAt: now}, "consolidation during sleep", nil)

	hits, err := db.Search("sleep bursts", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "a" {
		t.Errorf("hits = %+v, want only a", hits)
	}
	if hits, _ := db.Search("   ", 10); len(hits) != 0 {
		t.Errorf("blank query matched %d records", len(hits))
	}
}

func TestLikeSearchEscapesWildcards(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertRecord(RecordRow{Path: "a.md", ID: "a", Title: "Rates", Checksum: "1", UpdatedAt: now}, "recall improved by 40% overall", nil)
	_ = db.UpsertRecord(RecordRow{Path: "b.md", ID: "b", Title: "Other", Checksum: "2", UpdatedAt: now}, "recall improved by 40 points", nil)

	hits, err := db.Search("40%", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "a" {
		t.Errorf("hits = %+v, want only a", hits)
	}
}
