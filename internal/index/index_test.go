package index

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"records", "edges", "embeddings", "jobs"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestUpsertAndGetChecksum(t *testing.T) {
	db := testDB(t)
	row := RecordRow{
		Path:      "03-Permanent/concepts/Hello.md",
		ID:        "20240101120000-abcdef01",
		Title:     "Hello",
		Kind:      "permanent",
		Checksum:  "abc123",
		Tags:      []string{"go", "test"},
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertRecord(row, "This is a hello record.", []EdgeRow{{Target: "Other", Type: "supports", Confidence: 0.9}}); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}
	cs, err := db.GetChecksum(row.Path)
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}

	got, err := db.GetRecord(row.ID)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got.Title != "Hello" || len(got.Tags) != 2 {
		t.Errorf("GetRecord = %+v", got)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetRecord("missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestInbound(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertRecord(RecordRow{Path: "a.md", Title: "A", Checksum: "1"}, "body", []EdgeRow{{Target: "B", Type: "supports", Confidence: 0.7}})
	_ = db.UpsertRecord(RecordRow{Path: "c.md", Title: "C", Checksum: "2"}, "body", []EdgeRow{{Target: "B", Type: "extends", Confidence: 0.9}})

	in, err := db.Inbound("B")
	if err != nil {
		t.Fatalf("Inbound: %v", err)
	}
	if len(in) != 2 {
		t.Fatalf("expected 2 inbound edges, got %d", len(in))
	}
	if in[0].Source != "c.md" {
		t.Errorf("inbound not sorted by confidence: %+v", in)
	}
}

func TestDeleteRecord(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertRecord(RecordRow{Path: "del.md", Checksum: "x"}, "body", []EdgeRow{{Target: "T", Type: "related"}})

	if err := db.DeleteRecord("del.md"); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	cs, _ := db.GetChecksum("del.md")
	if cs != "" {
		t.Errorf("deleted record still has checksum %q", cs)
	}
	in, _ := db.Inbound("T")
	if len(in) != 0 {
		t.Errorf("expected 0 inbound after delete, got %d", len(in))
	}
}

func TestUpsertReplacesEdges(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertRecord(RecordRow{Path: "up.md", Title: "Old", Checksum: "1", UpdatedAt: now}, "old body", []EdgeRow{{Target: "X", Type: "related"}})
	_ = db.UpsertRecord(RecordRow{Path: "up.md", Title: "New", Checksum: "2", UpdatedAt: now}, "new body", []EdgeRow{{Target: "Y", Type: "related"}})

	cs, _ := db.GetChecksum("up.md")
	if cs != "2" {
		t.Errorf("checksum = %q, want %q", cs, "2")
	}
	if in, _ := db.Inbound("X"); len(in) != 0 {
		t.Error("old edge should be removed on upsert")
	}
	if in, _ := db.Inbound("Y"); len(in) != 1 {
		t.Error("new edge should exist")
	}
}

func TestListRecordsFilter(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertRecord(RecordRow{Path: "1.md", ID: "1", Title: "B", Kind: "permanent", Domain: "physics"}, "", nil)
	_ = db.UpsertRecord(RecordRow{Path: "2.md", ID: "2", Title: "A", Kind: "permanent", Domain: "biology"}, "", nil)
	_ = db.UpsertRecord(RecordRow{Path: "3.md", ID: "3", Title: "C", Kind: "map", Domain: "physics"}, "", nil)

	rows, total, err := db.ListRecords(RecordFilter{Kind: "permanent"})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if total != 2 || len(rows) != 2 || rows[0].Title != "A" {
		t.Errorf("rows = %+v total = %d", rows, total)
	}

	rows, total, _ = db.ListRecords(RecordFilter{Domain: "physics", Limit: 1})
	if total != 2 || len(rows) != 1 {
		t.Errorf("paged rows = %+v total = %d", rows, total)
	}
}

func TestGraphResolvesTitles(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertRecord(RecordRow{Path: "a.md", ID: "a", Title: "A"}, "", []EdgeRow{{Target: "B", Type: "supports", Confidence: 0.9}, {Target: "Ghost", Type: "related"}})
	_ = db.UpsertRecord(RecordRow{Path: "b.md", ID: "b", Title: "B"}, "", nil)

	nodes, links, err := db.Graph()
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if len(nodes) != 2 {
		t.Errorf("nodes = %d, want 2", len(nodes))
	}
	if len(links) != 1 || links[0].Source != "a" || links[0].Target != "b" {
		t.Errorf("links = %+v", links)
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertRecord(RecordRow{Path: "s.md", Title: "Search Me", Checksum: "1"}, "uniqueword appears here", nil)

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "s.md" {
		t.Errorf("search results = %+v, want 1 hit for s.md", results)
	}
}

func TestEmbeddingsRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	vec := []float32{0.25, -1.5, 3}
	if err := db.PutEmbedding(ctx, EmbeddingRow{ID: "r1", Vector: vec, Attrs: map[string]string{"kind": "permanent"}}); err != nil {
		t.Fatalf("PutEmbedding: %v", err)
	}
	if err := db.PutEmbedding(ctx, EmbeddingRow{ID: "r1", Vector: []float32{1, 2, 3}}); err != nil {
		t.Fatalf("PutEmbedding replace: %v", err)
	}

	var got []EmbeddingRow
	err := db.Embeddings(ctx, func(e EmbeddingRow) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("Embeddings: %v", err)
	}
	if len(got) != 1 || got[0].Vector[1] != 2 {
		t.Errorf("embeddings = %+v", got)
	}
}

func TestJobs(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = db.PutJob(ctx, JobRow{ID: "j1", Status: "queued", Data: []byte(`{"id":"j1"}`), CreatedAt: t0, UpdatedAt: t0})
	_ = db.PutJob(ctx, JobRow{ID: "j2", Status: "queued", Data: []byte(`{"id":"j2"}`), CreatedAt: t0.Add(time.Minute), UpdatedAt: t0})
	_ = db.PutJob(ctx, JobRow{ID: "j1", Status: "completed", Data: []byte(`{"id":"j1","status":"completed"}`), CreatedAt: t0, UpdatedAt: t0.Add(time.Hour)})

	j, err := db.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != "completed" {
		t.Errorf("status = %q", j.Status)
	}
	jobs, err := db.ListJobs(ctx, 10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "j2" {
		t.Errorf("jobs = %+v", jobs)
	}
	if _, err := db.GetJob(ctx, "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing job err = %v", err)
	}
}

const recordFile = `---
id: 20240101120000-abcdef01
title: Working Memory
type: permanent
status: seedling
domain: psychology
tags: [psychology, zk/permanent]
links_out:
  - target: Attention
    target_id: 20240101120000-00000001
    type: supports
    confidence: 0.9
---
# Working Memory

See also [[Cognitive Load]].
`

func TestSyncIndexesRecordsAndRemovesStale(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	_ = store.Write("03-Permanent/concepts/Working-Memory.md", []byte(recordFile))
	_ = store.Write("notes.txt", []byte("not a record"))
	_ = db.UpsertRecord(RecordRow{Path: "stale.md", Checksum: "s"}, "", nil)

	if err := Sync(db, store, logger); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	r, err := db.GetRecord("20240101120000-abcdef01")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if r.Kind != "permanent" || r.Domain != "psychology" {
		t.Errorf("record = %+v", r)
	}
	if in, _ := db.Inbound("Attention"); len(in) != 1 || in[0].Type != "supports" {
		t.Errorf("typed edge not indexed: %+v", in)
	}
	if in, _ := db.Inbound("Cognitive Load"); len(in) != 1 || in[0].Type != "related" {
		t.Errorf("wikilink edge not indexed: %+v", in)
	}
	if cs, _ := db.GetChecksum("stale.md"); cs != "" {
		t.Error("stale record should be removed")
	}
	if cs, _ := db.GetChecksum("notes.txt"); cs != "" {
		t.Error("non-markdown file should not be indexed")
	}
}
