// Package testutil holds fixtures shared by package tests: a scratch vault,
// a scratch index and deterministic generation fakes.
package testutil

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/storage"
)

// TestDB opens an index in the test's temp dir. It is closed on cleanup.
func TestDB(t testing.TB) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestVault returns an empty vault directory and the store rooted at it.
func TestVault(t testing.TB) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatalf("open vault: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return dir, store
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
