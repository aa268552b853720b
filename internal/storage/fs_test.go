package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func newVault(t *testing.T) *FS {
	t.Helper()
	f, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func mustWrite(t *testing.T, f *FS, p, content string) {
	t.Helper()
	if err := f.Write(p, []byte(content)); err != nil {
		t.Fatalf("Write %s: %v", p, err)
	}
}

func TestWriteCreatesParents(t *testing.T) {
	f := newVault(t)
	p := "03-Permanent/concepts/Spacing Effect.md"
	mustWrite(t, f, p, "---\ntitle: Spacing Effect\n---\nbody\n")

	got, err := f.Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(string(got), "title: Spacing Effect") {
		t.Errorf("content = %q", got)
	}
	mustWrite(t, f, p, "v2")
	if got, _ := f.Read(p); string(got) != "v2" {
		t.Errorf("overwrite = %q", got)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	f := newVault(t)
	mustWrite(t, f, "04-MOCs/learning.md", "a")
	mustWrite(t, f, "04-MOCs/learning.md", "b")

	entries, err := os.ReadDir(filepath.Join(f.Root(), "04-MOCs"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir entries = %v, want only learning.md", names)
	}
}

func TestListSkipsHiddenAndNonMarkdown(t *testing.T) {
	f := newVault(t)
	mustWrite(t, f, "02-Literature/paper.md", "a")
	mustWrite(t, f, "03-Permanent/concepts/A.md", "b")
	mustWrite(t, f, "notes.txt", "c")
	mustWrite(t, f, ".ansuz/cache.md", "d")

	metas, err := f.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	got := map[string]string{}
	for _, m := range metas {
		got[m.Path] = m.Checksum
	}
	if len(got) != 2 {
		t.Fatalf("listed %v, want 2 records", got)
	}
	if got["03-Permanent/concepts/A.md"] != Checksum([]byte("b")) {
		t.Errorf("checksum mismatch for A.md: %v", got)
	}

	sub, err := f.List("02-Literature")
	if err != nil || len(sub) != 1 || sub[0].Path != "02-Literature/paper.md" {
		t.Errorf("List(02-Literature) = %v, %v", sub, err)
	}
	missing, err := f.List("04-MOCs")
	if err != nil || len(missing) != 0 {
		t.Errorf("List(missing) = %v, %v", missing, err)
	}
}

func TestPathsOutsideVaultRejected(t *testing.T) {
	f := newVault(t)
	for _, p := range []string{"../outside.md", "a/../../b.md", "/etc/passwd"} {
		if _, err := f.Read(p); !errors.Is(err, ErrOutsideVault) {
			t.Errorf("Read(%q) err = %v", p, err)
		}
		if err := f.Write(p, []byte("x")); !errors.Is(err, ErrOutsideVault) {
			t.Errorf("Write(%q) err = %v", p, err)
		}
		if f.Exists(p) {
			t.Errorf("Exists(%q) = true", p)
		}
	}
}

func TestSymlinkEscapeRejected(t *testing.T) {
	f := newVault(t)
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.md"), []byte("s"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(f.Root(), "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if _, err := f.Read("link/secret.md"); err == nil {
		t.Error("read through symlink escaped the vault")
	}
}

func TestNewFSRequiresDirectory(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("missing dir accepted")
	}
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFS(file); err == nil {
		t.Error("regular file accepted as root")
	}
}

func TestExists(t *testing.T) {
	f := newVault(t)
	mustWrite(t, f, "dir/here.md", "x")
	if !f.Exists("dir/here.md") {
		t.Error("dir/here.md should exist")
	}
	if f.Exists("dir") {
		t.Error("directories are not files")
	}
	if f.Exists("gone.md") {
		t.Error("gone.md should not exist")
	}
}

func TestUpdate(t *testing.T) {
	f := newVault(t)

	err := f.Update("new/file.md", func(cur []byte) ([]byte, error) {
		if cur != nil {
			return nil, fmt.Errorf("want nil for missing file, got %q", cur)
		}
		return []byte("fresh"), nil
	})
	if err != nil {
		t.Fatalf("Update missing: %v", err)
	}

	boom := errors.New("boom")
	err = f.Update("new/file.md", func(cur []byte) ([]byte, error) {
		if string(cur) != "fresh" {
			t.Errorf("current = %q", cur)
		}
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if got, _ := f.Read("new/file.md"); string(got) != "fresh" {
		t.Errorf("failed update changed the file: %q", got)
	}
}

func TestConcurrentUpdatesSerialized(t *testing.T) {
	f := newVault(t)
	mustWrite(t, f, "counter.md", "")

	const n = 40
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.Update("counter.md", func(cur []byte) ([]byte, error) {
				return append(cur, 'x'), nil
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, _ := f.Read("counter.md")
	if len(got) != n {
		t.Errorf("len = %d, want %d", len(got), n)
	}
}
