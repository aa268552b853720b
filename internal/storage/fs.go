package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const tempPrefix = ".ansuz-tmp-"

// ErrOutsideVault is returned for paths that are absolute or climb out of the root.
var ErrOutsideVault = errors.New("storage: path outside vault")

// FS is a Provider over a local directory. All access goes through an
// os.Root, so symlinks cannot lead out of the vault either.
type FS struct {
	dir   string
	root  *os.Root
	locks *KeyedMutex
}

// NewFS opens the existing directory dir as a vault.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: open root: %w", err)
	}
	return &FS{dir: abs, root: root, locks: NewKeyedMutex()}, nil
}

// Root returns the absolute vault directory.
func (f *FS) Root() string { return f.dir }

// Close releases the root handle.
func (f *FS) Close() error { return f.root.Close() }

// clean validates a vault-relative path and returns it in native form.
func clean(rel string) (string, error) {
	if rel == "" || rel == "." {
		return ".", nil
	}
	native := filepath.FromSlash(rel)
	if !filepath.IsLocal(native) {
		return "", fmt.Errorf("%w: %s", ErrOutsideVault, rel)
	}
	return filepath.Clean(native), nil
}

func (f *FS) List(dir string) ([]FileMeta, error) {
	base, err := clean(dir)
	if err != nil {
		return nil, err
	}
	fsys := f.root.FS()
	start := filepath.ToSlash(base)
	if _, err := fs.Stat(fsys, start); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var out []FileMeta
	err = fs.WalkDir(fsys, start, func(p string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir():
			if p != start && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		case path.Ext(p) != ".md":
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		out = append(out, FileMeta{Path: p, Checksum: Checksum(data), UpdatedAt: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", dir, err)
	}
	return out, nil
}

func (f *FS) Read(p string) ([]byte, error) {
	name, err := clean(p)
	if err != nil {
		return nil, err
	}
	data, err := f.root.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", p, err)
	}
	return data, nil
}

// Exists reports whether p names a regular file inside the vault.
func (f *FS) Exists(p string) bool {
	name, err := clean(p)
	if err != nil {
		return false
	}
	info, err := f.root.Stat(name)
	return err == nil && info.Mode().IsRegular()
}

func (f *FS) Write(p string, content []byte) error {
	name, err := clean(p)
	if err != nil {
		return err
	}
	defer f.locks.Lock(name)()
	return f.replace(name, content)
}

// Update applies fn to the current content of p under the path lock, so
// concurrent updates of one file are serialized.
func (f *FS) Update(p string, fn UpdateFunc) error {
	name, err := clean(p)
	if err != nil {
		return err
	}
	defer f.locks.Lock(name)()

	current, err := f.root.ReadFile(name)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: read %s: %w", p, err)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return f.replace(name, next)
}

// replace writes content to a sibling temp file, syncs it and renames it
// over name.
func (f *FS) replace(name string, content []byte) error {
	dir := filepath.Dir(name)
	if err := f.root.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}
	tmpName := filepath.Join(dir, tempPrefix+gonanoid.Must(10))
	tmp, err := f.root.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}

	err = writeAndSync(tmp, content)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = f.root.Rename(tmpName, name)
	}
	if err != nil {
		_ = f.root.Remove(tmpName)
		return fmt.Errorf("storage: write %s: %w", filepath.ToSlash(name), err)
	}
	return nil
}

func writeAndSync(file *os.File, content []byte) error {
	if _, err := file.Write(content); err != nil {
		return err
	}
	return file.Sync()
}
