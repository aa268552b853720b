package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ansuz/internal/storage"
)

// Change kinds passed to EventCallback.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// EventCallback is called after a watcher-driven index change.
type EventCallback func(kind string, path string)

// settleDelay is how long the watcher waits after the last file event
// before it touches the index.
const settleDelay = 150 * time.Millisecond

// Watch keeps the record index in step with hand edits of the vault until
// ctx is cancelled. Events are collected until the vault has been quiet for
// settleDelay and then applied in one pass. A record whose bytes match the
// indexed checksum is skipped, so files written by the pipeline (which
// indexes them itself) do not produce a second notification.
//
// Directories created at runtime are watched too. Renames trigger a full
// reconciliation of index against disk, because fsnotify reports only the
// old name.
func Watch(ctx context.Context, db *DB, store storage.Provider, vaultRoot string, logger *slog.Logger, cb EventCallback) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	w := &watcher{
		db:      db,
		store:   store,
		root:    vaultRoot,
		logger:  logger,
		cb:      cb,
		fs:      fw,
		pending: make(map[string]struct{}),
	}
	if err := w.addTree(vaultRoot); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", vaultRoot))

	settle := time.NewTimer(settleDelay)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.observe(ev) {
				settle.Reset(settleDelay)
			}

		case <-settle.C:
			w.flush()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

type watcher struct {
	db     *DB
	store  storage.Provider
	root   string
	logger *slog.Logger
	cb     EventCallback
	fs     *fsnotify.Watcher

	pending   map[string]struct{}
	newDirs   []string
	reconcile bool
}

// observe records ev and reports whether a flush is needed.
func (w *watcher) observe(ev fsnotify.Event) bool {
	if rel, err := filepath.Rel(w.root, ev.Name); err != nil || isHidden(rel) {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watcher: add new dir failed", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
			w.newDirs = append(w.newDirs, ev.Name)
			return true
		}
	}
	rel, ok := w.relative(ev.Name)
	if !ok {
		return false
	}
	if ev.Has(fsnotify.Rename) {
		w.reconcile = true
	}
	w.pending[rel] = struct{}{}
	return true
}

// flush applies everything observed since the last flush.
func (w *watcher) flush() {
	for _, dir := range w.newDirs {
		w.collect(dir)
	}
	var present []string
	for rel := range w.pending {
		if w.store.Exists(rel) {
			present = append(present, rel)
		} else {
			w.remove(rel)
		}
	}
	for _, rel := range present {
		w.refresh(rel)
	}
	if w.reconcile {
		w.reconcileAll()
	}
	clear(w.pending)
	w.newDirs = w.newDirs[:0]
	w.reconcile = false
}

// refresh re-indexes rel when its content differs from the index.
func (w *watcher) refresh(rel string) {
	data, err := w.store.Read(rel)
	if err != nil {
		w.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	old, err := w.db.GetChecksum(rel)
	if err != nil {
		w.logger.Warn("watcher: checksum lookup failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if old == storage.Checksum(data) {
		return
	}
	if err := IndexFile(w.db, rel, data); err != nil {
		w.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	kind := ChangeUpdated
	if old == "" {
		kind = ChangeCreated
	}
	w.logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
	w.emit(kind, rel)
}

// remove drops rel from the index if it was indexed.
func (w *watcher) remove(rel string) {
	old, err := w.db.GetChecksum(rel)
	if err != nil || old == "" {
		return
	}
	if err := w.db.DeleteRecord(rel); err != nil {
		w.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: deleted", slog.String("path", rel))
	w.emit(ChangeDeleted, rel)
}

// reconcileAll removes index rows without a file and indexes files whose
// checksum differs from the index.
func (w *watcher) reconcileAll() {
	checksums, err := w.db.AllChecksums()
	if err != nil {
		w.logger.Warn("watcher: reconcile checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := w.store.List("")
	if err != nil {
		w.logger.Warn("watcher: reconcile list failed", slog.String("error", err.Error()))
		return
	}
	onDisk := make(map[string]bool, len(metas))
	for _, m := range metas {
		if !isRecordPath(m.Path) {
			continue
		}
		onDisk[m.Path] = true
		if checksums[m.Path] != m.Checksum {
			w.refresh(m.Path)
		}
	}
	for p := range checksums {
		if !onDisk[p] {
			w.remove(p)
		}
	}
}

// collect queues the records already present in a new directory.
func (w *watcher) collect(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if rel, ok := w.relative(p); ok {
			w.pending[rel] = struct{}{}
		}
		return nil
	})
}

// relative maps an absolute event path to a vault path. ok is false for
// files that are not records or live under hidden directories.
func (w *watcher) relative(abs string) (string, bool) {
	if !isRecordPath(abs) {
		return "", false
	}
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || isHidden(rel) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *watcher) emit(kind, rel string) {
	if w.cb != nil {
		w.cb(kind, rel)
	}
}

// addTree watches root and all its non-hidden subdirectories.
func (w *watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fs.Add(p)
	})
}

// isHidden reports whether any element of the relative path starts with a dot.
func isHidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}
