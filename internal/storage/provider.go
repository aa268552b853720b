// Package storage defines the vault file-system abstraction.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// FileMeta describes one Markdown file in the vault.
type FileMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateFunc receives the current content of a file (nil when absent) and
// returns the content to store.
type UpdateFunc func(current []byte) ([]byte, error)

// Provider gives access to vault files by slash-separated paths relative to
// the vault root. Records are only ever created or rewritten, never removed.
type Provider interface {
	// List returns metadata for every .md file under dir, skipping hidden directories.
	List(dir string) ([]FileMeta, error)
	Read(path string) ([]byte, error)
	Exists(path string) bool
	// Write replaces path atomically.
	Write(path string, content []byte) error
	// Update performs a read-modify-write of path while holding its lock.
	Update(path string, fn UpdateFunc) error
}

// Checksum returns the hex-encoded SHA-256 digest of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
