// Package inbox stores uploaded source documents on disk until the pipeline
// picks them up.
package inbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/extractor"
)

// MaxSourceSize caps a single uploaded source.
const MaxSourceSize = 50 << 20 // 50 MB

var (
	// ErrUnsupported is returned for files the extractor cannot read.
	ErrUnsupported = errors.New("inbox: unsupported source type")
	// ErrTooLarge is returned when a source exceeds MaxSourceSize.
	ErrTooLarge = errors.New("inbox: source too large")

	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// Inbox is a flat directory of uploaded sources.
type Inbox struct {
	dir string
}

// New returns an Inbox rooted at dir, creating it if needed.
func New(dir string) (*Inbox, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("inbox: resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("inbox: mkdir: %w", err)
	}
	return &Inbox{dir: abs}, nil
}

// Dir returns the absolute inbox directory.
func (in *Inbox) Dir() string { return in.dir }

// Save writes the content of r under a sanitized form of name and returns
// the absolute path. An existing file of the same name is never replaced;
// the new file gets a unique suffix instead.
func (in *Inbox) Save(name string, r io.Reader) (string, error) {
	name = SanitizeFilename(name)
	ext := strings.ToLower(filepath.Ext(name))
	if !extractor.Supported(ext) {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxSourceSize+1))
	if err != nil {
		return "", fmt.Errorf("inbox: read upload: %w", err)
	}
	if len(data) > MaxSourceSize {
		return "", fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, MaxSourceSize)
	}
	if err := validateContent(data, ext); err != nil {
		return "", err
	}

	abs := filepath.Join(in.dir, name)
	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		abs = filepath.Join(in.dir, stem+"-"+uuid.NewString()[:8]+ext)
		f, err = os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return "", fmt.Errorf("inbox: create %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(abs)
		return "", fmt.Errorf("inbox: write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("inbox: close %s: %w", name, err)
	}
	return abs, nil
}

// SanitizeFilename strips path separators and unsafe characters.
func SanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." || strings.HasPrefix(name, ".") {
		name = uuid.NewString() + name
	}
	return name
}

// validateContent verifies that the bytes look like the declared type.
func validateContent(data []byte, ext string) error {
	if ext == ".pdf" {
		if !bytes.HasPrefix(data, []byte("%PDF-")) {
			return fmt.Errorf("%w: content is not a PDF (detected: %s)", ErrUnsupported, http.DetectContentType(data))
		}
		return nil
	}
	if !utf8.Valid(data) {
		return fmt.Errorf("%w: %s file is not valid UTF-8 text", ErrUnsupported, ext)
	}
	return nil
}
