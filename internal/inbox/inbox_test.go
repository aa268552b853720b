package inbox

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSave(t *testing.T) {
	in, err := New(filepath.Join(t.TempDir(), "inbox"))
	if err != nil {
		t.Fatal(err)
	}

	p, err := in.Save("../../notes on sleep.md", strings.NewReader("# Sleep\n\nbody"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Dir(p) != in.Dir() {
		t.Errorf("saved outside inbox: %s", p)
	}
	if filepath.Base(p) != "notes_on_sleep.md" {
		t.Errorf("name = %s", filepath.Base(p))
	}

	again, err := in.Save("notes on sleep.md", strings.NewReader("other"))
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if again == p {
		t.Error("second upload overwrote the first")
	}
	data, _ := os.ReadFile(p)
	if string(data) != "# Sleep\n\nbody" {
		t.Errorf("first file changed: %q", data)
	}
}

func TestSaveRejects(t *testing.T) {
	in, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unsupported extension", "image.png", "x"},
		{"fake pdf", "paper.pdf", "not a pdf"},
		{"binary text", "notes.txt", "\xff\xfe\xfd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := in.Save(tt.file, strings.NewReader(tt.content))
			if !errors.Is(err, ErrUnsupported) {
				t.Errorf("err = %v, want ErrUnsupported", err)
			}
		})
	}
}

func TestFetchDataURI(t *testing.T) {
	uri := "data:text/markdown;base64," + base64.StdEncoding.EncodeToString([]byte("# Hi"))
	data, name, err := Fetch(context.Background(), uri)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "# Hi" {
		t.Errorf("data = %q", data)
	}
	if filepath.Ext(name) != ".md" {
		t.Errorf("name = %q", name)
	}

	if _, _, err := Fetch(context.Background(), "data:image/png;base64,AAAA"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("png data URI err = %v", err)
	}
	uri = "data:text/plain;charset=utf-8;base64," + base64.StdEncoding.EncodeToString([]byte("plain"))
	if data, _, err := Fetch(context.Background(), uri); err != nil || string(data) != "plain" {
		t.Errorf("charset data URI = %q, %v", data, err)
	}
	if _, _, err := Fetch(context.Background(), "data:text/plain,plain"); err == nil {
		t.Error("expected error for non-base64 data URI")
	}
}

func TestFetchBlocksLocalAddresses(t *testing.T) {
	for _, u := range []string{"http://127.0.0.1/paper.pdf", "http://169.254.169.254/latest/meta-data"} {
		if _, _, err := Fetch(context.Background(), u); !errors.Is(err, ErrBlockedHost) {
			t.Errorf("%s: err = %v, want ErrBlockedHost", u, err)
		}
	}
	if _, _, err := Fetch(context.Background(), "ftp://example.com/a.md"); err == nil {
		t.Error("expected ftp to be rejected")
	}
}

func TestFetchHTTP(t *testing.T) {
	old := blocked
	blocked = func(netip.Addr) bool { return false }
	t.Cleanup(func() { blocked = old })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/papers/sleep":
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			_, _ = w.Write([]byte("# Sleep"))
		case "/moved":
			http.Redirect(w, r, "/papers/sleep", http.StatusFound)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	data, name, err := Fetch(context.Background(), srv.URL+"/moved")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "# Sleep" || filepath.Ext(name) != ".md" {
		t.Errorf("data = %q, name = %q", data, name)
	}
	if _, _, err := Fetch(context.Background(), srv.URL+"/missing.pdf"); err == nil {
		t.Error("expected error for 404")
	}
}

func TestFilenameFromURL(t *testing.T) {
	if got := filenameFromURL("https://example.com/papers/sleep.pdf?x=1", ".pdf"); got != "sleep.pdf" {
		t.Errorf("got %q", got)
	}
	if got := filenameFromURL("https://example.com/", ".md"); !strings.HasSuffix(got, ".md") {
		t.Errorf("got %q", got)
	}
}
