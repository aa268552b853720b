package vault

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/testutil"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Working Memory", "Working-Memory"},
		{`What? A "test": a/b\c|d*e<f>`, "What-A-test-abcdef"},
		{strings.Repeat("x", 150), strings.Repeat("x", 100)},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Cognitive Science MOC", "cognitive-science-moc"},
		{"  Memory & Learning!  ", "memory-learning"},
		{"snake_case  and--dashes", "snake-case-and-dashes"},
		{"Neurociência", "neurociência"},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPaths(t *testing.T) {
	if got := LiteraturePath("academic_paper", "A Paper"); got != "02-Literature/papers/A-Paper.md" {
		t.Errorf("paper path = %q", got)
	}
	if got := LiteraturePath("book", "B"); got != "02-Literature/books/B.md" {
		t.Errorf("book path = %q", got)
	}
	if got := LiteraturePath("markdown", "C"); got != "02-Literature/articles/C.md" {
		t.Errorf("article path = %q", got)
	}
	if got := PermanentPath("principle", "Idea"); got != "03-Permanent/principles/Idea.md" {
		t.Errorf("permanent path = %q", got)
	}
	if got := PermanentPath("", "Idea"); got != "03-Permanent/concepts/Idea.md" {
		t.Errorf("default permanent path = %q", got)
	}
	if got := MapPath("Systems Thinking"); got != "04-MOCs/systems-thinking.md" {
		t.Errorf("map path = %q", got)
	}
}

func TestRegionReplaceInPlace(t *testing.T) {
	body := "# T\n\nbefore\n" + WrapRegion(RegionMembers, "- [[A]]") + "\nafter\n"
	out, ok := ReplaceRegion(body, RegionMembers, "- [[A]]\n- [[B]]")
	if !ok {
		t.Fatal("region should be found")
	}
	want := "# T\n\nbefore\n" + WrapRegion(RegionMembers, "- [[A]]\n- [[B]]") + "\nafter\n"
	if out != want {
		t.Errorf("got %q\nwant %q", out, want)
	}
	got, _ := Region(out, RegionMembers)
	if got != "- [[A]]\n- [[B]]" {
		t.Errorf("Region = %q", got)
	}
}

func TestRegionReplaceSameContentIsIdentity(t *testing.T) {
	body := "x\n" + WrapRegion(RegionStatus, "Seedling") + "\ny"
	out, ok := ReplaceRegion(body, RegionStatus, "Seedling")
	if !ok || out != body {
		t.Errorf("replace with same content changed body: %q", out)
	}
}

func TestSetRegionAppendsWhenMissing(t *testing.T) {
	out := SetRegion("# Title\n\ntext\n", RegionConnections, "## Connections", "- [[X]]")
	want := "# Title\n\ntext\n\n## Connections\n\n" + WrapRegion(RegionConnections, "- [[X]]") + "\n"
	if out != want {
		t.Errorf("got %q\nwant %q", out, want)
	}
	if _, ok := Region(out, RegionConnections); !ok {
		t.Error("appended region not found")
	}
}

func TestRegionMissingEnd(t *testing.T) {
	start, _ := Markers(RegionMembers)
	if _, ok := Region("a "+start+" b", RegionMembers); ok {
		t.Error("region without end marker should not be found")
	}
}

func TestSaveLoadUpdate(t *testing.T) {
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	v := New(store, db, testutil.Logger())

	rec := &models.Record{
		ID:       "20240101120000-abcdef01",
		Title:    "Idea",
		Kind:     models.KindPermanent,
		Status:   models.StatusSeedling,
		Domain:   "systems",
		Tags:     []string{"systems"},
		Created:  time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Modified: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Body:     "# Idea\n\nbody\n",
		Path:     PermanentPath("concept", "Idea"),
	}
	if err := v.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := v.Load(rec.Path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Title != "Idea" || got.Body != rec.Body || got.Path != rec.Path {
		t.Errorf("Load = %+v", got)
	}
	if row, err := db.GetRecord(rec.ID); err != nil || row.Path != rec.Path {
		t.Errorf("index row = %+v err = %v", row, err)
	}

	updated, err := v.Update(rec.Path, func(r *models.Record) error {
		r.LinksIn = append(r.LinksIn, models.Edge{Target: "Other", Type: models.EdgeSupportedBy, Confidence: 0.9})
		r.Zettelkasten.ConnectionsCount++
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ConnectionCount() != 1 {
		t.Errorf("count = %d", updated.ConnectionCount())
	}
	reloaded, _ := v.Load(rec.Path)
	if len(reloaded.LinksIn) != 1 || reloaded.LinksIn[0].Type != models.EdgeSupportedBy {
		t.Errorf("links_in = %+v", reloaded.LinksIn)
	}

	all, err := v.LoadDir(PermanentDir)
	if err != nil || len(all) != 1 {
		t.Errorf("LoadDir = %d records, err %v", len(all), err)
	}
}

func TestLoadMissing(t *testing.T) {
	_, store := testutil.TestVault(t)
	v := New(store, nil, testutil.Logger())
	if _, err := v.Load("nope.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := v.Update("nope.md", func(*models.Record) error { return nil }); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("update err = %v, want ErrNotFound", err)
	}
}
