// Package atomizer turns extracted source text into one literature record and
// five to fifteen atomic permanent records.
package atomizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/starford/ansuz/internal/generation"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/vault"
)

const (
	MinConcepts = 5
	MaxConcepts = 15

	// PermanentListPlaceholder marks where links to permanent records go in a
	// literature body.
	PermanentListPlaceholder = "{{list_of_permanent_notes}}"

	permanentConfidence   = 0.75
	permanentCompleteness = 0.60
	maxTitleRunes         = 99
)

// Concept is one atomic idea as returned by the model.
type Concept struct {
	Title        string   `json:"title"`
	Definition   string   `json:"definition"`
	Explanation  string   `json:"explanation"`
	WhyMatters   string   `json:"why_matters"`
	Applications []string `json:"applications"`
	Connections  []string `json:"connections"`
	ConceptType  string   `json:"concept_type"`
}

// Stats summarises one atomization.
type Stats struct {
	ConceptsExtracted int      `json:"concepts_extracted"`
	PermanentCreated  int      `json:"permanent_notes_created"`
	AvgBodySize       float64  `json:"avg_note_size"`
	Producer          string   `json:"producer"`
	Warnings          []string `json:"warnings,omitempty"`
}

// Result is the output of Atomize.
type Result struct {
	Literature *models.Record
	Permanent  []*models.Record
	Stats      Stats
}

// Params configures an Atomizer.
type Params struct {
	Gateway generation.Gateway
	// Budget and ContextTokens cap the source excerpt sent to the model.
	// A zero ContextTokens disables token truncation.
	Budget        *generation.Budget
	ContextTokens int
	Logger        *slog.Logger
	Now           func() time.Time
}

// Atomizer extracts atomic concepts through a generation gateway, falling
// back to document structure when generation fails.
type Atomizer struct {
	gen           generation.Gateway
	budget        *generation.Budget
	contextTokens int
	logger        *slog.Logger
	now           func() time.Time
}

// New returns an Atomizer.
func New(p Params) *Atomizer {
	a := &Atomizer{
		gen:           p.Gateway,
		budget:        p.Budget,
		contextTokens: p.ContextTokens,
		logger:        p.Logger,
		now:           p.Now,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// Atomize builds the literature record, extracts concepts and turns each
// into a permanent record. Generation failures never surface as errors; they
// end up as warnings and the fallback producers take over.
func (a *Atomizer) Atomize(ctx context.Context, text string, meta models.SourceMeta, cl models.Classification) *Result {
	now := a.now()
	lit := a.literature(text, meta, cl, now)

	in := input{
		text:    text,
		excerpt: a.budget.Truncate(head(text, 4000), a.contextTokens),
		title:   lit.Title,
		domain:  cl.Domain,
	}
	concepts, producer, warnings := a.run(ctx, a.chain(), in)

	perms := make([]*models.Record, 0, len(concepts))
	for _, c := range concepts {
		perms = append(perms, permanent(c, lit, cl, now))
	}
	LinkLiterature(lit, perms)

	total := 0
	for _, p := range perms {
		total += utf8.RuneCountInString(p.Body)
	}
	stats := Stats{
		ConceptsExtracted: len(concepts),
		PermanentCreated:  len(perms),
		Producer:          producer,
		Warnings:          warnings,
	}
	if len(perms) > 0 {
		stats.AvgBodySize = float64(total) / float64(len(perms))
	}
	a.logger.Info("atomizer: done",
		slog.String("source", lit.Title),
		slog.String("producer", producer),
		slog.Int("concepts", len(perms)))
	return &Result{Literature: lit, Permanent: perms, Stats: stats}
}

// LinkLiterature replaces the placeholder in the literature body with one
// wikilink per permanent record, in order.
func LinkLiterature(lit *models.Record, perms []*models.Record) {
	lines := make([]string, 0, len(perms))
	for _, p := range perms {
		lines = append(lines, "- [["+p.Title+"]]")
	}
	lit.Body = strings.ReplaceAll(lit.Body, PermanentListPlaceholder, strings.Join(lines, "\n"))
}

func (a *Atomizer) literature(text string, meta models.SourceMeta, cl models.Classification, now time.Time) *models.Record {
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = "Untitled"
	}
	sourceType := meta.Type
	if sourceType == "" {
		sourceType = "unknown"
	}
	authors := meta.Authors
	if authors == nil {
		authors = []string{}
	}
	rec := &models.Record{
		ID:        models.NewID(now),
		Title:     title,
		Kind:      models.KindLiterature,
		Status:    models.StatusSeedling,
		Domain:    cl.Domain,
		Subdomain: cl.Subdomain,
		Tags:      append([]string(nil), cl.Tags...),
		Basb: models.Basb{
			ParaCategory: "Resources",
			ParaPath:     cl.ParaPath,
		},
		Lyt: models.Lyt{Maps: append([]string(nil), cl.Maps...)},
		Source: &models.Source{
			Type:    sourceType,
			Title:   title,
			Authors: authors,
			File:    meta.FileName,
		},
		Created:    now,
		Modified:   now,
		NextReview: now.AddDate(0, 0, 30),
		LinksOut:   []models.Edge{},
		LinksIn:    []models.Edge{},
		Path:       vault.LiteraturePath(sourceType, title),
	}
	rec.Body = renderLiterature(text, meta, cl, title, now)
	return rec
}

func permanent(c Concept, lit *models.Record, cl models.Classification, now time.Time) *models.Record {
	rec := &models.Record{
		ID:        models.NewID(now),
		Title:     c.Title,
		Kind:      models.KindPermanent,
		Status:    models.StatusSeedling,
		Domain:    cl.Domain,
		Subdomain: cl.Subdomain,
		Tags:      append([]string(nil), cl.Tags...),
		Basb: models.Basb{
			ParaCategory: "Resources",
			ParaPath:     cl.ParaPath,
		},
		Lyt:          models.Lyt{Maps: append([]string(nil), cl.Maps...)},
		Zettelkasten: models.Zettelkasten{NoteType: c.ConceptType},
		Source:       &models.Source{Type: lit.Source.Type, Title: lit.Title, Authors: lit.Source.Authors, File: lit.Source.File},
		Quality:      models.Quality{Confidence: permanentConfidence, Completeness: permanentCompleteness},
		Created:      now,
		Modified:     now,
		NextReview:   now.AddDate(0, 0, 7),
		LinksOut:     []models.Edge{},
		LinksIn:      []models.Edge{},
		Path:         vault.PermanentPath(c.ConceptType, c.Title),
	}
	rec.Body = renderPermanent(c, lit.Title, now)
	return rec
}

// Validate runs the blocking atomization gate.
func Validate(lit *models.Record, perms []*models.Record) models.Report {
	var r models.Report
	n := len(perms)
	r.Add("concept_count", n >= MinConcepts && n <= MaxConcepts,
		"should create 5-15 permanent records", n)

	var content, meta, atomic int
	for _, p := range perms {
		if utf8.RuneCountInString(p.Body) > 200 {
			content++
		}
		if metadataComplete(p) {
			meta++
		}
		if utf8.RuneCountInString(p.Title) < 100 {
			atomic++
		}
	}
	described := n
	if lit != nil {
		described++
		if metadataComplete(lit) {
			meta++
		}
	}
	r.Add("content_not_empty", content == n, "each record should have >200 chars", ratio(content, n))

	litLen := 0
	if lit != nil {
		litLen = utf8.RuneCountInString(lit.Body)
	}
	r.Add("literature_note_valid", litLen > 500, "literature record should exist with >500 chars", litLen)
	r.Add("metadata_complete", meta == described, "all records should have complete metadata", ratio(meta, described))
	r.Add("notes_atomic", atomic == n, "titles should be concise (<100 chars)", ratio(atomic, n))
	return r
}

func metadataComplete(r *models.Record) bool {
	return r.Title != "" && r.Domain != "" && r.Basb.ParaPath != "" && len(r.Tags) > 0
}

func ratio(ok, n int) string {
	return fmt.Sprintf("%d/%d passed", ok, n)
}
