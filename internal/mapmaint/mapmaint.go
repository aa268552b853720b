// Package mapmaint creates topic maps and merges new records into existing
// ones without touching hand-written sections.
package mapmaint

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/vault"
)

// DefaultMinRecords is the smallest group of records that earns a map.
const DefaultMinRecords = 3

// Params configures a Maintainer.
type Params struct {
	Vault      *vault.Vault
	MinRecords int
	Logger     *slog.Logger
	Now        func() time.Time
}

// Maintainer owns the maps directory of a vault.
type Maintainer struct {
	vault      *vault.Vault
	minRecords int
	logger     *slog.Logger
	now        func() time.Time
}

// New returns a Maintainer.
func New(p Params) *Maintainer {
	m := &Maintainer{vault: p.Vault, minRecords: p.MinRecords, logger: p.Logger, now: p.Now}
	if m.minRecords <= 0 {
		m.minRecords = DefaultMinRecords
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Result lists the maps touched by one merge.
type Result struct {
	Created []*models.Record
	Updated []*models.Record
	Skipped []string
	Errors  []error
}

// CreatedTitles returns the titles of created maps.
func (r *Result) CreatedTitles() []string { return titles(r.Created) }

// UpdatedTitles returns the titles of updated maps.
func (r *Result) UpdatedTitles() []string { return titles(r.Updated) }

// Merge adds records to every named map, creating maps that do not exist.
// A failure on one map does not stop the others.
func (m *Maintainer) Merge(names []string, records []*models.Record, cl models.Classification) *Result {
	res := &Result{}
	members := make([]string, 0, len(records))
	for _, r := range records {
		members = append(members, r.Title)
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		slug := vault.Slug(name)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		if len(records) < m.minRecords {
			res.Skipped = append(res.Skipped, name)
			m.logger.Debug("mapmaint: too few records", slog.String("map", name), slog.Int("records", len(records)))
			continue
		}

		rec, created, err := m.vault.Upsert(vault.MapPath(name),
			func() *models.Record { return m.newMap(name, members, cl) },
			func(existing *models.Record) error { m.mergeInto(existing, members); return nil },
		)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("mapmaint: %s: %w", name, err))
			m.logger.Error("mapmaint: merge failed", slog.String("map", name), slog.String("error", err.Error()))
			continue
		}
		if report := m.Validate(rec); !report.Passed() {
			m.logger.Warn("mapmaint: map failed validation", slog.String("map", name), slog.String("failures", report.Error()))
		}
		if created {
			res.Created = append(res.Created, rec)
		} else {
			res.Updated = append(res.Updated, rec)
		}
		m.logger.Info("mapmaint: merged",
			slog.String("map", name),
			slog.Bool("created", created),
			slog.Int("members", rec.Lyt.MapNoteCount))
	}
	return res
}

func (m *Maintainer) newMap(name string, members []string, cl models.Classification) *models.Record {
	now := m.now()
	sorted := union(nil, members)
	status := models.StatusForCount(len(sorted))
	domain := cl.Domain
	if domain == "" {
		domain = "general"
	}
	return &models.Record{
		ID:        models.NewID(now),
		Title:     name,
		Kind:      models.KindMap,
		Status:    status,
		Domain:    domain,
		Subdomain: cl.Subdomain,
		Tags:      []string{"lyt/moc", "domain/" + domain},
		Lyt:       models.Lyt{Maps: []string{}, MapNoteCount: len(sorted)},
		Created:   now,
		Modified:  now,
		LinksOut:  []models.Edge{},
		LinksIn:   []models.Edge{},
		Body:      renderMap(name, domain, cl.Subdomain, sorted, status, now),
	}
}

// mergeInto unions members into the map and rewrites only the member and
// status regions. Merging nothing new leaves the body byte-for-byte intact.
func (m *Maintainer) mergeInto(rec *models.Record, members []string) {
	body, existing := rec.Body, Members(rec.Body)
	if _, ok := vault.Region(body, vault.RegionMembers); !ok {
		body, existing = adoptMembers(body)
	}
	all := union(existing, members)
	status := models.StatusForCount(len(all))

	body = vault.SetRegion(body, vault.RegionMembers, membersHeading, memberList(all))
	body = vault.SetRegion(body, vault.RegionStatus, "", statusLine(status, len(all)))

	if body != rec.Body || rec.Lyt.MapNoteCount != len(all) || rec.Status != status {
		rec.Modified = m.now()
	}
	rec.Body = body
	rec.Kind = models.KindMap
	rec.Status = status
	rec.Lyt.MapNoteCount = len(all)
}

const membersHeading = "### Core Concepts"

// adoptMembers handles a map written without member markers. The wikilinks
// of the list under its members heading become the member region in place.
// Without that heading every wikilink in the body counts as a member and the
// region is left for SetRegion to append.
func adoptMembers(body string) (string, []string) {
	lines := strings.Split(body, "\n")
	h := -1
	for i, l := range lines {
		if strings.TrimSpace(l) == membersHeading {
			h = i
			break
		}
	}
	if h < 0 {
		return body, parser.Wikilinks(body)
	}
	end := len(lines)
	for i := h + 1; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "#") {
			end = i
			break
		}
	}
	first, last := -1, -1
scan:
	for i := h + 1; i < end; i++ {
		t := strings.TrimSpace(lines[i])
		switch {
		case isListItem(t):
			if first < 0 {
				first = i
			}
			last = i
		case t != "" && first >= 0:
			break scan
		}
	}

	var members []string
	var out []string
	if first < 0 {
		out = append(out, lines[:h+1]...)
		out = append(out, "", vault.WrapRegion(vault.RegionMembers, ""))
		out = append(out, lines[h+1:]...)
	} else {
		members = parser.Wikilinks(strings.Join(lines[first:last+1], "\n"))
		out = append(out, lines[:first]...)
		out = append(out, vault.WrapRegion(vault.RegionMembers, memberList(members)))
		out = append(out, lines[last+1:]...)
	}
	return strings.Join(out, "\n"), members
}

func isListItem(line string) bool {
	return strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") || strings.HasPrefix(line, "+ ")
}

// Members returns the titles listed in the member region of a map body.
func Members(body string) []string {
	region, ok := vault.Region(body, vault.RegionMembers)
	if !ok {
		return nil
	}
	return parser.Wikilinks(region)
}

// union merges b into a, drops duplicates and sorts the result.
func union(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, group := range [][]string{a, b} {
		for _, s := range group {
			s = strings.TrimSpace(s)
			if s == "" || set[s] {
				continue
			}
			set[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func memberList(titles []string) string {
	lines := make([]string, len(titles))
	for i, t := range titles {
		lines[i] = "- [[" + t + "]]"
	}
	return strings.Join(lines, "\n")
}

func statusLine(s models.Status, n int) string {
	return fmt.Sprintf("**Status:** %s (%d notes)", s.Label(), n)
}

func titles(recs []*models.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Title)
	}
	return out
}

// Validate checks the shape of a map record against the configured minimum
// number of members.
func (m *Maintainer) Validate(rec *models.Record) models.Report {
	var r models.Report
	r.Add("has_title", rec.Title != "", "map should have a title", rec.Title)
	r.Add("has_domain", rec.Domain != "", "map should have a domain", rec.Domain)
	r.Add("min_notes", rec.Lyt.MapNoteCount >= m.minRecords,
		fmt.Sprintf("map should have at least %d notes", m.minRecords), rec.Lyt.MapNoteCount)
	valid := rec.Status == models.StatusSeedling || rec.Status == models.StatusBudding || rec.Status == models.StatusEvergreen
	r.Add("has_status", valid, "map should have a valid status", rec.Status)
	links := len(Members(rec.Body))
	r.Add("has_links", links >= m.minRecords,
		fmt.Sprintf("map should link at least %d notes", m.minRecords), links)
	return r
}
