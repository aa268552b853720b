// Package models defines the record, edge and taxonomy types shared by the pipeline.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the record kind.
type Kind string

const (
	KindLiterature Kind = "literature"
	KindPermanent  Kind = "permanent"
	KindMap        Kind = "map"
)

// Status is the maturity stage of a record or map.
type Status string

const (
	StatusSeedling  Status = "seedling"
	StatusBudding   Status = "budding"
	StatusEvergreen Status = "evergreen"
)

// StatusForCount derives a map status from its member count.
func StatusForCount(n int) Status {
	switch {
	case n >= 15:
		return StatusEvergreen
	case n >= 8:
		return StatusBudding
	default:
		return StatusSeedling
	}
}

// Label returns the capitalised status name used in rendered bodies.
func (s Status) Label() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// Source is the provenance block of literature-derived records.
type Source struct {
	Type    string   `yaml:"type" json:"type"`
	Title   string   `yaml:"title" json:"title"`
	Authors []string `yaml:"authors,flow" json:"authors"`
	File    string   `yaml:"file,omitempty" json:"file,omitempty"`
}

// Basb holds the PARA placement of a record.
type Basb struct {
	ParaCategory string `yaml:"para_category" json:"para_category"`
	ParaPath     string `yaml:"para_path" json:"para_path"`
	SummaryLayer int    `yaml:"progressive_summary_layer" json:"progressive_summary_layer"`
}

// Lyt holds the map membership of a record.
type Lyt struct {
	Maps         []string `yaml:"mocs,flow" json:"mocs"`
	MapNoteCount int      `yaml:"moc_note_count,omitempty" json:"moc_note_count,omitempty"`
}

// Zettelkasten holds the connection bookkeeping of a record.
type Zettelkasten struct {
	NoteType           string  `yaml:"permanent_note_type,omitempty" json:"permanent_note_type,omitempty"`
	ConnectionsCount   int     `yaml:"connections_count" json:"connections_count"`
	ConnectionsQuality float64 `yaml:"connections_quality" json:"connections_quality"`
}

// Quality is the initial self-assessment of a record.
type Quality struct {
	Confidence   float64 `yaml:"confidence" json:"confidence"`
	Completeness float64 `yaml:"completeness" json:"completeness"`
}

// Record is the unit of knowledge persisted in the vault.
// Body and Path are not part of the frontmatter.
type Record struct {
	ID           string       `yaml:"id" json:"id"`
	Title        string       `yaml:"title" json:"title"`
	Kind         Kind         `yaml:"type" json:"type"`
	Status       Status       `yaml:"status" json:"status"`
	Domain       string       `yaml:"domain" json:"domain"`
	Subdomain    string       `yaml:"subdomain,omitempty" json:"subdomain,omitempty"`
	Tags         []string     `yaml:"tags,flow" json:"tags"`
	Basb         Basb         `yaml:"basb" json:"basb"`
	Lyt          Lyt          `yaml:"lyt" json:"lyt"`
	Zettelkasten Zettelkasten `yaml:"zettelkasten" json:"zettelkasten"`
	Source       *Source      `yaml:"source,omitempty" json:"source,omitempty"`
	Quality      Quality      `yaml:",inline" json:"quality"`
	Created      time.Time    `yaml:"created" json:"created"`
	Modified     time.Time    `yaml:"modified" json:"modified"`
	NextReview   time.Time    `yaml:"next_review,omitempty" json:"next_review,omitempty"`
	LinksOut     []Edge       `yaml:"links_out" json:"links_out"`
	LinksIn      []Edge       `yaml:"links_in" json:"links_in"`

	Body string `yaml:"-" json:"body"`
	Path string `yaml:"-" json:"path"`
}

// ConnectionCount returns the number of edges touching the record. Never negative.
func (r *Record) ConnectionCount() int {
	if r.Zettelkasten.ConnectionsCount < 0 {
		return 0
	}
	return r.Zettelkasten.ConnectionsCount
}

// NewID returns a time-ordered identifier with a random suffix.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return now.Format("20060102150405") + "-" + suffix
}

// Classification is the taxonomy label assigned to a source.
type Classification struct {
	Domain       string   `json:"domain"`
	Subdomain    string   `json:"subdomain,omitempty"`
	ParaCategory string   `json:"para_category"`
	ParaPath     string   `json:"para_path"`
	Maps         []string `json:"maps"`
	Tags         []string `json:"tags"`
	ContentType  string   `json:"content_type"`
	Confidence   float64  `json:"confidence"`
}

// SourceMeta describes an extracted source document.
type SourceMeta struct {
	Type        string    `json:"source_type"`
	Title       string    `json:"title"`
	Authors     []string  `json:"authors,omitempty"`
	FileName    string    `json:"file_name"`
	FileSize    int64     `json:"file_size"`
	Pages       int       `json:"pages,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}
