// Package extractor turns source files (PDF, Markdown, plain text) into
// normalized text with metadata and heading structure.
package extractor

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"gopkg.in/yaml.v3"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// Source types reported in metadata.
const (
	TypePDF      = "pdf"
	TypeMarkdown = "markdown"
	TypeText     = "text"
)

// Heading is one Markdown heading found in the text.
type Heading struct {
	Level    int    `json:"level"`
	Title    string `json:"title"`
	Line     int    `json:"line"`
	Position int    `json:"position"`
}

// Section spans a level-1 or level-2 heading up to the next one.
type Section struct {
	Title string `json:"title"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Line  int    `json:"line"`
}

// Structure is the heading layout of a document.
type Structure struct {
	Headings []Heading `json:"headings"`
	Sections []Section `json:"sections"`
}

// Stats are simple size measures taken before normalization.
type Stats struct {
	WordCount int `json:"word_count"`
	CharCount int `json:"char_count"`
	Pages     int `json:"pages,omitempty"`
	Sections  int `json:"sections"`
}

// Result is the output of Extract.
type Result struct {
	Text      string            `json:"text"`
	Meta      models.SourceMeta `json:"meta"`
	Structure Structure         `json:"structure"`
	Stats     Stats             `json:"stats"`
}

var (
	headingRe      = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	titleHeadingRe = regexp.MustCompile(`^#{1,2}\s+(.+)$`)
	titlePrefixRe  = regexp.MustCompile(`(?i)^(Title:|Abstract:)\s*`)
	authorsRe      = regexp.MustCompile(`(?i)Authors?:\s*([^\n]+)`)
	authorSplitRe  = regexp.MustCompile(`[,;&]|\sand\s`)
	blankLinesRe   = regexp.MustCompile(`\n{3,}`)
)

// Supported reports whether ext (with dot, any case) can be extracted.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".md", ".markdown", ".txt":
		return true
	}
	return false
}

// Extract reads the file at path. Every failure wraps apperr.ErrExtraction.
func Extract(path string) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("extractor: %w: file not found: %s", apperr.ErrExtraction, path)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !Supported(ext) {
		return nil, fmt.Errorf("extractor: %w: unsupported file type %q", apperr.ErrExtraction, ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("extractor: %w: %v", apperr.ErrExtraction, err)
	}

	var res *Result
	switch ext {
	case ".pdf":
		res, err = extractPDF(data)
	case ".md", ".markdown":
		res, err = extractMarkdown(data)
	default:
		res, err = extractText(data)
	}
	if err != nil {
		return nil, fmt.Errorf("extractor: %w: %v", apperr.ErrExtraction, err)
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if res.Meta.Title == "" {
		res.Meta.Title = stem
	}
	res.Meta.FileName = filepath.Base(path)
	res.Meta.FileSize = info.Size()
	res.Meta.ExtractedAt = time.Now().UTC()
	return res, nil
}

func extractPDF(data []byte) (*Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	var parts []string
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		parts = append(parts, text)
	}
	raw := strings.Join(parts, "\n\n")

	res := build(raw, TypePDF)
	res.Meta.Title = titleFromText(raw)
	res.Meta.Authors = authorsFromText(raw)
	res.Meta.Pages = pages
	res.Stats.Pages = pages
	return res, nil
}

type frontmatter struct {
	Title   string     `yaml:"title"`
	Authors stringList `yaml:"authors"`
}

// stringList accepts either a YAML sequence or a comma-separated scalar.
type stringList []string

func (l *stringList) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*l = authorsFromLine(n.Value)
		return nil
	}
	var out []string
	if err := n.Decode(&out); err != nil {
		return err
	}
	*l = out
	return nil
}

func extractMarkdown(data []byte) (*Result, error) {
	text := string(data)
	var fm frontmatter
	if body, block, ok := splitFrontmatter(text); ok {
		if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
			return nil, fmt.Errorf("frontmatter: %w", err)
		}
		text = body
	}
	res := build(text, TypeMarkdown)
	res.Meta.Title = fm.Title
	if res.Meta.Title == "" {
		res.Meta.Title = titleFromText(text)
	}
	res.Meta.Authors = fm.Authors
	if len(res.Meta.Authors) == 0 {
		res.Meta.Authors = authorsFromText(text)
	}
	return res, nil
}

func extractText(data []byte) (*Result, error) {
	text := string(data)
	res := build(text, TypeText)
	res.Meta.Title = titleFromText(text)
	res.Meta.Authors = authorsFromText(text)
	return res, nil
}

func build(raw, sourceType string) *Result {
	st := analyze(raw)
	return &Result{
		Text:      Normalize(raw),
		Meta:      models.SourceMeta{Type: sourceType},
		Structure: st,
		Stats: Stats{
			WordCount: len(strings.Fields(raw)),
			CharCount: utf8.RuneCountInString(raw),
			Sections:  len(st.Sections),
		},
	}
}

// Normalize converts line endings to LF, collapses runs of blank lines and trims.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func analyze(text string) Structure {
	st := Structure{Headings: []Heading{}, Sections: []Section{}}
	pos := 0
	for i, line := range strings.Split(text, "\n") {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			level := len(m[1])
			title := strings.TrimSpace(m[2])
			st.Headings = append(st.Headings, Heading{Level: level, Title: title, Line: i, Position: pos})
			if level <= 2 {
				st.Sections = append(st.Sections, Section{Title: title, Start: pos, Line: i})
			}
		}
		pos += len(line) + 1
	}
	for i := range st.Sections {
		if i+1 < len(st.Sections) {
			st.Sections[i].End = st.Sections[i+1].Start
		} else {
			st.Sections[i].End = len(text)
		}
	}
	return st
}

func titleFromText(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > 10 {
		lines = lines[:10]
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if m := titleHeadingRe.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1])
		}
		if line != "" && len(line) < 200 && !strings.HasPrefix(line, "[") {
			if t := strings.TrimSpace(titlePrefixRe.ReplaceAllString(line, "")); t != "" {
				return t
			}
		}
	}
	return ""
}

func authorsFromText(text string) []string {
	header := text
	if len(header) > 2000 {
		header = header[:2000]
	}
	m := authorsRe.FindStringSubmatch(header)
	if m == nil {
		return nil
	}
	return authorsFromLine(m[1])
}

func authorsFromLine(line string) []string {
	var out []string
	for _, n := range authorSplitRe.Split(line, -1) {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func splitFrontmatter(text string) (body, block string, ok bool) {
	if !strings.HasPrefix(text, "---") {
		return text, "", false
	}
	rest := strings.TrimPrefix(text, "---")
	rest = strings.TrimLeft(rest, "\r\n")
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return text, "", false
	}
	block = rest[:end]
	body = rest[end+len("\n---"):]
	body = strings.TrimLeft(body, "\r\n")
	return body, block, true
}

// Validate runs the extraction gate.
func Validate(res *Result) models.Report {
	var r models.Report
	r.Add("text_not_empty", len(res.Text) > 100, "text should be >100 characters", len(res.Text))
	r.Add("metadata_complete", res.Meta.Type != "" && res.Meta.Title != "", "metadata should contain source_type and title",
		fmt.Sprintf("source_type=%q title=%q", res.Meta.Type, res.Meta.Title))
	r.Add("encoding_valid", utf8.ValidString(res.Text), "text should be valid UTF-8", utf8.ValidString(res.Text))
	wc := res.Stats.WordCount
	r.Add("word_count_reasonable", wc > 50 && wc < 500000, "word count should be 50-500,000", wc)
	return r
}
