// Package parser reads and writes vault records: YAML frontmatter followed by a Markdown body.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/ansuz/internal/models"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

const delim = "---"

// ParseRecord decodes a vault file into a record. A file without frontmatter,
// or with frontmatter that is not valid YAML, becomes a record whose body is
// the whole file and whose title is the first H1 heading.
func ParseRecord(data []byte) (*models.Record, error) {
	fm, body, ok := splitFrontmatter(data)

	rec := &models.Record{}
	if ok {
		if err := yaml.Unmarshal(fm, rec); err != nil {
			rec = &models.Record{}
			body = string(data)
		}
	}
	rec.Body = body
	if rec.Title == "" {
		rec.Title = deriveTitle(body)
	}
	rec.Tags = mergeTags(rec.Tags, body)
	return rec, nil
}

// RenderRecord encodes a record as frontmatter plus body. The body is written
// unchanged, so ParseRecord(RenderRecord(r)).Body == r.Body for bodies that
// do not start with a newline.
func RenderRecord(r *models.Record) ([]byte, error) {
	var fm bytes.Buffer
	enc := yaml.NewEncoder(&fm)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
	}

	var out bytes.Buffer
	out.Grow(fm.Len() + len(r.Body) + 16)
	out.WriteString(delim + "\n")
	out.Write(fm.Bytes())
	out.WriteString(delim + "\n")
	out.WriteString(r.Body)
	if !strings.HasSuffix(r.Body, "\n") {
		out.WriteByte('\n')
	}
	return out.Bytes(), nil
}

// splitFrontmatter separates the YAML block between leading --- delimiters
// from the body. ok is false when no frontmatter is present.
func splitFrontmatter(data []byte) (fm []byte, body string, ok bool) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), false
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), false
	}

	fm = rest[:idx]
	after := string(rest[idx+1+len(delim):])
	after = strings.TrimPrefix(after, "\r")
	after = strings.TrimPrefix(after, "\n")
	return fm, after, true
}

// Wikilinks returns deduplicated [[wikilink]] targets in order of appearance.
// Aliases ([[Target|Alias]]) resolve to the target.
func Wikilinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := m[1]
		if i := strings.Index(target, "|"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// mergeTags appends inline #tags from body to the frontmatter tags.
func mergeTags(tags []string, body string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		if _, dup := seen[m[1]]; !dup {
			seen[m[1]] = struct{}{}
			out = append(out, m[1])
		}
	}
	return out
}

func deriveTitle(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
