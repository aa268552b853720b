package vault

import (
	"path"
	"regexp"
	"strings"
)

// Top-level vault directories.
const (
	LiteratureDir = "02-Literature"
	PermanentDir  = "03-Permanent"
	MapsDir       = "04-MOCs"
)

var (
	invalidNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	slugDrop         = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	slugSpace        = regexp.MustCompile(`[\s_]+`)
	slugDashes       = regexp.MustCompile(`-+`)
)

// Sanitize turns a title into a file name stem: characters invalid on common
// file systems are removed, spaces become dashes and the result is capped at
// 100 runes.
func Sanitize(title string) string {
	s := invalidNameChars.ReplaceAllString(title, "")
	s = strings.ReplaceAll(s, " ", "-")
	if r := []rune(s); len(r) > 100 {
		s = string(r[:100])
	}
	return s
}

// Slug lower-cases name, drops punctuation and joins words with single dashes.
func Slug(name string) string {
	s := strings.ToLower(name)
	s = slugDrop.ReplaceAllString(s, "")
	s = slugSpace.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// LiteraturePath places a literature record by source type.
func LiteraturePath(sourceType, title string) string {
	sub := "articles"
	switch sourceType {
	case "academic_paper":
		sub = "papers"
	case "book":
		sub = "books"
	}
	return path.Join(LiteratureDir, sub, Sanitize(title)+".md")
}

// PermanentPath places a permanent record under a folder named after its
// concept type in plural form.
func PermanentPath(conceptType, title string) string {
	if conceptType == "" {
		conceptType = "concept"
	}
	return path.Join(PermanentDir, conceptType+"s", Sanitize(title)+".md")
}

// MapPath resolves a map name to its file.
func MapPath(name string) string {
	return path.Join(MapsDir, Slug(name)+".md")
}
