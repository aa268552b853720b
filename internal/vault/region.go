package vault

import "strings"

// Region names used in record bodies.
const (
	RegionMembers     = "members"
	RegionStatus      = "status"
	RegionConnections = "connections"
)

// Markers returns the start and end comment tokens of a named region.
func Markers(name string) (start, end string) {
	return "<!-- ansuz:" + name + ":start -->", "<!-- ansuz:" + name + ":end -->"
}

// WrapRegion renders content between the region markers, each on its own line.
func WrapRegion(name, content string) string {
	start, end := Markers(name)
	return start + "\n" + content + "\n" + end
}

// Region returns the text between the markers of name. ok is false when
// either marker is missing or they are out of order.
func Region(body, name string) (content string, ok bool) {
	i, j, ok := regionBounds(body, name)
	if !ok {
		return "", false
	}
	return strings.Trim(body[i:j], "\n"), true
}

// ReplaceRegion swaps the content between the markers of name and leaves
// every other byte of body untouched. ok is false when the region is absent.
func ReplaceRegion(body, name, content string) (string, bool) {
	i, j, ok := regionBounds(body, name)
	if !ok {
		return body, false
	}
	return body[:i] + "\n" + content + "\n" + body[j:], true
}

// SetRegion replaces the region when present, or appends a new section
// headed by heading that contains it.
func SetRegion(body, name, heading, content string) string {
	if out, ok := ReplaceRegion(body, name, content); ok {
		return out
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(body, "\n"))
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	if heading != "" {
		b.WriteString(heading)
		b.WriteString("\n\n")
	}
	b.WriteString(WrapRegion(name, content))
	b.WriteString("\n")
	return b.String()
}

// regionBounds returns the byte offsets just after the start marker and
// just before the end marker.
func regionBounds(body, name string) (int, int, bool) {
	start, end := Markers(name)
	s := strings.Index(body, start)
	if s < 0 {
		return 0, 0, false
	}
	i := s + len(start)
	e := strings.Index(body[i:], end)
	if e < 0 {
		return 0, 0, false
	}
	return i, i + e, true
}
