package classifier

import (
	"fmt"
	"strings"

	"github.com/starford/ansuz/internal/models"
)

const promptTemplate = `You are an expert knowledge taxonomist.

Classify this content into a clear taxonomy.

**Title:** %s
**Source Type:** %s

**Content Sample:**
%s

Provide classification as JSON:
{
  "domain": "primary domain (one of: %s... or other)",
  "subdomain": "specific subdomain",
  "content_type": "concept|principle|model|evidence|mechanism|application",
  "mocs": ["MOC Name 1", "MOC Name 2"],
  "key_topics": ["topic1", "topic2", "topic3"],
  "confidence": 0.85
}

Rules:
1. Domain: Choose most specific domain
2. Subdomain: Narrow specialty within domain
3. MOCs: 2-4 Maps of Content that should index this
4. Key topics: 3-6 specific topics covered

Return ONLY valid JSON, no other text.
`

func buildPrompt(text string, meta models.SourceMeta) string {
	title := meta.Title
	if title == "" {
		title = "Untitled"
	}
	sourceType := meta.Type
	if sourceType == "" {
		sourceType = "unknown"
	}
	return fmt.Sprintf(promptTemplate, title, sourceType, head(text, 2000), strings.Join(KnownDomains[:10], ", "))
}

// head returns the first n runes of s.
func head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
