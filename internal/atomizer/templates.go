package atomizer

import (
	"strings"
	"time"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/vault"
)

const conceptPrompt = `You are an expert knowledge curator following Zettelkasten principles.

Extract 5-15 ATOMIC concepts from this text. Each concept must be:
1. **Atomic**: One clear idea that stands alone
2. **Autonomous**: Makes sense without the source
3. **Valuable**: Worth remembering long-term
4. **Specific**: Concrete, not vague

Source title: %s
Domain: %s

Text:
%s

For each concept, provide:
1. **title**: Clear, descriptive title (3-8 words)
2. **definition**: One-sentence atomic definition
3. **explanation**: 2-3 paragraphs explaining the concept
4. **why_matters**: Why this concept is important
5. **applications**: 2-3 practical applications
6. **connections**: Related concepts (we'll link later)
7. **concept_type**: concept/principle/model/evidence/mechanism

Return as JSON array:
[
  {
    "title": "Concept Title",
    "definition": "One-sentence definition",
    "explanation": "Detailed explanation...",
    "why_matters": "Why it matters...",
    "applications": ["App 1", "App 2"],
    "connections": ["Related concept 1", "Related concept 2"],
    "concept_type": "concept"
  }
]

Return ONLY valid JSON, no other text.
`

const retryPrompt = `Extract MORE concepts. Aim for 8-12 atomic concepts.

Break down the text into granular, specific concepts. Don't be too general.

Text:
%s

Return JSON array of concepts (same format as before).
`

const dateLayout = "2006-01-02"

func renderLiterature(text string, meta models.SourceMeta, cl models.Classification, title string, now time.Time) string {
	authors := "Unknown"
	if len(meta.Authors) > 0 {
		authors = strings.Join(meta.Authors, ", ")
	}
	preview := text
	if r := []rune(text); len(r) > 800 {
		preview = string(r[:800]) + "..."
	}
	mapLink := "Add MOC link"
	if len(cl.Maps) > 0 {
		mapLink = "[[" + cl.Maps[0] + "]]"
	}
	layer1 := now.AddDate(0, 0, 7).Format(dateLayout)
	layer2 := now.AddDate(0, 0, 30).Format(dateLayout)
	layer3 := now.AddDate(0, 0, 90).Format(dateLayout)

	var b strings.Builder
	b.WriteString("# " + title + "\n\n")
	b.WriteString("> [!info] Bibliographic Information\n")
	b.WriteString("> **Authors:** " + authors + "\n")
	b.WriteString("> **Type:** " + orDefault(meta.Type, "unknown") + "\n")
	b.WriteString("> **File:** " + orDefault(meta.FileName, "unknown") + "\n")
	b.WriteString("> **Status:** Seedling (captured, not yet processed)\n\n---\n\n")

	b.WriteString("## Layer 0: Raw Capture\n\n")
	b.WriteString("> [!question] Initial Questions\n")
	b.WriteString("> - What is the main thesis or argument?\n")
	b.WriteString("> - What evidence or examples support it?\n")
	b.WriteString("> - How does this connect to my existing knowledge?\n\n")
	b.WriteString(preview + "\n\n---\n\n")

	b.WriteString("## Permanent Notes Extracted\n\n")
	b.WriteString("> [!tip] These atomic concepts were distilled from this source\n\n")
	b.WriteString(PermanentListPlaceholder + "\n\n---\n\n")

	b.WriteString("## Layer 1: Bold Key Passages\n\n")
	b.WriteString("> [!note] Progressive Summarization - Layer 1\n")
	b.WriteString("> When you first **USE** information from this source, bold the 10-20% most important passages.\n\n")
	b.WriteString("**Target Date:** " + layer1 + "\n\n---\n\n")

	b.WriteString("## Layer 2: Highlight Critical Insights\n\n")
	b.WriteString("> [!note] Progressive Summarization - Layer 2\n")
	b.WriteString("> When this becomes **CRITICAL** to a project, highlight 10-20% of the bolded text with `==highlight==`.\n\n")
	b.WriteString("**Target Date:** " + layer2 + "\n\n---\n\n")

	b.WriteString("## Layer 3: Executive Summary\n\n")
	b.WriteString("> [!note] Progressive Summarization - Layer 3\n")
	b.WriteString("> When you need to **EXPLAIN** this to others, write a 3-5 sentence summary.\n\n")
	b.WriteString("**Target Date:** " + layer3 + "\n\n---\n\n")

	b.WriteString("## Connections\n\n")
	b.WriteString("### Related Sources\n- Add: `[[similar-source]]`\n\n")
	b.WriteString("### Relevant MOCs\n- " + mapLink + "\n\n---\n\n")

	b.WriteString("## Raw Content\n\n")
	b.WriteString(text + "\n\n---\n\n")

	b.WriteString("## Processing Questions\n\n")
	b.WriteString("- [ ] What assumptions does the author make?\n")
	b.WriteString("- [ ] What are potential weaknesses in the argument?\n")
	b.WriteString("- [ ] How could I apply this practically?\n")
	b.WriteString("- [ ] What questions does this raise?\n\n---\n\n")

	b.WriteString("## Review Schedule\n\n")
	b.WriteString("- [ ] " + layer1 + ": Check permanent notes, add bold (Layer 1)\n")
	b.WriteString("- [ ] " + layer2 + ": Highlight critical passages if needed (Layer 2)\n")
	b.WriteString("- [ ] " + layer3 + ": Create executive summary if needed (Layer 3)\n\n")
	b.WriteString("**Next Review:** " + layer1 + "\n")
	return b.String()
}

func renderPermanent(c Concept, sourceTitle string, now time.Time) string {
	next := now.AddDate(0, 0, 7).Format(dateLayout)

	applications := bullets(c.Applications, "- ", "")
	if applications == "" {
		applications = "- To be identified through use"
	}
	suggested := bullets(c.Connections, "- [[", "]]")
	if suggested == "" {
		suggested = "- None suggested"
	}
	explanation := orDefault(c.Explanation, "To be expanded through review")
	evidence := c.Explanation
	if r := []rune(evidence); len(r) > 200 {
		evidence = string(r[:200]) + "..."
	}

	var b strings.Builder
	b.WriteString("# " + c.Title + "\n\n")
	b.WriteString("> [!abstract] Atomic Definition\n")
	b.WriteString("> **" + orDefault(c.Definition, c.Title) + "**\n>\n")
	b.WriteString("> **Type:** " + c.ConceptType + " | **Status:** Seedling | **Confidence:** 75%\n\n---\n\n")

	b.WriteString("## What Is This?\n\n" + explanation + "\n\n---\n\n")
	b.WriteString("## Why Does This Matter?\n\n" + orDefault(c.WhyMatters, "Significance to be elaborated") + "\n\n---\n\n")
	b.WriteString("## How to Apply This\n\n" + applications + "\n\n---\n\n")

	b.WriteString("## Connections\n\n")
	b.WriteString(vault.WrapRegion(vault.RegionConnections, "- Will be linked automatically") + "\n\n")
	b.WriteString("**Suggested by source:**\n" + suggested + "\n\n---\n\n")

	b.WriteString("## Evidence & Examples\n\n**From source:**\n" + evidence + "\n\n---\n\n")
	b.WriteString("## Source Trail\n\n**Primary Source:** [[" + sourceTitle + "]]\n\n---\n\n")

	b.WriteString("## Open Questions\n\n")
	b.WriteString("- [ ] How does this connect to related concepts?\n")
	b.WriteString("- [ ] What are the edge cases or limitations?\n")
	b.WriteString("- [ ] Can I test this practically?\n\n---\n\n")

	b.WriteString("## Evolution\n\n**Current Status:** Seedling (new, needs review)\n\n")
	b.WriteString("**Review History:**\n")
	b.WriteString("- " + now.Format(dateLayout) + ": Created from literature note\n")
	b.WriteString("- Next: " + next + "\n\n---\n\n")
	b.WriteString("**Confidence:** 75% (initial) | **Completeness:** 60% (needs depth)\n")
	return b.String()
}

func bullets(items []string, prefix, suffix string) string {
	var lines []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			lines = append(lines, prefix+it+suffix)
		}
	}
	return strings.Join(lines, "\n")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
