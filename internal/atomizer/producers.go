package atomizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/generation"
)

// input is what every producer sees.
type input struct {
	text    string
	excerpt string
	title   string
	domain  string
}

// producer yields candidate concepts. best is the largest list produced so
// far by earlier producers.
type producer struct {
	name string
	// generative producers are skipped once the gateway is unreachable.
	generative bool
	produce    func(ctx context.Context, in input, best []Concept) ([]Concept, error)
}

func (a *Atomizer) chain() []producer {
	return []producer{
		{name: "prompt", generative: true, produce: a.fromPrompt},
		{name: "retry", generative: true, produce: a.fromRetry},
		{name: "headings", produce: fromHeadings},
		{name: "padding", produce: padded},
	}
}

// run executes producers in order until one yields at least MinConcepts
// concepts, and caps the winner at MaxConcepts.
func (a *Atomizer) run(ctx context.Context, chain []producer, in input) ([]Concept, string, []string) {
	var (
		best        []Concept
		bestName    string
		warnings    []string
		unreachable bool
	)
	for _, p := range chain {
		if p.generative && unreachable {
			continue
		}
		got, err := p.produce(ctx, in, best)
		if err != nil {
			if errors.Is(err, apperr.ErrGenerationUnavailable) {
				unreachable = true
			}
			warnings = append(warnings, fmt.Sprintf("%s: %v", p.name, err))
			a.logger.Warn("atomizer: producer failed", slog.String("producer", p.name), slog.String("error", err.Error()))
		}
		got = normalize(got)
		if len(got) > len(best) || best == nil {
			best, bestName = got, p.name
		}
		if len(got) >= MinConcepts {
			break
		}
		a.logger.Info("atomizer: too few concepts", slog.String("producer", p.name), slog.Int("count", len(got)))
	}
	if len(best) > MaxConcepts {
		best = best[:MaxConcepts]
	}
	return best, bestName, warnings
}

func (a *Atomizer) fromPrompt(ctx context.Context, in input, _ []Concept) ([]Concept, error) {
	return a.ask(ctx, fmt.Sprintf(conceptPrompt, in.title, in.domain, in.excerpt))
}

func (a *Atomizer) fromRetry(ctx context.Context, in input, _ []Concept) ([]Concept, error) {
	return a.ask(ctx, fmt.Sprintf(retryPrompt, in.excerpt))
}

func (a *Atomizer) ask(ctx context.Context, prompt string) ([]Concept, error) {
	if a.gen == nil {
		return nil, apperr.ErrGenerationUnavailable
	}
	out, err := a.gen.Generate(ctx, prompt, generation.WithMaxTokens(3000))
	if err != nil {
		return nil, err
	}
	var concepts []Concept
	if err := generation.DecodeArray(out, &concepts); err != nil {
		return nil, fmt.Errorf("decode concepts: %w", err)
	}
	return concepts, nil
}

var headingRe = regexp.MustCompile(`^#{1,3}\s+(.+)$`)

// fromHeadings turns Markdown headings into skeleton concepts and adds one
// concept for the source as a whole when that is still not enough.
func fromHeadings(_ context.Context, in input, _ []Concept) ([]Concept, error) {
	var out []Concept
	for _, line := range strings.Split(in.text, "\n") {
		m := headingRe.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[1])
		if n := len([]rune(title)); n <= 5 || n >= 100 {
			continue
		}
		out = append(out, Concept{
			Title:        title,
			Definition:   "Concept related to " + title,
			Explanation:  "Details about " + title + " from source.",
			WhyMatters:   "Part of core content",
			Applications: []string{"To be expanded"},
			ConceptType:  "concept",
		})
	}
	if kept := normalize(out); len(kept) < MinConcepts {
		title := in.title
		if hasTitle(kept, title) {
			title = suffixed(title, " (overview)")
		}
		out = append(out, Concept{
			Title:        title,
			Definition:   "Core topic of the source",
			Explanation:  head(in.text, 500),
			WhyMatters:   "Central theme",
			Applications: []string{"To be explored"},
			ConceptType:  "concept",
		})
	}
	return out, nil
}

// padded extends best with one concept per source paragraph until the
// minimum is reached.
func padded(_ context.Context, in input, best []Concept) ([]Concept, error) {
	out := append([]Concept(nil), best...)
	paragraphs := paragraphs(in.text)
	for i := 1; i <= maxPadding && len(normalize(out)) < MinConcepts; i++ {
		explanation := "To be expanded through review."
		if i-1 < len(paragraphs) {
			explanation = head(paragraphs[i-1], 500)
		}
		out = append(out, Concept{
			Title:        suffixed(in.title, fmt.Sprintf(" (aspect %d)", i)),
			Definition:   "A further aspect of " + in.title,
			Explanation:  explanation,
			WhyMatters:   "Completes the picture of the source",
			Applications: []string{"To be explored"},
			ConceptType:  "concept",
		})
	}
	return out, nil
}

// maxPadding bounds the padding loop.
const maxPadding = MinConcepts + MaxConcepts

// suffixed appends suffix to base, shortening base so the whole title stays
// within maxTitleRunes.
func suffixed(base, suffix string) string {
	base = strings.Join(strings.Fields(base), " ")
	room := maxTitleRunes - utf8.RuneCountInString(suffix)
	return strings.TrimSpace(head(base, room)) + suffix
}

func hasTitle(cs []Concept, title string) bool {
	key := strings.ToLower(strings.Join(strings.Fields(title), " "))
	if r := []rune(key); len(r) > maxTitleRunes {
		key = strings.TrimSpace(string(r[:maxTitleRunes]))
	}
	for _, c := range cs {
		if strings.ToLower(c.Title) == key {
			return true
		}
	}
	return false
}

var conceptTypes = map[string]bool{
	"concept": true, "principle": true, "model": true,
	"evidence": true, "mechanism": true, "application": true,
}

// normalize drops untitled concepts and duplicate titles, caps title length
// and maps unknown concept types to "concept".
func normalize(in []Concept) []Concept {
	seen := make(map[string]bool, len(in))
	out := make([]Concept, 0, len(in))
	for _, c := range in {
		c.Title = strings.Join(strings.Fields(c.Title), " ")
		if c.Title == "" {
			continue
		}
		if r := []rune(c.Title); len(r) > maxTitleRunes {
			c.Title = strings.TrimSpace(string(r[:maxTitleRunes]))
		}
		key := strings.ToLower(c.Title)
		if seen[key] {
			continue
		}
		seen[key] = true
		c.ConceptType = strings.ToLower(strings.TrimSpace(c.ConceptType))
		if !conceptTypes[c.ConceptType] {
			c.ConceptType = "concept"
		}
		out = append(out, c)
	}
	return out
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		out = append(out, p)
	}
	return out
}

// head returns the first n runes of s.
func head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
