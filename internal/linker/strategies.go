package linker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/starford/ansuz/internal/generation"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/similarity"
)

// candidates runs the three strategies for rec and merges their output.
func (l *Linker) candidates(ctx context.Context, rec *models.Record, all []*models.Record, byID map[string]*models.Record, p pass) ([]models.Edge, []string) {
	var (
		edges    []models.Edge
		warnings []string
	)
	sim, err := l.bySimilarity(ctx, rec, byID, p.topK)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("similarity %q: %v", rec.Title, err))
		l.logger.Warn("linker: similarity failed", slog.String("record", rec.Title), slog.String("error", err.Error()))
	}
	edges = append(edges, sim...)

	if len(sim) < 5 || p.forceGeneration {
		gen, err := l.byGeneration(ctx, rec, all, p)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("generation %q: %v", rec.Title, err))
			l.logger.Warn("linker: generation failed", slog.String("record", rec.Title), slog.String("error", err.Error()))
		}
		edges = append(edges, gen...)
	}

	edges = append(edges, byAttributes(rec, all, p.requireDomain)...)
	return Merge(edges), warnings
}

// bySimilarity only keeps hits that resolve to a record in byID; the index
// may still hold records that were since replaced or removed.
func (l *Linker) bySimilarity(ctx context.Context, rec *models.Record, byID map[string]*models.Record, k int) ([]models.Edge, error) {
	if l.index == nil {
		return nil, nil
	}
	hits, err := l.index.Query(ctx, queryText(rec), k, similarity.Filter{
		Exclude:      []string{rec.ID},
		ExcludeAttrs: map[string]string{"kind": string(models.KindLiterature)},
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.Edge, 0, len(hits))
	for _, h := range hits {
		target, ok := byID[h.ID]
		if !ok || h.ID == rec.ID {
			continue
		}
		c := math.Max(0, math.Min(1, 1-h.Distance))
		out = append(out, models.Edge{
			Target:     target.Title,
			TargetID:   h.ID,
			Type:       typeForConfidence(c),
			Confidence: round2(c),
			Context:    fmt.Sprintf("Semantically similar (%d%%)", int(math.Round(c*100))),
			Strategy:   models.StrategySimilarity,
		})
	}
	return out, nil
}

func typeForConfidence(c float64) models.EdgeType {
	switch {
	case c > 0.85:
		return models.EdgeSupports
	case c > 0.75:
		return models.EdgeRelated
	case c > 0.65:
		return models.EdgeExtends
	default:
		return models.EdgeRelated
	}
}

// pick is one connection proposed by the model.
type pick struct {
	NoteNumber *int     `json:"note_number"`
	LinkType   string   `json:"link_type"`
	Context    string   `json:"context"`
	Confidence *float64 `json:"confidence"`
}

func (l *Linker) byGeneration(ctx context.Context, rec *models.Record, all []*models.Record, p pass) ([]models.Edge, error) {
	if l.gen == nil {
		return nil, nil
	}
	cands := generationCandidates(rec, all, p)
	if len(cands) == 0 {
		return nil, nil
	}
	out, err := l.gen.Generate(ctx, linkPrompt(rec, cands), generation.WithMaxTokens(800))
	if err != nil {
		return nil, err
	}
	var picks []pick
	if err := generation.DecodeArray(out, &picks); err != nil {
		return nil, err
	}
	edges := make([]models.Edge, 0, len(picks))
	for _, pk := range picks {
		n := 1
		if pk.NoteNumber != nil {
			n = *pk.NoteNumber
		}
		if n < 1 || n > len(cands) {
			continue
		}
		target := cands[n-1]
		typ, ok := models.ParseEdgeType(strings.ToLower(strings.TrimSpace(pk.LinkType)))
		if !ok {
			typ = models.EdgeRelated
		}
		c := 0.7
		if pk.Confidence != nil {
			c = math.Max(0, math.Min(1, *pk.Confidence))
		}
		edges = append(edges, models.Edge{
			Target:     target.Title,
			TargetID:   target.ID,
			Type:       typ,
			Confidence: c,
			Context:    strings.TrimSpace(pk.Context),
			Strategy:   models.StrategyGeneration,
		})
	}
	return edges, nil
}

// generationCandidates returns same-domain records first, then others, at
// most p.sameDomain + p.otherDomain of them.
func generationCandidates(rec *models.Record, all []*models.Record, p pass) []*models.Record {
	var same, other []*models.Record
	for _, c := range all {
		if c.ID == rec.ID {
			continue
		}
		if c.Domain == rec.Domain {
			same = append(same, c)
		} else {
			other = append(other, c)
		}
	}
	if len(same) > p.sameDomain {
		same = same[:p.sameDomain]
	}
	if len(other) > p.otherDomain {
		other = other[:p.otherDomain]
	}
	return append(same, other...)
}

const linkPromptTemplate = `You are an expert at creating Zettelkasten connections.

Source note:
**Title:** %s
**Content:** %s

Candidate notes to link to:
%s

Identify 3-6 meaningful connections. For each:
1. Which note to link (by number)
2. Link type: supports/extends/applies/prerequisite/contrasts/related
3. Why the connection matters (brief context)
4. Confidence 0-1

Return JSON:
[
  {
    "note_number": 1,
    "link_type": "supports",
    "context": "Provides evidence for this concept",
    "confidence": 0.85
  }
]

Return ONLY valid JSON.
`

func linkPrompt(rec *models.Record, cands []*models.Record) string {
	lines := make([]string, len(cands))
	for i, c := range cands {
		lines[i] = fmt.Sprintf("%d. [[%s]] - %s...", i+1, c.Title, head(c.Body, 150))
	}
	return fmt.Sprintf(linkPromptTemplate, rec.Title, head(rec.Body, 800), strings.Join(lines, "\n"))
}

// byAttributes links records that share at least two tags, and the domain
// when requireDomain is set.
func byAttributes(rec *models.Record, all []*models.Record, requireDomain bool) []models.Edge {
	tags := make(map[string]bool, len(rec.Tags))
	for _, t := range rec.Tags {
		tags[t] = true
	}
	var out []models.Edge
	for _, c := range all {
		if c.ID == rec.ID {
			continue
		}
		if requireDomain && c.Domain != rec.Domain {
			continue
		}
		shared := 0
		seen := make(map[string]bool, len(c.Tags))
		for _, t := range c.Tags {
			if tags[t] && !seen[t] {
				shared++
			}
			seen[t] = true
		}
		if shared < 2 {
			continue
		}
		why := fmt.Sprintf("%d shared tags", shared)
		if c.Domain == rec.Domain {
			why = "Same domain, " + why
		}
		out = append(out, models.Edge{
			Target:     c.Title,
			TargetID:   c.ID,
			Type:       models.EdgeRelated,
			Confidence: round2(math.Min(0.6+0.05*float64(shared), 0.85)),
			Context:    why,
			Strategy:   models.StrategyAttribute,
		})
	}
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
