// Package classifier assigns a taxonomy label (domain, PARA placement, maps
// and hierarchical tags) to an extracted source.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/starford/ansuz/internal/generation"
	"github.com/starford/ansuz/internal/models"
)

// KnownDomains are offered to the model as preferred domain names.
var KnownDomains = []string{
	"neuroscience", "philosophy", "systems", "computer-science",
	"mathematics", "psychology", "biology", "physics", "chemistry",
	"economics", "sociology", "literature", "history", "art",
	"business", "education", "health", "engineering",
}

var domainDirs = map[string]string{
	"neuroscience":     "41-Neuroscience",
	"philosophy":       "42-Philosophy",
	"systems":          "43-Systems",
	"computer-science": "44-Computer-Science",
	"mathematics":      "45-Mathematics",
	"psychology":       "46-Psychology",
	"biology":          "47-Biology",
	"physics":          "48-Physics",
	"chemistry":        "49-Chemistry",
}

// FallbackDomain is used when no usable classification is available.
const FallbackDomain = "general"

// response is the JSON shape requested from the model.
type response struct {
	Domain      string   `json:"domain"`
	Subdomain   string   `json:"subdomain"`
	ContentType string   `json:"content_type"`
	Maps        []string `json:"mocs"`
	KeyTopics   []string `json:"key_topics"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// Classifier labels sources through a generation gateway.
type Classifier struct {
	gen    generation.Gateway
	logger *slog.Logger
}

// New returns a Classifier.
func New(gen generation.Gateway, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{gen: gen, logger: logger}
}

// Classify asks the model for a taxonomy label. A malformed response yields
// the fallback label; a gateway failure yields the fallback label together
// with the error so the caller can record a warning.
func (c *Classifier) Classify(ctx context.Context, text string, meta models.SourceMeta) (models.Classification, error) {
	out, err := c.gen.Generate(ctx, buildPrompt(text, meta),
		generation.WithMaxTokens(500),
		generation.WithSchema(response{}),
	)
	if err != nil {
		c.logger.Warn("classifier: generation failed", slog.String("error", err.Error()))
		return build(fallback(), meta.Type), fmt.Errorf("classifier: %w", err)
	}

	var resp response
	if err := generation.DecodeObject(out, &resp); err != nil {
		c.logger.Warn("classifier: unparseable response, using fallback", slog.String("error", err.Error()))
		resp = fallback()
	}
	cl := build(resp, meta.Type)
	c.logger.Debug("classifier: classified",
		slog.String("domain", cl.Domain),
		slog.String("para_path", cl.ParaPath),
		slog.Int("maps", len(cl.Maps)))
	return cl, nil
}

func fallback() response {
	half := 0.5
	return response{Domain: FallbackDomain, ContentType: "concept", Confidence: &half}
}

// build turns a raw model response into a full classification.
func build(resp response, sourceType string) models.Classification {
	domain := strings.TrimSpace(resp.Domain)
	if domain == "" {
		domain = FallbackDomain
	}
	contentType := strings.TrimSpace(resp.ContentType)
	if contentType == "" {
		contentType = "concept"
	}
	confidence := 0.75
	if resp.Confidence != nil {
		confidence = *resp.Confidence
	}
	resp.Domain, resp.ContentType = domain, contentType

	cl := models.Classification{
		Domain:       domain,
		Subdomain:    strings.TrimSpace(resp.Subdomain),
		ParaCategory: paraCategory(sourceType),
		Maps:         nonEmpty(resp.Maps),
		Tags:         hierarchicalTags(resp),
		ContentType:  contentType,
		Confidence:   confidence,
	}
	cl.ParaPath = ParaPath(cl.ParaCategory, domain)
	return cl
}

// Fallback returns the label used when classification is skipped entirely.
func Fallback(sourceType string) models.Classification {
	return build(fallback(), sourceType)
}

// paraCategory places every source under Resources; projects and areas need
// user context the pipeline does not have.
func paraCategory(string) string { return "Resources" }

var categoryPrefix = map[string]string{
	"Projects":  "1-Projects",
	"Areas":     "2-Areas",
	"Resources": "3-Resources",
	"Archives":  "4-Archives",
}

// ParaPath builds the PARA folder for a category and domain.
func ParaPath(category, domain string) string {
	prefix, ok := categoryPrefix[category]
	if !ok {
		prefix = "3-Resources"
	}
	dir, ok := domainDirs[domain]
	if !ok {
		dir = "40-" + titleCase(domain)
	}
	return prefix + "/" + dir
}

func hierarchicalTags(resp response) []string {
	var tags []string
	tags = append(tags, resp.Domain)
	if sub := strings.TrimSpace(resp.Subdomain); sub != "" {
		tags = append(tags, resp.Domain+"/"+sub)
	}
	tags = append(tags, "type/"+resp.ContentType)
	n := 0
	for _, topic := range resp.KeyTopics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		if n == 5 {
			break
		}
		tags = append(tags, "topic/"+strings.ReplaceAll(strings.ToLower(topic), " ", "-"))
		n++
	}
	return append(tags, "zk/permanent", "basb/resource")
}

// titleCase upper-cases the first letter of every alphabetic run.
func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		prevLetter = false
		b.WriteRune(r)
	}
	return b.String()
}

func nonEmpty(in []string) []string {
	out := []string{}
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate runs the advisory classification gate.
func Validate(cl models.Classification) models.Report {
	var r models.Report
	r.Add("domain_present", cl.Domain != "", "domain should be specified", cl.Domain)
	r.Add("para_path_valid", cl.ParaPath != "", "PARA path should be generated", cl.ParaPath)
	r.Add("mocs_suggested", len(cl.Maps) >= 1, "should suggest at least 1 map", len(cl.Maps))
	r.Add("tags_present", len(cl.Tags) >= 3, "should have at least 3 tags", len(cl.Tags))
	return r
}
