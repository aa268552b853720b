package generation

import (
	"context"
	"fmt"
	"slices"
)

// Embedder turns texts into vectors. Both Ollama and OpenAI satisfy it.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

var (
	_ Gateway  = (*Ollama)(nil)
	_ Gateway  = (*OpenAI)(nil)
	_ Gateway  = (*Fallback)(nil)
	_ Gateway  = (*Defaults)(nil)
	_ Embedder = (*Ollama)(nil)
	_ Embedder = (*OpenAI)(nil)
)

// Config mirrors the generation config group.
type Config struct {
	Provider      string
	Fallback      string
	MaxTokens     int
	Temperature   float64
	MaxConcurrent int64
	OllamaURL     string
	OllamaModel   string
	OllamaEmbed   string
	OpenAIURL     string
	OpenAIKey     string
	OpenAIModel   string
	OpenAIEmbed   string
}

// New builds the configured gateway, wrapping it in a Fallback when a
// secondary provider is named and in Defaults when MaxTokens or Temperature
// are set.
func New(cfg Config) (Gateway, error) {
	gw, err := provider(cfg, cfg.Provider)
	if err != nil {
		return nil, err
	}
	if cfg.Fallback != "" && cfg.Fallback != "none" && cfg.Fallback != cfg.Provider {
		secondary, err := provider(cfg, cfg.Fallback)
		if err != nil {
			return nil, err
		}
		gw = &Fallback{Primary: gw, Secondary: secondary}
	}

	var defaults []Option
	if cfg.MaxTokens > 0 {
		defaults = append(defaults, WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.Temperature > 0 {
		defaults = append(defaults, WithTemperature(cfg.Temperature))
	}
	if len(defaults) == 0 {
		return gw, nil
	}
	return &Defaults{Gateway: gw, Options: defaults}, nil
}

// Defaults applies Options ahead of the per-call options, so callers can
// still override them.
type Defaults struct {
	Gateway Gateway
	Options []Option
}

// Generate implements Gateway.
func (d *Defaults) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	return d.Gateway.Generate(ctx, prompt, append(slices.Clone(d.Options), opts...)...)
}

// NewEmbedder builds the embedding client for the named provider.
func NewEmbedder(cfg Config, name string) (Embedder, error) {
	g, err := provider(cfg, name)
	if err != nil {
		return nil, err
	}
	e, ok := g.(Embedder)
	if !ok {
		return nil, fmt.Errorf("generation: provider %q cannot embed", name)
	}
	return e, nil
}

func provider(cfg Config, name string) (Gateway, error) {
	switch name {
	case "", "ollama":
		return NewOllama(OllamaParams{
			BaseURL:       cfg.OllamaURL,
			Model:         cfg.OllamaModel,
			EmbedModel:    cfg.OllamaEmbed,
			MaxConcurrent: cfg.MaxConcurrent,
		})
	case "openai":
		return NewOpenAI(OpenAIParams{
			BaseURL:       cfg.OpenAIURL,
			APIKey:        cfg.OpenAIKey,
			Model:         cfg.OpenAIModel,
			EmbedModel:    cfg.OpenAIEmbed,
			MaxConcurrent: cfg.MaxConcurrent,
		}), nil
	default:
		return nil, fmt.Errorf("generation: unknown provider %q", name)
	}
}
