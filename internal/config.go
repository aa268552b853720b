package internal

import (
	"fmt"
	"log/slog"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/generation"
	"github.com/starford/ansuz/internal/mapmaint"
	"github.com/starford/ansuz/internal/similarity"
)

var absPathRe = regexp.MustCompile(`^/[A-Za-z0-9/_-]*$`)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Generation providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Vault      VaultConfig       `yaml:"vault"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Generation GenerationConfig  `yaml:"generation"`
	Similarity SimilarityConfig  `yaml:"similarity"`
	Pipeline   PipelineConfig    `yaml:"pipeline"`
	Metrics    MetricsConfig     `yaml:"metrics"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Vault, &c.SQLite, &c.Auth,
		&c.Generation, &c.Similarity, &c.Pipeline, &c.Metrics,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory and the inbox
// that receives uploaded sources.
type VaultConfig struct {
	Path  string `yaml:"path"`
	Inbox string `yaml:"inbox"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// GenerationConfig selects the language-generation providers.
type GenerationConfig struct {
	Provider      string       `yaml:"provider"`
	Fallback      string       `yaml:"fallback"`
	MaxTokens     int          `yaml:"max_tokens"`
	Temperature   float64      `yaml:"temperature"`
	ContextTokens int          `yaml:"context_tokens"`
	MaxConcurrent int64        `yaml:"max_concurrent"`
	Ollama        OllamaConfig `yaml:"ollama"`
	OpenAI        OpenAIConfig `yaml:"openai"`
}

// OllamaConfig holds the Ollama endpoint and models.
type OllamaConfig struct {
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	EmbedModel string `yaml:"embed_model"`
}

// OpenAIConfig holds an OpenAI-compatible endpoint and models.
type OpenAIConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	EmbedModel string `yaml:"embed_model"`
}

// Validate validates the generation configuration.
func (c *GenerationConfig) Validate() error {
	if c.Fallback == "" {
		c.Fallback = ProviderNone
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(ProviderOllama, ProviderOpenAI)),
		validation.Field(&c.Fallback, validation.In(ProviderNone, ProviderOllama, ProviderOpenAI)),
		validation.Field(&c.MaxTokens, validation.Min(0)),
		validation.Field(&c.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&c.ContextTokens, validation.Min(0)),
		validation.Field(&c.MaxConcurrent, validation.Required, validation.Min(int64(1))),
	); err != nil {
		return err
	}
	if c.uses(ProviderOpenAI) && c.OpenAI.APIKey == "" && c.OpenAI.BaseURL == "" {
		return fmt.Errorf("generation: openai needs api_key or a compatible base_url")
	}
	return nil
}

func (c *GenerationConfig) uses(name string) bool {
	return c.Provider == name || c.Fallback == name
}

// Params converts the group into generation client settings.
func (c *GenerationConfig) Params() generation.Config {
	fallback := c.Fallback
	if fallback == ProviderNone {
		fallback = ""
	}
	return generation.Config{
		Provider:      c.Provider,
		Fallback:      fallback,
		MaxTokens:     c.MaxTokens,
		Temperature:   c.Temperature,
		MaxConcurrent: c.MaxConcurrent,
		OllamaURL:     c.Ollama.BaseURL,
		OllamaModel:   c.Ollama.Model,
		OllamaEmbed:   c.Ollama.EmbedModel,
		OpenAIURL:     c.OpenAI.BaseURL,
		OpenAIKey:     c.OpenAI.APIKey,
		OpenAIModel:   c.OpenAI.Model,
		OpenAIEmbed:   c.OpenAI.EmbedModel,
	}
}

// SimilarityConfig selects the vector index backing the similarity strategy.
type SimilarityConfig struct {
	Backend    string `yaml:"backend"`
	Embedder   string `yaml:"embedder"`
	Dimensions int    `yaml:"dimensions"`
}

// Validate validates the similarity configuration.
func (c *SimilarityConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = similarity.BackendNone
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.In(similarity.BackendNone, similarity.BackendMemory, similarity.BackendSQLite)),
		validation.Field(&c.Embedder, validation.When(c.Enabled(),
			validation.Required, validation.In(ProviderOllama, ProviderOpenAI))),
		validation.Field(&c.Dimensions, validation.Min(0)),
	)
}

// Enabled reports whether a similarity backend is configured.
func (c *SimilarityConfig) Enabled() bool {
	return c.Backend != similarity.BackendNone && c.Backend != ""
}

// PipelineConfig tunes the orchestrator.
type PipelineConfig struct {
	LinkWorkers   int  `yaml:"link_workers"`
	BatchWorkers  int  `yaml:"batch_workers"`
	RelinkOrphans bool `yaml:"relink_orphans"`
	MinMapNotes   int  `yaml:"min_map_notes"`
}

// Validate validates the pipeline configuration.
func (c *PipelineConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LinkWorkers, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.BatchWorkers, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.MinMapNotes, validation.Required, validation.Min(1)),
	)
}

// MetricsConfig exposes Prometheus metrics at Path when Enabled.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the metrics configuration.
func (c *MetricsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required, validation.Match(absPathRe))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:  "./vault",
			Inbox: "./inbox",
		},
		SQLite: SQLiteConfig{
			Path: "./ansuz.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Generation: GenerationConfig{
			Provider:      ProviderOllama,
			Fallback:      ProviderNone,
			MaxTokens:     1000,
			Temperature:   0.7,
			ContextTokens: 6000,
			MaxConcurrent: 2,
			Ollama: OllamaConfig{
				Model:      "llama3.1",
				EmbedModel: "nomic-embed-text",
			},
			OpenAI: OpenAIConfig{
				Model:      "gpt-4o-mini",
				EmbedModel: "text-embedding-3-small",
			},
		},
		Similarity: SimilarityConfig{
			Backend:  similarity.BackendSQLite,
			Embedder: ProviderOllama,
		},
		Pipeline: PipelineConfig{
			LinkWorkers:  4,
			BatchWorkers: 2,
			MinMapNotes:  mapmaint.DefaultMinRecords,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
