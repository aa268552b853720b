package generation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// OllamaParams configures an Ollama client.
type OllamaParams struct {
	BaseURL       string
	Model         string
	EmbedModel    string
	MaxConcurrent int64
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// Ollama talks to a local Ollama server through its chat and embed endpoints.
type Ollama struct {
	model      string
	embedModel string
	timeout    time.Duration
	reqLock    *semaphore.Weighted

	Client *api.Client
}

// NewOllama builds an Ollama client. An empty BaseURL selects the library
// default (OLLAMA_HOST or localhost:11434).
func NewOllama(p OllamaParams) (*Ollama, error) {
	var (
		u   *url.URL
		err error
	)
	if p.BaseURL != "" {
		u, err = url.Parse(p.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("generation: ollama base url: %w", err)
		}
	}
	hc := p.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	if u == nil {
		cli, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("generation: ollama client: %w", err)
		}
		return newOllama(p, cli), nil
	}
	return newOllama(p, api.NewClient(u, hc)), nil
}

func newOllama(p OllamaParams, cli *api.Client) *Ollama {
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 2
	}
	if p.Model == "" {
		p.Model = "llama3.2"
	}
	if p.Timeout <= 0 {
		p.Timeout = 120 * time.Second
	}
	return &Ollama{
		model:      p.Model,
		embedModel: p.EmbedModel,
		timeout:    p.Timeout,
		reqLock:    semaphore.NewWeighted(p.MaxConcurrent),
		Client:     cli,
	}
}

// Generate implements Gateway.
func (c *Ollama) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	options := NewOptions(opts...)
	if options.Model == "" {
		options.Model = c.model
	}

	stream := false
	req := &api.ChatRequest{
		Model: options.Model,
		Messages: []api.Message{
			{Role: "user", Content: prompt},
		},
		Stream: &stream,
		Options: map[string]any{
			"temperature": options.Temperature,
			"num_predict": options.MaxTokens,
		},
	}
	if options.Schema != nil {
		format, err := schemaJSON(options.Schema)
		if err != nil {
			return "", fmt.Errorf("generation: ollama schema: %w", err)
		}
		req.Format = format
	} else if options.JSON {
		req.Format = []byte(`"json"`)
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return "", classify("ollama", err)
	}
	defer c.reqLock.Release(1)

	var content string
	err := c.Client.Chat(rCtx, req, func(cr api.ChatResponse) error {
		content += cr.Message.Content
		return nil
	})
	if err != nil {
		return "", classify("ollama", err)
	}
	return content, nil
}

// Embed returns one vector per input using the configured embedding model.
func (c *Ollama) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if c.embedModel == "" {
		return nil, fmt.Errorf("generation: ollama: no embedding model configured")
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, classify("ollama", err)
	}
	defer c.reqLock.Release(1)

	res, err := c.Client.Embed(rCtx, &api.EmbedRequest{
		Model: c.embedModel,
		Input: inputs,
	})
	if err != nil {
		return nil, classify("ollama", err)
	}
	if len(res.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("generation: ollama: embedding size mismatch: got %d want %d", len(res.Embeddings), len(inputs))
	}
	return res.Embeddings, nil
}
