package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// OpenAIParams configures an OpenAI-compatible client.
type OpenAIParams struct {
	BaseURL       string
	APIKey        string
	Model         string
	EmbedModel    string
	MaxConcurrent int64
	MaxRetries    int
	Timeout       time.Duration
}

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	model      string
	embedModel string
	timeout    time.Duration
	reqLock    *semaphore.Weighted

	Client openai.Client
}

// NewOpenAI builds an OpenAI-compatible client.
func NewOpenAI(p OpenAIParams) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(p.APIKey),
		option.WithMaxRetries(p.MaxRetries),
	}
	if p.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.BaseURL))
	}
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 2
	}
	if p.Timeout <= 0 {
		p.Timeout = 120 * time.Second
	}
	return &OpenAI{
		model:      p.Model,
		embedModel: p.EmbedModel,
		timeout:    p.Timeout,
		reqLock:    semaphore.NewWeighted(p.MaxConcurrent),
		Client:     openai.NewClient(opts...),
	}
}

// Generate implements Gateway.
func (c *OpenAI) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	options := NewOptions(opts...)
	if options.Model == "" {
		options.Model = c.model
	}

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(options.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature:         openai.Float(options.Temperature),
		MaxCompletionTokens: openai.Int(int64(options.MaxTokens)),
	}
	if options.JSON {
		body.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return "", classify("openai", err)
	}
	defer c.reqLock.Release(1)

	res, err := c.Client.Chat.Completions.New(rCtx, body)
	if err != nil {
		return "", classify("openai", err)
	}
	if len(res.Choices) == 0 {
		return "", classify("openai", fmt.Errorf("empty choices"))
	}
	return res.Choices[0].Message.Content, nil
}

// Embed returns one vector per input using the configured embedding model.
func (c *OpenAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if c.embedModel == "" {
		return nil, fmt.Errorf("generation: openai: no embedding model configured")
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, classify("openai", err)
	}
	defer c.reqLock.Release(1)

	res, err := c.Client.Embeddings.New(rCtx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		Model: openai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		return nil, classify("openai", err)
	}
	if len(res.Data) != len(inputs) {
		return nil, fmt.Errorf("generation: openai: embedding size mismatch: got %d want %d", len(res.Data), len(inputs))
	}

	out := make([][]float32, len(inputs))
	for _, e := range res.Data {
		idx := int(e.Index)
		if idx < 0 || idx >= len(inputs) {
			return nil, fmt.Errorf("generation: openai: embedding index out of range: %d", e.Index)
		}
		vec := make([]float32, len(e.Embedding))
		for i, v := range e.Embedding {
			vec[i] = float32(v)
		}
		out[idx] = vec
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("generation: openai: missing embedding for index %d", i)
		}
	}
	return out, nil
}
