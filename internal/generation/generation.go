// Package generation provides the language-generation gateway used by the
// classifier, atomizer and linker, plus the embedding clients that feed the
// similarity index.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/starford/ansuz/internal/apperr"
)

// Gateway turns a prompt into a completion. Implementations wrap failures in
// apperr.ErrGenerationUnavailable (no provider reachable, deadline exceeded)
// or apperr.ErrGeneration (provider-side error).
type Gateway interface {
	Generate(ctx context.Context, prompt string, opts ...Option) (string, error)
}

// Options holds the parameters of one generation request.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	JSON        bool
	Schema      any
}

// Option configures a generation request.
type Option func(*Options)

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

// WithMaxTokens bounds the completion length.
func WithMaxTokens(n int) Option {
	return func(o *Options) { o.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Options) { o.Temperature = t }
}

// WithJSON asks the provider for a JSON document.
func WithJSON() Option {
	return func(o *Options) { o.JSON = true }
}

// WithSchema asks the provider for JSON matching the schema reflected from v.
func WithSchema(v any) Option {
	return func(o *Options) {
		o.JSON = true
		o.Schema = v
	}
}

// NewOptions applies opts over the defaults.
func NewOptions(opts ...Option) Options {
	o := Options{MaxTokens: 1000, Temperature: 0.7}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// classify maps transport and provider errors onto the gateway sentinels.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperr.ErrGenerationUnavailable) || errors.Is(err, apperr.ErrGeneration) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("generation: %s: %w: %v", provider, apperr.ErrGenerationUnavailable, err)
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return fmt.Errorf("generation: %s: %w: %v", provider, apperr.ErrGenerationUnavailable, err)
	}
	return fmt.Errorf("generation: %s: %w: %v", provider, apperr.ErrGeneration, err)
}
