package generation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/starford/ansuz/internal/apperr"
)

// Fallback tries Primary and switches to Secondary only when Primary is
// unreachable. Provider-side errors are returned as is.
type Fallback struct {
	Primary   Gateway
	Secondary Gateway
	Logger    *slog.Logger
}

// Generate implements Gateway.
func (f *Fallback) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	out, err := f.Primary.Generate(ctx, prompt, opts...)
	if err == nil || f.Secondary == nil || !errors.Is(err, apperr.ErrGenerationUnavailable) {
		return out, err
	}
	if ctx.Err() != nil {
		return "", err
	}
	if f.Logger != nil {
		f.Logger.Warn("generation: primary unavailable, using fallback", slog.String("error", err.Error()))
	}
	return f.Secondary.Generate(ctx, prompt, opts...)
}
