package internal

import (
	"errors"
	"io"
	"log/slog"
	"os"
)

// Option configures a command.
type Option func(*application)

type application struct {
	config *Config
	out    io.Writer
	logOut io.Writer
}

// WithConfig sets the configuration. It is required.
func WithConfig(cfg *Config) Option {
	return func(a *application) { a.config = cfg }
}

// WithOutput sets where commands print their JSON results (stdout by default).
func WithOutput(w io.Writer) Option {
	return func(a *application) { a.out = w }
}

// WithLogOutput redirects the JSON log, which otherwise goes to stdout.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) { a.logOut = w }
}

// newApplication applies opts and installs the JSON logger as the slog default.
func newApplication(opts []Option) (*application, *slog.Logger, error) {
	app := &application{out: os.Stdout, logOut: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, errors.New("config is required")
	}
	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return app, logger, nil
}
