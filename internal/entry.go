// Package internal wires the application together and implements the CLI commands.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/pipeline"
	"github.com/starford/ansuz/internal/sse"
)

const shutdownTimeout = 10 * time.Second

// command runs fn with a configured logger and the wired components, and
// releases them afterwards.
func command(opts []Option, progress func(pipeline.Event), fn func(*application, *slog.Logger, *components) error) error {
	app, logger, err := newApplication(opts)
	if err != nil {
		return err
	}
	c, err := newComponents(app.config, logger, progress)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(app, logger, c)
}

// Run serves the HTTP API and event stream and keeps the index in step with
// the vault until ctx is cancelled or the process receives SIGINT/SIGTERM.
func Run(ctx context.Context, opts ...Option) error {
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	progress := func(ev pipeline.Event) { broker.PublishJob(ev.Type, ev.JobID, ev) }

	return command(opts, progress, func(app *application, logger *slog.Logger, c *components) error {
		cfg := app.config
		logger.Info("Configuration loaded",
			slog.String("http_address", cfg.App.HTTP.Address()),
			slog.String("vault_path", cfg.Vault.Path),
			slog.String("sqlite_path", cfg.SQLite.Path),
			slog.String("generation_provider", cfg.Generation.Provider),
			slog.String("similarity_backend", cfg.Similarity.Backend),
			slog.String("log_level", cfg.App.LogLevel.String()))

		syncVault(c, logger)

		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := &http.Server{
			Addr:              cfg.App.HTTP.Address(),
			Handler:           newHTTPHandler(cfg, c, broker),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := index.Watch(gCtx, c.db, c.store, c.store.Root(), logger, broker.PublishRecordEvent); err != nil {
				logger.Error("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", srv.Addr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http shutdown", slog.String("error", err.Error()))
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			logger.Error("Application error", slog.String("error", err.Error()))
			return err
		}
		logger.Info("Server stopped, waiting for running jobs")
		return nil
	})
}

// Process runs the pipeline once per path and prints each RunResult. It
// fails when any run failed.
func Process(ctx context.Context, paths []string, opts ...Option) error {
	return command(opts, nil, func(app *application, _ *slog.Logger, c *components) error {
		var failed int
		for _, p := range paths {
			res := c.orch.Process(ctx, p)
			if !res.Success {
				failed++
			}
			if err := app.print(res); err != nil {
				return err
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d sources failed", failed, len(paths))
		}
		return nil
	})
}

// Batch processes every file under dir matching pattern and prints the summary.
func Batch(ctx context.Context, dir, pattern string, opts ...Option) error {
	return command(opts, nil, func(app *application, _ *slog.Logger, c *components) error {
		_, summary, err := c.orch.ProcessDirectory(ctx, dir, pattern)
		if err != nil {
			return err
		}
		return app.print(summary)
	})
}

// ServeMCP serves the MCP tools on stdio. Logs go to stderr unless
// WithLogOutput says otherwise.
func ServeMCP(_ context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	return command(opts, nil, func(_ *application, logger *slog.Logger, c *components) error {
		syncVault(c, logger)
		logger.Info("mcp: serving on stdio")
		return mcpserver.New(c.records, c.orch, c.inbox).ServeStdio()
	})
}

// Reindex syncs the whole vault into the index.
func Reindex(ctx context.Context, opts ...Option) error {
	return command(opts, nil, func(_ *application, logger *slog.Logger, c *components) error {
		start := time.Now()
		if err := index.Sync(c.db, c.store, logger); err != nil {
			return fmt.Errorf("reindex: %w", err)
		}
		_, total, err := c.records.List(ctx, index.RecordFilter{Limit: 1})
		if err != nil {
			return fmt.Errorf("reindex: %w", err)
		}
		logger.Info("reindex: done", slog.Int("records", total), slog.Duration("took", time.Since(start)))
		return nil
	})
}

func syncVault(c *components, logger *slog.Logger) {
	if err := index.Sync(c.db, c.store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
}

func (a *application) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
