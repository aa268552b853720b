package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/ansuz/internal/atomizer"
	"github.com/starford/ansuz/internal/classifier"
	"github.com/starford/ansuz/internal/generation"
	"github.com/starford/ansuz/internal/inbox"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/linker"
	"github.com/starford/ansuz/internal/mapmaint"
	"github.com/starford/ansuz/internal/metrics"
	"github.com/starford/ansuz/internal/pipeline"
	"github.com/starford/ansuz/internal/recordservice"
	"github.com/starford/ansuz/internal/similarity"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/vault"
)

const jobHistory = 200

// components is the wired object graph shared by every command.
type components struct {
	store   *storage.FS
	db      *index.DB
	vault   *vault.Vault
	sim     similarity.Index
	orch    *pipeline.Orchestrator
	records *recordservice.Service
	inbox   *inbox.Inbox
	prom    *metrics.Prometheus
}

// newComponents opens the vault and index and builds the pipeline. progress
// may be nil.
func newComponents(cfg *Config, logger *slog.Logger, progress func(pipeline.Event)) (*components, error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init index: %w", err)
	}
	c := &components{store: store, db: db, vault: vault.New(store, db, logger)}
	fail := func(stage string, err error) (*components, error) {
		c.release()
		return nil, fmt.Errorf("init %s: %w", stage, err)
	}

	gen, err := generation.New(cfg.Generation.Params())
	if err != nil {
		return fail("generation", err)
	}

	if cfg.Similarity.Enabled() {
		emb, err := generation.NewEmbedder(cfg.Generation.Params(), cfg.Similarity.Embedder)
		if err != nil {
			return fail("embedder", err)
		}
		if cfg.Similarity.Dimensions > 0 {
			emb = similarity.FixedDim{Embedder: emb, Dim: cfg.Similarity.Dimensions}
		}
		if c.sim, err = similarity.New(cfg.Similarity.Backend, emb, db); err != nil {
			return fail("similarity", err)
		}
	}

	budget, err := generation.NewBudget()
	if err != nil {
		logger.Warn("tokenizer unavailable, using length estimate", slog.String("error", err.Error()))
	}

	var collector metrics.Collector = metrics.Noop{}
	if cfg.Metrics.Enabled {
		c.prom = metrics.NewPrometheus()
		collector = c.prom
	}

	c.orch = pipeline.New(pipeline.Params{
		Vault:      c.vault,
		Classifier: classifier.New(gen, logger),
		Atomizer: atomizer.New(atomizer.Params{
			Gateway:       gen,
			Budget:        budget,
			ContextTokens: cfg.Generation.ContextTokens,
			Logger:        logger,
		}),
		Linker: linker.New(linker.Params{
			Gateway: gen,
			Index:   c.sim,
			Workers: cfg.Pipeline.LinkWorkers,
			Logger:  logger,
		}),
		Maps: mapmaint.New(mapmaint.Params{
			Vault:      c.vault,
			MinRecords: cfg.Pipeline.MinMapNotes,
			Logger:     logger,
		}),
		Jobs:          pipeline.NewSQLiteJobStore(db, jobHistory),
		Metrics:       collector,
		Logger:        logger,
		RelinkOrphans: cfg.Pipeline.RelinkOrphans,
		BatchWorkers:  cfg.Pipeline.BatchWorkers,
		Progress:      progress,
	})
	c.records = recordservice.New(store, db, c.sim)

	if cfg.Vault.Inbox != "" {
		if c.inbox, err = inbox.New(cfg.Vault.Inbox); err != nil {
			return fail("inbox", err)
		}
	}
	return c, nil
}

// Close waits for submitted jobs and closes the index and vault.
func (c *components) Close() error {
	c.orch.Wait()
	return c.release()
}

func (c *components) release() error {
	return errors.Join(c.db.Close(), c.store.Close())
}
