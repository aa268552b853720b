package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
)

// DefaultPattern matches every supported source type below a directory.
const DefaultPattern = "**/*.{pdf,md,markdown,txt}"

// BatchSummary aggregates the results of a batch.
type BatchSummary struct {
	Total          int     `json:"total"`
	Succeeded      int     `json:"succeeded"`
	Failed         int     `json:"failed"`
	Notes          int     `json:"notes_created"`
	Edges          int     `json:"edges_created"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Summarize aggregates results.
func Summarize(results []*RunResult) BatchSummary {
	s := BatchSummary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.Notes += r.Notes()
		s.Edges += r.EdgesCreated
		s.ElapsedSeconds += r.ElapsedSeconds
	}
	return s
}

// Batch processes paths independently, at most batchWorkers at a time.
// Results keep the order of paths; one failing input never stops the others.
func (o *Orchestrator) Batch(ctx context.Context, paths []string) ([]*RunResult, BatchSummary) {
	results := make([]*RunResult, len(paths))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.batchWorkers)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			results[i] = o.Process(gCtx, p)
			return nil
		})
	}
	_ = g.Wait()

	summary := Summarize(results)
	o.logger.Info("pipeline: batch finished",
		slog.Int("total", summary.Total),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed))
	return results, summary
}

// Match returns the files under dir matching a doublestar pattern, sorted.
func Match(dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("pipeline: invalid pattern %q", pattern)
	}
	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("pipeline: glob %s: %w", dir, err)
	}
	sort.Strings(matches)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = filepath.Join(dir, filepath.FromSlash(m))
	}
	return out, nil
}

// ProcessDirectory runs a batch over every file in dir matching pattern.
func (o *Orchestrator) ProcessDirectory(ctx context.Context, dir, pattern string) ([]*RunResult, BatchSummary, error) {
	paths, err := Match(dir, pattern)
	if err != nil {
		return nil, BatchSummary{}, err
	}
	o.logger.Info("pipeline: directory matched", slog.String("dir", dir), slog.String("pattern", pattern), slog.Int("files", len(paths)))
	results, summary := o.Batch(ctx, paths)
	return results, summary, nil
}
