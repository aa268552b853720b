// Package linker builds typed, weighted edges between permanent records and
// keeps inbound edge lists consistent with outbound ones.
package linker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/generation"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/similarity"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/vault"
)

// MaxEdges is the number of outbound edges kept per record.
const MaxEdges = 8

// pass tunes how widely the strategies look for candidates.
type pass struct {
	topK            int
	sameDomain      int
	otherDomain     int
	requireDomain   bool
	forceGeneration bool
}

var (
	normalPass = pass{topK: 10, sameDomain: 15, otherDomain: 5, requireDomain: true}
	widePass   = pass{topK: 20, sameDomain: 20, otherDomain: 20, forceGeneration: true}
)

// Params configures a Linker.
type Params struct {
	Gateway generation.Gateway
	// Index may be nil, in which case only the generation and attribute
	// strategies run.
	Index   similarity.Index
	Workers int
	Logger  *slog.Logger
}

// Linker connects new records to the rest of the vault.
type Linker struct {
	gen     generation.Gateway
	index   similarity.Index
	workers int
	logger  *slog.Logger

	locks *storage.KeyedMutex

	mu      sync.Mutex
	indexed map[string]string
}

// New returns a Linker.
func New(p Params) *Linker {
	l := &Linker{
		gen:     p.Gateway,
		index:   p.Index,
		workers: p.Workers,
		logger:  p.Logger,
		locks:   storage.NewKeyedMutex(),
		indexed: make(map[string]string),
	}
	if l.workers <= 0 {
		l.workers = 4
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Result summarises a linking pass.
type Result struct {
	LinksCreated int            `json:"links_created"`
	Orphans      []string       `json:"orphans"`
	AvgLinks     float64        `json:"avg_links"`
	LinkQuality  float64        `json:"link_quality"`
	ByStrategy   map[string]int `json:"by_strategy"`
	Warnings     []string       `json:"warnings,omitempty"`

	// Inbound holds, per target record ID, the mirrored edges added in
	// this pass. Callers persist them onto records that were not written
	// as part of the pass, with Reconcile.
	Inbound map[string][]models.Edge `json:"-"`
	// Stale holds, per target record ID, the source IDs whose outbound edge
	// was evicted in this pass, so their mirror must go.
	Stale map[string][]string `json:"-"`
	// OrphanRecords are the records behind Orphans.
	OrphanRecords []*models.Record `json:"-"`
}

// Link computes edges for every record in fresh against fresh and existing,
// then applies them: outbound lists, connection sections and mirrored
// inbound edges on targets.
func (l *Linker) Link(ctx context.Context, fresh, existing []*models.Record) (*Result, error) {
	return l.link(ctx, fresh, pool(fresh, existing), normalPass)
}

// Relink runs a second pass for orphans with a widened candidate pool.
func (l *Linker) Relink(ctx context.Context, orphans, fresh, existing []*models.Record) (*Result, error) {
	return l.link(ctx, orphans, pool(fresh, existing), widePass)
}

func (l *Linker) link(ctx context.Context, targets, all []*models.Record, p pass) (*Result, error) {
	res := &Result{
		Orphans:    []string{},
		ByStrategy: map[string]int{},
		Inbound:    map[string][]models.Edge{},
		Stale:      map[string][]string{},
	}
	if len(targets) == 0 {
		return res, nil
	}

	if err := l.ensureIndexed(ctx, all); err != nil {
		res.Warnings = append(res.Warnings, err.Error())
		l.logger.Warn("linker: indexing failed, similarity disabled for this pass", slog.String("error", err.Error()))
	}

	byID := make(map[string]*models.Record, len(all))
	for _, r := range all {
		byID[r.ID] = r
	}

	// Edges are computed from a read-only view of the records, then applied.
	edges := make([][]models.Edge, len(targets))
	warnings := make([][]string, len(targets))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, rec := range targets {
		i, rec := i, rec
		g.Go(func() error {
			edges[i], warnings[i] = l.candidates(gCtx, rec, all, byID, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("linker: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("linker: %w", err)
	}

	var inboundMu sync.Mutex

	g, _ = errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, rec := range targets {
		i, rec := i, rec
		g.Go(func() error {
			kept, evicted := l.applyOutbound(rec, edges[i])
			edges[i] = kept
			for _, e := range evicted {
				target, ok := byID[e.TargetID]
				if !ok {
					continue
				}
				l.applyInbound(target, nil, rec.ID)
				inboundMu.Lock()
				res.Stale[target.ID] = append(res.Stale[target.ID], rec.ID)
				inboundMu.Unlock()
			}
			for _, e := range kept {
				target, ok := byID[e.TargetID]
				if !ok {
					continue
				}
				mirror := e.Mirror(rec)
				l.applyInbound(target, []models.Edge{mirror})
				inboundMu.Lock()
				res.Inbound[target.ID] = append(res.Inbound[target.ID], mirror)
				inboundMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	var confidence float64
	for i, rec := range targets {
		res.Warnings = append(res.Warnings, warnings[i]...)
		if len(rec.LinksOut) == 0 {
			res.Orphans = append(res.Orphans, rec.Title)
			res.OrphanRecords = append(res.OrphanRecords, rec)
		}
		for _, e := range edges[i] {
			res.LinksCreated++
			res.ByStrategy[string(e.Strategy)]++
			confidence += e.Confidence
		}
	}
	res.AvgLinks = float64(res.LinksCreated) / float64(len(targets))
	if res.LinksCreated > 0 {
		res.LinkQuality = confidence / float64(res.LinksCreated)
	}
	l.logger.Info("linker: done",
		slog.Int("records", len(targets)),
		slog.Int("links", res.LinksCreated),
		slog.Int("orphans", len(res.Orphans)))
	return res, nil
}

// applyOutbound merges edges into rec's outbound list and re-renders its
// connections section. It returns the new edges that made it into the list
// and the earlier edges that were pushed out of it.
func (l *Linker) applyOutbound(rec *models.Record, edges []models.Edge) (kept, evicted []models.Edge) {
	unlock := l.locks.Lock(rec.ID)
	defer unlock()

	before := rec.LinksOut
	merged := Merge(append(append([]models.Edge(nil), before...), edges...))
	for _, e := range edges {
		if contains(merged, e) {
			kept = append(kept, e)
		}
	}
	for _, e := range before {
		if !contains(merged, e) {
			evicted = append(evicted, e)
		}
	}
	rec.LinksOut = merged
	rec.Zettelkasten.ConnectionsCount += len(merged) - len(before)
	if rec.Zettelkasten.ConnectionsCount < 0 {
		rec.Zettelkasten.ConnectionsCount = 0
	}
	rec.Zettelkasten.ConnectionsQuality = Quality(merged)
	rec.Body = vault.SetRegion(rec.Body, vault.RegionConnections, "## Connections", RenderConnections(merged))
	return kept, evicted
}

func contains(edges []models.Edge, e models.Edge) bool {
	for _, x := range edges {
		if x == e {
			return true
		}
	}
	return false
}

func (l *Linker) applyInbound(target *models.Record, mirrors []models.Edge, stale ...string) {
	unlock := l.locks.Lock(target.ID)
	defer unlock()
	before := len(target.LinksIn)
	target.LinksIn = Reconcile(target.LinksIn, stale, mirrors)
	target.Zettelkasten.ConnectionsCount += len(target.LinksIn) - before
	if target.Zettelkasten.ConnectionsCount < 0 {
		target.Zettelkasten.ConnectionsCount = 0
	}
}

// Reconcile drops the inbound edges coming from any stale source or from
// the source of any of mirrors, then appends mirrors. A record thus holds at
// most one inbound edge per source.
func Reconcile(in []models.Edge, stale []string, mirrors []models.Edge) []models.Edge {
	drop := make(map[string]bool, len(stale)+len(mirrors))
	for _, id := range stale {
		drop[id] = true
	}
	for _, m := range mirrors {
		drop[m.TargetID] = true
	}
	out := make([]models.Edge, 0, len(in)+len(mirrors))
	for _, e := range in {
		if !drop[e.TargetID] {
			out = append(out, e)
		}
	}
	return append(out, mirrors...)
}

// ensureIndexed adds every record this linker has not indexed with its
// current text to the similarity index. All indexing happens before any
// query of the pass.
func (l *Linker) ensureIndexed(ctx context.Context, all []*models.Record) error {
	if l.index == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var docs []similarity.Doc
	for _, r := range all {
		d := Doc(r)
		if l.indexed[r.ID] == d.Text {
			continue
		}
		docs = append(docs, d)
	}
	if len(docs) == 0 {
		return nil
	}
	if err := l.index.Index(ctx, docs...); err != nil {
		return fmt.Errorf("linker: index %d records: %w", len(docs), err)
	}
	for _, d := range docs {
		l.indexed[d.ID] = d.Text
	}
	return nil
}

// Doc is the similarity document for a record.
func Doc(r *models.Record) similarity.Doc {
	return similarity.Doc{
		ID:   r.ID,
		Text: queryText(r),
		Attrs: map[string]string{
			"title":  r.Title,
			"kind":   string(r.Kind),
			"domain": r.Domain,
		},
	}
}

func queryText(r *models.Record) string {
	return r.Title + "\n\n" + head(r.Body, 1000)
}

// pool is existing followed by fresh, without literature records and
// without duplicate IDs.
func pool(fresh, existing []*models.Record) []*models.Record {
	seen := make(map[string]bool, len(fresh)+len(existing))
	out := make([]*models.Record, 0, len(fresh)+len(existing))
	for _, group := range [][]*models.Record{existing, fresh} {
		for _, r := range group {
			if r == nil || r.Kind == models.KindLiterature || seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			out = append(out, r)
		}
	}
	return out
}

// Merge deduplicates edges by target keeping the most confident one, sorts
// by confidence descending and keeps the first MaxEdges.
func Merge(edges []models.Edge) []models.Edge {
	best := make(map[string]int, len(edges))
	out := make([]models.Edge, 0, len(edges))
	for _, e := range edges {
		key := e.TargetID
		if key == "" {
			key = "title:" + e.Target
		}
		if i, ok := best[key]; ok {
			if e.Confidence > out[i].Confidence {
				out[i] = e
			}
			continue
		}
		best[key] = len(out)
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > MaxEdges {
		out = out[:MaxEdges]
	}
	return out
}

// Quality is the mean confidence of edges, or 0 for none.
func Quality(edges []models.Edge) float64 {
	if len(edges) == 0 {
		return 0
	}
	var sum float64
	for _, e := range edges {
		sum += e.Confidence
	}
	return sum / float64(len(edges))
}

// head returns the first n runes of s.
func head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
