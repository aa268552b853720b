// Package pipeline sequences extraction, classification, atomization,
// linking and persistence for one source, and runs batches and jobs of them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/atomizer"
	"github.com/starford/ansuz/internal/classifier"
	"github.com/starford/ansuz/internal/extractor"
	"github.com/starford/ansuz/internal/linker"
	"github.com/starford/ansuz/internal/mapmaint"
	"github.com/starford/ansuz/internal/metrics"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/vault"
)

// Stage is a state of the pipeline state machine.
type Stage string

const (
	StageExtracting  Stage = "extracting"
	StageClassifying Stage = "classifying"
	StageAtomizing   Stage = "atomizing"
	StageLinking     Stage = "linking"
	StagePersisting  Stage = "persisting"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// stageProgress is the fraction of a run completed when a stage starts.
var stageProgress = map[Stage]float64{
	StageExtracting:  0.05,
	StageClassifying: 0.15,
	StageAtomizing:   0.30,
	StageLinking:     0.65,
	StagePersisting:  0.85,
	StageDone:        1,
	StageFailed:      1,
}

// Params wires an Orchestrator. Classifier, Linker and Maps may be nil, in
// which case the fallback label is used and linking or map maintenance is
// skipped.
type Params struct {
	Vault      *vault.Vault
	Classifier *classifier.Classifier
	Atomizer   *atomizer.Atomizer
	Linker     *linker.Linker
	Maps       *mapmaint.Maintainer
	Jobs       JobStore
	Metrics    metrics.Collector
	Logger     *slog.Logger

	RelinkOrphans bool
	BatchWorkers  int
	// Progress receives job progress events from Submit.
	Progress func(Event)
}

// Orchestrator runs the pipeline.
type Orchestrator struct {
	vault      *vault.Vault
	classifier *classifier.Classifier
	atomizer   *atomizer.Atomizer
	linker     *linker.Linker
	maps       *mapmaint.Maintainer
	metrics    metrics.Collector
	logger     *slog.Logger

	relinkOrphans bool
	batchWorkers  int

	jobs     *jobRunner
	progress func(Event)
}

// New returns an Orchestrator.
func New(p Params) *Orchestrator {
	o := &Orchestrator{
		vault:         p.Vault,
		classifier:    p.Classifier,
		atomizer:      p.Atomizer,
		linker:        p.Linker,
		maps:          p.Maps,
		metrics:       p.Metrics,
		logger:        p.Logger,
		relinkOrphans: p.RelinkOrphans,
		batchWorkers:  p.BatchWorkers,
		progress:      p.Progress,
	}
	if o.metrics == nil {
		o.metrics = metrics.Noop{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.batchWorkers <= 0 {
		o.batchWorkers = 2
	}
	if o.atomizer == nil {
		o.atomizer = atomizer.New(atomizer.Params{Logger: o.logger})
	}
	jobs := p.Jobs
	if jobs == nil {
		jobs = NewMemoryJobStore()
	}
	o.jobs = newJobRunner(jobs, o.batchWorkers)
	return o
}

// RecordRef identifies a record written by a run.
type RecordRef struct {
	ID     string      `json:"id"`
	Title  string      `json:"title"`
	Kind   models.Kind `json:"type"`
	Path   string      `json:"path"`
	Domain string      `json:"domain"`
}

func refOf(r *models.Record) RecordRef {
	return RecordRef{ID: r.ID, Title: r.Title, Kind: r.Kind, Path: r.Path, Domain: r.Domain}
}

// RunStats carries per-run measures that are not part of the outcome.
type RunStats struct {
	SourceType     string  `json:"source_type,omitempty"`
	WordsProcessed int     `json:"words_processed"`
	Domain         string  `json:"domain,omitempty"`
	Producer       string  `json:"producer,omitempty"`
	AvgLinks       float64 `json:"avg_links_per_note"`
	LinkQuality    float64 `json:"link_quality"`
}

// RunResult is the outcome of processing one source.
type RunResult struct {
	Path           string            `json:"path"`
	Success        bool              `json:"success"`
	FailedStage    Stage             `json:"failed_stage,omitempty"`
	Literature     *models.Record    `json:"-"`
	Permanent      []*models.Record  `json:"-"`
	Records        []RecordRef       `json:"records"`
	MapsCreated    []string          `json:"maps_created"`
	MapsUpdated    []string          `json:"maps_updated"`
	EdgesCreated   int               `json:"edges_created"`
	Orphans        []string          `json:"orphans"`
	Elapsed        time.Duration     `json:"-"`
	ElapsedSeconds float64           `json:"elapsed_seconds"`
	StageSeconds   map[Stage]float64 `json:"stage_seconds"`
	Errors         []string          `json:"errors"`
	Warnings       []string          `json:"warnings"`
	Stats          RunStats          `json:"stats"`
}

// Notes is the number of records created by the run.
func (r *RunResult) Notes() int {
	n := len(r.Permanent)
	if r.Literature != nil {
		n++
	}
	return n
}

func newResult(path string) *RunResult {
	return &RunResult{
		Path:         path,
		Records:      []RecordRef{},
		MapsCreated:  []string{},
		MapsUpdated:  []string{},
		Orphans:      []string{},
		StageSeconds: map[Stage]float64{},
		Errors:       []string{},
		Warnings:     []string{},
	}
}

// run tracks the state of one Process call.
type run struct {
	o      *Orchestrator
	res    *RunResult
	report func(Stage)
}

func (r *run) enter(s Stage) time.Time {
	r.o.logger.Debug("pipeline: stage", slog.String("path", r.res.Path), slog.String("stage", string(s)))
	if r.report != nil {
		r.report(s)
	}
	return time.Now()
}

func (r *run) leave(s Stage, start time.Time) {
	d := time.Since(start)
	r.res.StageSeconds[s] = d.Seconds()
	r.o.metrics.RecordStage(string(s), d)
}

func (r *run) warn(s Stage, err error) {
	r.res.Warnings = append(r.res.Warnings, fmt.Sprintf("%s: %v", s, err))
	r.o.metrics.RecordError(string(s), apperr.Kind(err))
	r.o.logger.Warn("pipeline: warning", slog.String("path", r.res.Path), slog.String("stage", string(s)), slog.String("error", err.Error()))
}

func (r *run) fail(s Stage, err error) {
	err = &apperr.StageError{Stage: string(s), Err: err}
	r.res.Errors = append(r.res.Errors, err.Error())
	if r.res.FailedStage == "" {
		r.res.FailedStage = s
	}
	r.o.metrics.RecordError(string(s), apperr.Kind(err))
	r.o.logger.Error("pipeline: stage failed", slog.String("path", r.res.Path), slog.String("stage", string(s)), slog.String("error", err.Error()))
}

// Process runs the full pipeline for one source file.
func (o *Orchestrator) Process(ctx context.Context, path string) *RunResult {
	return o.process(ctx, path, nil)
}

func (o *Orchestrator) process(ctx context.Context, path string, report func(Stage)) *RunResult {
	started := time.Now()
	r := &run{o: o, res: newResult(path), report: report}
	defer func() {
		r.res.Elapsed = time.Since(started)
		r.res.ElapsedSeconds = r.res.Elapsed.Seconds()
		r.res.Success = len(r.res.Errors) == 0
		status := "success"
		final := StageDone
		if !r.res.Success {
			status = "failed"
			final = StageFailed
		}
		o.metrics.RecordRun(status)
		if report != nil {
			report(final)
		}
		o.logger.Info("pipeline: run finished",
			slog.String("path", path),
			slog.Bool("success", r.res.Success),
			slog.Int("records", r.res.Notes()),
			slog.Int("edges", r.res.EdgesCreated),
			slog.Duration("elapsed", r.res.Elapsed))
	}()

	ext, ok := r.extract(path)
	if !ok {
		return r.res
	}
	cl := r.classify(ctx, ext)
	atom, ok := r.atomize(ctx, ext, cl)
	if !ok {
		return r.res
	}
	state := r.load(atom)
	r.link(ctx, atom.Permanent, state)
	r.persist(atom, cl, state)
	return r.res
}

func (r *run) extract(path string) (*extractor.Result, bool) {
	start := r.enter(StageExtracting)
	defer r.leave(StageExtracting, start)

	ext, err := extractor.Extract(path)
	if err != nil {
		r.fail(StageExtracting, err)
		return nil, false
	}
	if report := extractor.Validate(ext); !report.Passed() {
		r.fail(StageExtracting, fmt.Errorf("%w: %s", apperr.ErrValidation, report.Error()))
		return nil, false
	}
	r.res.Stats.SourceType = ext.Meta.Type
	r.res.Stats.WordsProcessed = ext.Stats.WordCount
	return ext, true
}

// classify never fails the run: problems become warnings and the fallback
// label is used.
func (r *run) classify(ctx context.Context, ext *extractor.Result) models.Classification {
	start := r.enter(StageClassifying)
	defer r.leave(StageClassifying, start)

	if r.o.classifier == nil {
		r.res.Stats.Domain = classifier.FallbackDomain
		return classifier.Fallback(ext.Meta.Type)
	}
	cl, err := r.o.classifier.Classify(ctx, ext.Text, ext.Meta)
	if err != nil {
		r.warn(StageClassifying, err)
	}
	if report := classifier.Validate(cl); !report.Passed() {
		r.warn(StageClassifying, fmt.Errorf("%w: %s", apperr.ErrValidation, report.Error()))
	}
	if cl.Domain == "" {
		cl = classifier.Fallback(ext.Meta.Type)
	}
	r.res.Stats.Domain = cl.Domain
	return cl
}

func (r *run) atomize(ctx context.Context, ext *extractor.Result, cl models.Classification) (*atomizer.Result, bool) {
	start := r.enter(StageAtomizing)
	defer r.leave(StageAtomizing, start)

	atom := r.o.atomizer.Atomize(ctx, ext.Text, ext.Meta, cl)
	for _, w := range atom.Stats.Warnings {
		r.warn(StageAtomizing, errors.New(w))
	}
	r.res.Stats.Producer = atom.Stats.Producer
	if report := atomizer.Validate(atom.Literature, atom.Permanent); !report.Passed() {
		r.fail(StageAtomizing, fmt.Errorf("%w: %s", apperr.ErrValidation, report.Error()))
		return nil, false
	}
	r.res.Literature = atom.Literature
	r.res.Permanent = atom.Permanent
	return atom, true
}

// vaultState is what a run knows about the permanent records already in
// the vault.
type vaultState struct {
	// existing are the records the run does not overwrite.
	existing []*models.Record
	// inbound holds, per existing record path, the mirrors to add and the
	// source IDs whose mirrors must go.
	inbound map[string]*inboundUpdate
}

type inboundUpdate struct {
	mirrors []models.Edge
	stale   []string
}

func (s *vaultState) update(path string) *inboundUpdate {
	u, ok := s.inbound[path]
	if !ok {
		u = &inboundUpdate{}
		s.inbound[path] = u
	}
	return u
}

// load reads the permanent records already in the vault. A fresh record
// whose path is taken adopts the ID and creation time of the record it
// replaces and keeps its inbound edges that still have a matching outbound
// edge. Mirrors the replaced record left on other records are scheduled for
// removal.
func (r *run) load(atom *atomizer.Result) *vaultState {
	state := &vaultState{inbound: map[string]*inboundUpdate{}}
	if r.o.vault == nil {
		return state
	}
	if old, err := r.o.vault.Load(atom.Literature.Path); err == nil {
		atom.Literature.ID, atom.Literature.Created = old.ID, old.Created
	}
	all, err := r.o.vault.LoadDir(vault.PermanentDir)
	if err != nil {
		r.warn(StageLinking, err)
		return state
	}

	fresh := make(map[string]*models.Record, len(atom.Permanent))
	for _, f := range atom.Permanent {
		fresh[f.Path] = f
	}
	replaced := make(map[string]*models.Record)
	for _, rec := range all {
		if rec.Kind != models.KindPermanent {
			continue
		}
		f, ok := fresh[rec.Path]
		if !ok {
			state.existing = append(state.existing, rec)
			continue
		}
		f.ID, f.Created = rec.ID, rec.Created
		replaced[rec.ID] = rec
	}
	if len(replaced) == 0 {
		return state
	}

	byID := make(map[string]*models.Record, len(state.existing))
	for _, e := range state.existing {
		byID[e.ID] = e
	}
	for _, e := range state.existing {
		var stale []string
		for _, in := range e.LinksIn {
			if replaced[in.TargetID] != nil {
				stale = append(stale, in.TargetID)
			}
		}
		if len(stale) == 0 {
			continue
		}
		e.LinksIn = linker.Reconcile(e.LinksIn, stale, nil)
		u := state.update(e.Path)
		u.stale = append(u.stale, stale...)
	}
	for _, f := range atom.Permanent {
		old := replaced[f.ID]
		if old == nil {
			continue
		}
		for _, in := range old.LinksIn {
			if src := byID[in.TargetID]; src != nil && linksTo(src, f.ID) {
				f.LinksIn = append(f.LinksIn, in)
			}
		}
		f.Zettelkasten.ConnectionsCount = len(f.LinksOut) + len(f.LinksIn)
	}
	r.o.logger.Info("pipeline: replacing records",
		slog.String("path", r.res.Path),
		slog.Int("replaced", len(replaced)))
	return state
}

func linksTo(rec *models.Record, id string) bool {
	for _, e := range rec.LinksOut {
		if e.TargetID == id {
			return true
		}
	}
	return false
}

// link runs the linker and records in state the mirrored edges to persist
// onto records that already exist in the vault.
func (r *run) link(ctx context.Context, fresh []*models.Record, state *vaultState) {
	start := r.enter(StageLinking)
	defer r.leave(StageLinking, start)

	if r.o.linker == nil {
		r.res.Orphans = titles(fresh)
		return
	}
	existing := state.existing

	res, err := r.o.linker.Link(ctx, fresh, existing)
	if err != nil {
		r.warn(StageLinking, err)
		r.res.Orphans = titles(fresh)
		return
	}
	results := []*linker.Result{res}
	if r.o.relinkOrphans && len(res.OrphanRecords) > 0 {
		again, err := r.o.linker.Relink(ctx, res.OrphanRecords, fresh, existing)
		if err != nil {
			r.warn(StageLinking, err)
		} else {
			results = append(results, again)
		}
	}

	r.res.Orphans = append([]string{}, results[len(results)-1].Orphans...)
	for _, title := range r.res.Orphans {
		r.res.Warnings = append(r.res.Warnings, fmt.Sprintf("%s: orphan record %q", StageLinking, title))
	}

	byID := make(map[string]*models.Record, len(existing))
	for _, e := range existing {
		byID[e.ID] = e
	}
	for _, lr := range results {
		for _, w := range lr.Warnings {
			r.warn(StageLinking, errors.New(w))
		}
		r.res.EdgesCreated += lr.LinksCreated
		for strategy, n := range lr.ByStrategy {
			r.o.metrics.RecordEdges(strategy, n)
		}
		for id, stale := range lr.Stale {
			if target, ok := byID[id]; ok {
				u := state.update(target.Path)
				u.stale = append(u.stale, stale...)
			}
		}
		for id, edges := range lr.Inbound {
			if target, ok := byID[id]; ok {
				u := state.update(target.Path)
				u.mirrors = append(u.mirrors, edges...)
			}
		}
	}
	r.res.Stats.AvgLinks = float64(r.res.EdgesCreated) / float64(len(fresh))
	r.res.Stats.LinkQuality = res.LinkQuality
}

func (r *run) persist(atom *atomizer.Result, cl models.Classification, state *vaultState) {
	start := r.enter(StagePersisting)
	defer r.leave(StagePersisting, start)

	if r.o.vault == nil {
		r.fail(StagePersisting, fmt.Errorf("%w: no vault configured", apperr.ErrPersistence))
		return
	}

	for _, rec := range append([]*models.Record{atom.Literature}, atom.Permanent...) {
		if err := r.o.vault.Save(rec); err != nil {
			r.fail(StagePersisting, err)
			continue
		}
		r.res.Records = append(r.res.Records, refOf(rec))
		r.o.metrics.AddRecords(string(rec.Kind), 1)
	}

	now := time.Now()
	for path, u := range state.inbound {
		u := u
		_, err := r.o.vault.Update(path, func(rec *models.Record) error {
			before := len(rec.LinksIn)
			rec.LinksIn = linker.Reconcile(rec.LinksIn, u.stale, u.mirrors)
			rec.Zettelkasten.ConnectionsCount = max(0, rec.Zettelkasten.ConnectionsCount+len(rec.LinksIn)-before)
			rec.Modified = now
			return nil
		})
		if err != nil {
			r.warn(StagePersisting, err)
		}
	}

	if r.o.maps == nil {
		return
	}
	maps := r.o.maps.Merge(cl.Maps, atom.Permanent, cl)
	for _, err := range maps.Errors {
		r.warn(StagePersisting, err)
	}
	r.res.MapsCreated = append(r.res.MapsCreated, maps.CreatedTitles()...)
	r.res.MapsUpdated = append(r.res.MapsUpdated, maps.UpdatedTitles()...)
	r.o.metrics.AddRecords(string(models.KindMap), len(maps.Created))
}

func titles(recs []*models.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Title)
	}
	return out
}
