package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/semaphore"
)

// Event is published as a submitted job moves through the pipeline.
type Event struct {
	Type     string  `json:"type"`
	JobID    string  `json:"job_id"`
	Path     string  `json:"path"`
	Stage    Stage   `json:"stage"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error,omitempty"`
}

// Event types.
const (
	EventStage     = "job.stage"
	EventCompleted = "job.completed"
	EventFailed    = "job.failed"
)

const jobIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

type jobRunner struct {
	store JobStore
	sem   *semaphore.Weighted
	wg    sync.WaitGroup
	mu    sync.Mutex
}

func newJobRunner(store JobStore, slots int) *jobRunner {
	return &jobRunner{store: store, sem: semaphore.NewWeighted(int64(slots))}
}

// Jobs exposes the job store.
func (o *Orchestrator) Jobs() JobStore { return o.jobs.store }

// Submit queues path for asynchronous processing and returns the queued
// job. The run outlives ctx; use Wait to drain running jobs.
func (o *Orchestrator) Submit(ctx context.Context, path string) (*Job, error) {
	id, err := gonanoid.Generate(jobIDAlphabet, 12)
	if err != nil {
		return nil, fmt.Errorf("pipeline: job id: %w", err)
	}
	now := time.Now().UTC()
	job := &Job{ID: id, Path: path, Status: JobQueued, CreatedAt: now, UpdatedAt: now}
	if err := o.jobs.store.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("pipeline: save job: %w", err)
	}
	queued := *job

	runCtx := context.WithoutCancel(ctx)
	o.jobs.wg.Add(1)
	go func() {
		defer o.jobs.wg.Done()
		if err := o.jobs.sem.Acquire(runCtx, 1); err != nil {
			return
		}
		defer o.jobs.sem.Release(1)
		o.runJob(runCtx, job)
	}()
	return &queued, nil
}

// Wait blocks until every submitted job has finished.
func (o *Orchestrator) Wait() { o.jobs.wg.Wait() }

func (o *Orchestrator) runJob(ctx context.Context, job *Job) {
	job.Status = JobProcessing
	res := o.process(ctx, job.Path, func(s Stage) {
		o.updateJob(ctx, job, s)
	})
	job.Result = res
	if res.Success {
		job.Status = JobCompleted
	} else {
		job.Status = JobFailed
		if len(res.Errors) > 0 {
			job.Error = res.Errors[0]
		}
	}
	o.updateJob(ctx, job, job.Stage)
}

// updateJob persists the job and publishes the matching event.
func (o *Orchestrator) updateJob(ctx context.Context, job *Job, s Stage) {
	o.jobs.mu.Lock()
	defer o.jobs.mu.Unlock()

	job.Stage = s
	job.Progress = stageProgress[s]
	job.UpdatedAt = time.Now().UTC()
	if err := o.jobs.store.Put(ctx, job); err != nil {
		o.logger.Warn("pipeline: save job", slog.String("job", job.ID), slog.String("error", err.Error()))
	}

	if o.progress == nil {
		return
	}
	ev := Event{Type: EventStage, JobID: job.ID, Path: job.Path, Stage: s, Progress: job.Progress}
	switch job.Status {
	case JobCompleted:
		ev.Type = EventCompleted
	case JobFailed:
		ev.Type = EventFailed
		ev.Error = job.Error
	}
	o.progress(ev)
}
