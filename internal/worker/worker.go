// Package worker runs the single cooperative actor that drains the
// transcode job registry: claim a pending job, run it through the
// transcoder, record the outcome, repeat for the life of the process.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/privatefit/vodcache/internal/domain/model"
	"github.com/privatefit/vodcache/internal/domain/repository"
	"github.com/privatefit/vodcache/internal/transcoder"
	"github.com/privatefit/vodcache/internal/usecase"
)

// Config controls polling cadence and shutdown behavior.
type Config struct {
	// PollInterval bounds how long the worker ever sleeps between claim
	// attempts when no ready notification arrives, per spec.md's "at most
	// 1 second" backstop.
	PollInterval time.Duration

	// ShutdownTimeout bounds how long Wait blocks for an in-flight job to
	// finish before giving up.
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:    time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Worker is the single background actor processing transcode jobs. A
// second instance is safe to run concurrently: ClaimNext's SKIP LOCKED
// query and the per-source transcoder lock both already make concurrent
// claimants safe, so Worker itself carries no singleton assumption.
type Worker struct {
	jobs     repository.JobRepository
	notifier repository.JobNotifier
	runner   *usecase.TranscodeRunner
	cfg      Config

	wg sync.WaitGroup
}

func New(jobs repository.JobRepository, notifier repository.JobNotifier, runner *usecase.TranscodeRunner, cfg Config) *Worker {
	return &Worker{
		jobs:     jobs,
		notifier: notifier,
		runner:   runner,
		cfg:      cfg,
	}
}

// Run drains the job registry until ctx is cancelled. It never returns an
// error for a single bad job; a failed transcode is recorded against that
// job and the loop continues.
func (w *Worker) Run(ctx context.Context) error {
	ready, err := w.notifier.Subscribe(ctx)
	if err != nil {
		slog.Warn("job ready notifier unavailable, falling back to polling only", "error", err)
		ready = nil
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		w.drain(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case _, ok := <-ready:
			if !ok {
				ready = nil
			}
		}
	}
}

// drain claims and processes jobs until the registry reports empty or ctx
// is cancelled, so a single notification or tick empties a backlog instead
// of processing one job per wakeup.
func (w *Worker) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.jobs.ClaimNext(ctx)
		if err != nil {
			if !errors.Is(err, repository.ErrJobNotFound) {
				slog.Error("failed to claim job", "error", err)
			}
			return
		}

		w.wg.Add(1)
		w.process(ctx, job)
		w.wg.Done()
	}
}

// process runs one claimed job to completion, isolating it from the loop
// so a single bad input never takes down the worker.
func (w *Worker) process(ctx context.Context, job *model.TranscodeJob) {
	log := slog.With("job_id", job.ID, "input", job.InputPath)
	log.Info("processing job")

	start := time.Now()
	if err := w.runner.Run(ctx, job); err != nil {
		if errors.Is(err, transcoder.ErrAlreadyInProgress) {
			// Another claimant (or a lingering lock from a crashed run)
			// already owns this source. Leave the job processing; the
			// lock holder finishes it. CreateOrGet never resets a
			// processing job, so one orphaned by a crash stays processing.
			log.Warn("source already locked, skipping")
			return
		}
		log.Error("transcode failed", "error", err, "duration", time.Since(start))
		return
	}

	log.Info("job complete", "duration", time.Since(start))
}

// Wait blocks until any job claimed before ctx was cancelled has finished,
// or until ShutdownTimeout elapses, whichever comes first.
func (w *Worker) Wait() {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(w.cfg.ShutdownTimeout):
		slog.Warn("worker shutdown timeout exceeded, a job may still be in flight")
	}
}
