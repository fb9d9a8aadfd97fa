package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/privatefit/vodcache/internal/cachestore"
	"github.com/privatefit/vodcache/internal/domain/model"
	"github.com/privatefit/vodcache/internal/domain/repository"
	"github.com/privatefit/vodcache/internal/infrastructure/metrics"
	"github.com/privatefit/vodcache/internal/transcoder"
)

// TranscodeRunner executes one claimed job end to end: acquire the
// per-source lock, transcode, record the cache entry, and report the
// outcome to the registry. Shared by the background Worker and by the
// control endpoint's synchronous pre-warm path so both go through the
// exact same success/failure bookkeeping.
type TranscodeRunner struct {
	jobs       repository.JobRepository
	transcoder transcoder.Transcoder
	store      *cachestore.Store
}

func NewTranscodeRunner(jobs repository.JobRepository, tc transcoder.Transcoder, store *cachestore.Store) *TranscodeRunner {
	return &TranscodeRunner{jobs: jobs, transcoder: tc, store: store}
}

// Run transcodes job.InputPath to job.OutputPath and finishes the job in
// the registry. Returns transcoder.ErrAlreadyInProgress without touching
// the registry if another caller already holds the source lock; the
// registry entry stays processing until the lock holder finishes it, since
// neither ClaimNext nor CreateOrGet changes a processing job.
func (r *TranscodeRunner) Run(ctx context.Context, job *model.TranscodeJob) error {
	if _, err := r.store.Evict(ctx); err != nil {
		slog.Warn("pre-transcode eviction failed", "error", err)
	}

	lock := transcoder.NewSourceLock(job.OutputPath)
	if err := lock.TryAcquire(); err != nil {
		return err
	}
	defer lock.Release()

	start := time.Now()
	err := r.transcoder.Transcode(ctx, job.InputPath, job.OutputPath)
	metrics.JobDurationSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.JobsTotal.WithLabelValues(metrics.JobStatusFailed).Inc()
		if finishErr := r.jobs.Finish(ctx, job.ID, false, err.Error()); finishErr != nil {
			return finishErr
		}
		return err
	}

	if recErr := r.store.Record(job.OutputPath, job.InputPath); recErr != nil {
		return recErr
	}

	metrics.JobsTotal.WithLabelValues(metrics.JobStatusComplete).Inc()
	return r.jobs.Finish(ctx, job.ID, true, "")
}
