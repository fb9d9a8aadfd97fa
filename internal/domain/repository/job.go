package repository

import (
	"context"

	"github.com/privatefit/vodcache/internal/domain/model"
)

// JobRepository defines the interface for transcode job persistence.
// Implementations should be provided by the infrastructure layer (e.g., PostgreSQL).
type JobRepository interface {
	// CreateOrGet returns the job for inputPath/outputPath, creating it if
	// absent. The bool reports whether the caller must make sure a worker
	// picks this job up: true for a brand-new or retried job, false if a
	// job is already processing or already complete.
	CreateOrGet(ctx context.Context, inputPath, outputPath string) (job *model.TranscodeJob, shouldEnqueue bool, err error)

	// ClaimNext atomically claims the oldest pending job and marks it
	// processing. Returns nil, ErrJobNotFound if no pending job exists. Safe to call
	// from multiple concurrent workers.
	ClaimNext(ctx context.Context) (*model.TranscodeJob, error)

	// Finish records the terminal outcome of a claimed job.
	Finish(ctx context.Context, jobID string, success bool, errMsg string) error

	// Status retrieves a job by ID. Returns nil, ErrJobNotFound if absent.
	Status(ctx context.Context, jobID string) (*model.TranscodeJob, error)
}
