package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/privatefit/vodcache/internal/domain/model"
	"github.com/privatefit/vodcache/internal/domain/repository"
	"github.com/privatefit/vodcache/internal/infrastructure/metrics"
)

// DBTX abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// JobRepository implements repository.JobRepository using PostgreSQL, the
// durable source of truth for transcode job state.
type JobRepository struct {
	db DBTX
}

func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

var _ repository.JobRepository = (*JobRepository)(nil)

// CreateOrGet inserts a new pending job for inputPath, or resets an existing
// failed/pending one back to pending (a retry), or returns an existing
// complete/processing job untouched. shouldEnqueue is true whenever the
// caller should wake a worker: a fresh insert or a reset, but not when the
// job is already in flight or already done.
func (r *JobRepository) CreateOrGet(ctx context.Context, inputPath, outputPath string) (*model.TranscodeJob, bool, error) {
	job, err := model.NewTranscodeJob(inputPath, outputPath)
	if err != nil {
		return nil, false, err
	}

	const upsert = `
		INSERT INTO transcode_jobs (id, input_path, output_path, status, progress, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)
		ON CONFLICT (id) DO UPDATE SET
			status = $4,
			progress = 0,
			error_message = NULL,
			started_at = NULL,
			completed_at = NULL
		WHERE transcode_jobs.status IN ($4, $6)
		RETURNING id, input_path, output_path, status, progress, error_message, created_at, started_at, completed_at
	`
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryInsert).Inc()
	reset, err := r.scanJob(r.db.QueryRow(ctx, upsert,
		job.ID, job.InputPath, job.OutputPath, model.JobPending.String(), job.CreatedAt, model.JobFailed.String()))
	if err == nil {
		return reset, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create job: %w", err)
	}

	// The WHERE clause excluded the existing row: it is complete or
	// processing. Fetch it as-is; no enqueue needed.
	existing, err := r.Status(ctx, job.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch existing job: %w", err)
	}
	return existing, false, nil
}

// ClaimNext atomically claims the oldest pending job for processing,
// skipping rows a concurrent worker already has locked.
func (r *JobRepository) ClaimNext(ctx context.Context) (*model.TranscodeJob, error) {
	const query = `
		UPDATE transcode_jobs
		SET status = $1, started_at = $2
		WHERE id = (
			SELECT id FROM transcode_jobs
			WHERE status = $3
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, input_path, output_path, status, progress, error_message, created_at, started_at, completed_at
	`

	now := time.Now()
	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpdate).Inc()
	job, err := r.scanJob(r.db.QueryRow(ctx, query, model.JobProcessing.String(), now, model.JobPending.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	return job, nil
}

// Finish records the terminal outcome of a processed job.
func (r *JobRepository) Finish(ctx context.Context, jobID string, success bool, errMsg string) error {
	status := model.JobComplete
	if !success {
		status = model.JobFailed
	}

	const query = `
		UPDATE transcode_jobs
		SET status = $2, progress = $3, error_message = $4, completed_at = $5
		WHERE id = $1
	`

	progress := 0
	if success {
		progress = 100
	}

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpdate).Inc()
	tag, err := r.db.Exec(ctx, query, jobID, status.String(), progress, nullString(errMsg), time.Now())
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrJobNotFound
	}

	return nil
}

// Status retrieves the current state of a job by ID.
func (r *JobRepository) Status(ctx context.Context, jobID string) (*model.TranscodeJob, error) {
	const query = `
		SELECT id, input_path, output_path, status, progress, error_message, created_at, started_at, completed_at
		FROM transcode_jobs
		WHERE id = $1
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect).Inc()
	job, err := r.scanJob(r.db.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job status: %w", err)
	}

	return job, nil
}

func (r *JobRepository) scanJob(row pgx.Row) (*model.TranscodeJob, error) {
	var (
		job          model.TranscodeJob
		status       string
		errorMessage *string
	)

	err := row.Scan(
		&job.ID,
		&job.InputPath,
		&job.OutputPath,
		&status,
		&job.Progress,
		&errorMessage,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = model.JobStatus(status)
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}

	return &job, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
