package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/privatefit/vodcache/internal/cachestore"
	"github.com/privatefit/vodcache/internal/codec"
	"github.com/privatefit/vodcache/internal/domain/model"
	"github.com/privatefit/vodcache/internal/domain/repository"
	"github.com/privatefit/vodcache/internal/transcoder"
)

// TranscodeStatus answers GET /transcode-status/{path}.
type TranscodeStatus struct {
	NeedsTranscoding      bool
	CacheExists           bool
	TranscodingInProgress bool
	Ready                 bool
	Codec                 string
}

// TriggerOutcome answers POST /transcode. complete and failed report a
// transcode that Trigger ran to completion itself; in_progress means the
// source is already being transcoded elsewhere and Trigger did not wait.
type TriggerOutcome string

const (
	TriggerNotNeeded  TriggerOutcome = "not_needed"
	TriggerCached     TriggerOutcome = "cached"
	TriggerInProgress TriggerOutcome = "in_progress"
	TriggerComplete   TriggerOutcome = "complete"
	TriggerFailed     TriggerOutcome = "failed"
)

// ControlService backs the pre-warm/inspection endpoints. Trigger blocks
// until a transcode it starts itself is done; a source that is already
// being transcoded is reported as in_progress at once.
type ControlService struct {
	store  *cachestore.Store
	prober *codec.Prober
	jobs   repository.JobRepository
	runner *TranscodeRunner
}

func NewControlService(store *cachestore.Store, prober *codec.Prober, jobs repository.JobRepository, runner *TranscodeRunner) *ControlService {
	return &ControlService{store: store, prober: prober, jobs: jobs, runner: runner}
}

// Status reports whether sourcePath needs transcoding, whether a cache
// entry already exists, and whether a job is currently processing it.
func (s *ControlService) Status(ctx context.Context, sourcePath string) (TranscodeStatus, error) {
	probedCodec := s.prober.Probe(ctx, sourcePath)
	needs := !isBrowserCompatible(probedCodec)
	_, cacheHit := s.store.Lookup(sourcePath)

	inProgress := false
	if needs && !cacheHit {
		job, err := s.jobs.Status(ctx, model.JobID(sourcePath))
		if err != nil && !errors.Is(err, repository.ErrJobNotFound) {
			return TranscodeStatus{}, fmt.Errorf("check job status: %w", err)
		}
		inProgress = err == nil && job.Status == model.JobProcessing
	}

	return TranscodeStatus{
		NeedsTranscoding:      needs,
		CacheExists:           cacheHit,
		TranscodingInProgress: inProgress,
		Ready:                 !needs || cacheHit,
		Codec:                 probedCodec,
	}, nil
}

// Trigger pre-warms the cache for sourcePath, transcoding synchronously if
// nothing else is already doing so. A source already being transcoded by
// the background worker is reported as in_progress rather than raced.
func (s *ControlService) Trigger(ctx context.Context, sourcePath string) (TriggerOutcome, error) {
	probedCodec := s.prober.Probe(ctx, sourcePath)
	if isBrowserCompatible(probedCodec) {
		return TriggerNotNeeded, nil
	}
	if _, hit := s.store.Lookup(sourcePath); hit {
		return TriggerCached, nil
	}

	outputPath := s.store.PathFor(sourcePath)
	job, shouldRun, err := s.jobs.CreateOrGet(ctx, sourcePath, outputPath)
	if err != nil {
		return "", fmt.Errorf("create or get transcode job: %w", err)
	}
	if !shouldRun {
		if job.Status == model.JobComplete {
			return TriggerComplete, nil
		}
		return TriggerInProgress, nil
	}

	if err := s.runner.Run(ctx, job); err != nil {
		if errors.Is(err, transcoder.ErrAlreadyInProgress) {
			return TriggerInProgress, nil
		}
		return TriggerFailed, nil
	}
	return TriggerComplete, nil
}

// Stats returns current cache usage for GET /cache/stats.
func (s *ControlService) Stats() (cachestore.Stats, error) {
	return s.store.Stats()
}
