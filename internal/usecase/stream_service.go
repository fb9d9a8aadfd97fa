package usecase

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/privatefit/vodcache/internal/cachestore"
	"github.com/privatefit/vodcache/internal/codec"
	"github.com/privatefit/vodcache/internal/domain/model"
	"github.com/privatefit/vodcache/internal/domain/repository"
	"github.com/privatefit/vodcache/internal/infrastructure/metrics"
)

// PlanAction tells the HTTP layer how to answer a stream request.
type PlanAction int

const (
	// ActionServeOriginal streams the source file as-is: it already plays
	// natively in the browser.
	ActionServeOriginal PlanAction = iota
	// ActionServeCached streams the previously transcoded MP4.
	ActionServeCached
	// ActionTranscoding means a job now exists (new or already running)
	// and the client should be asked to retry shortly.
	ActionTranscoding
)

// Plan is the outcome of deciding how to serve a resolved source path.
type Plan struct {
	Action    PlanAction
	Path      string // file to stream, set for ActionServeOriginal/ActionServeCached
	JobID     string // set for ActionTranscoding
	RetryHint time.Duration
}

// StreamServiceConfig controls probe-cache TTL and the retry hint handed
// back to clients waiting on a transcode.
type StreamServiceConfig struct {
	ProbeCacheTTL time.Duration
	RetryHint     time.Duration
}

func DefaultStreamServiceConfig() StreamServiceConfig {
	return StreamServiceConfig{
		ProbeCacheTTL: 10 * time.Minute,
		RetryHint:     5 * time.Second,
	}
}

// StreamService decides how a resolved source path should be served and
// coalesces concurrent callers onto a single job-registry round trip.
type StreamService struct {
	store    *cachestore.Store
	prober   *codec.Prober
	probes   repository.ProbeCache // optional, may be nil
	jobs     repository.JobRepository
	notifier repository.JobNotifier

	sfGroup singleflight.Group
	cfg     StreamServiceConfig
}

func NewStreamService(store *cachestore.Store, prober *codec.Prober, probes repository.ProbeCache, jobs repository.JobRepository, notifier repository.JobNotifier, cfg StreamServiceConfig) *StreamService {
	return &StreamService{
		store:    store,
		prober:   prober,
		probes:   probes,
		jobs:     jobs,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Plan resolves sourcePath to a serving decision: the original file if it
// is already browser-playable, a cached transcode if one exists, or a new
// (or already in-flight) transcode job otherwise. Concurrent callers for
// the same source share one create_or_get round trip via singleflight.
func (s *StreamService) Plan(ctx context.Context, sourcePath string) (Plan, error) {
	if !s.needsTranscoding(ctx, sourcePath) {
		metrics.StreamRequestsTotal.WithLabelValues(metrics.StreamOutcomeCacheHit).Inc()
		return Plan{Action: ActionServeOriginal, Path: sourcePath}, nil
	}

	if cachePath, hit := s.store.Lookup(sourcePath); hit {
		metrics.StreamRequestsTotal.WithLabelValues(metrics.StreamOutcomeCacheHit).Inc()
		return Plan{Action: ActionServeCached, Path: cachePath}, nil
	}

	metrics.StreamRequestsTotal.WithLabelValues(metrics.StreamOutcomeCacheMiss).Inc()

	jobID := model.JobID(sourcePath)
	result, err, shared := s.sfGroup.Do(jobID, func() (any, error) {
		return s.createOrGetJob(ctx, sourcePath)
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		metrics.StreamRequestsTotal.WithLabelValues(metrics.StreamOutcomeError).Inc()
		return Plan{}, err
	}

	job := result.(*model.TranscodeJob)
	if job.Status == model.JobComplete {
		// Completed between our cache miss and the registry round trip
		// (another request already finished the transcode).
		cachePath, hit := s.store.Lookup(sourcePath)
		if hit {
			return Plan{Action: ActionServeCached, Path: cachePath}, nil
		}
	}

	return Plan{Action: ActionTranscoding, JobID: job.ID, RetryHint: s.cfg.RetryHint}, nil
}

// createOrGetJob is the singleflight-guarded body: only one goroutine per
// source path reaches the registry, even under a request storm.
func (s *StreamService) createOrGetJob(ctx context.Context, sourcePath string) (*model.TranscodeJob, error) {
	outputPath := s.store.PathFor(sourcePath)
	job, shouldEnqueue, err := s.jobs.CreateOrGet(ctx, sourcePath, outputPath)
	if err != nil {
		return nil, fmt.Errorf("create or get transcode job: %w", err)
	}
	if shouldEnqueue && s.notifier != nil {
		if err := s.notifier.Notify(ctx, job.ID); err != nil {
			metrics.NotifierErrorsTotal.Inc()
		}
	}
	return job, nil
}

// needsTranscoding consults the probe cache before shelling out to
// ffprobe; a cache error is treated as a miss and never surfaced, a
// standard cache-aside fallback discipline.
func (s *StreamService) needsTranscoding(ctx context.Context, sourcePath string) bool {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return true
	}

	if s.probes != nil {
		fingerprint := codec.Fingerprint(sourcePath, info.ModTime())
		if cached, err := s.probes.Get(ctx, fingerprint); err == nil && cached != nil {
			metrics.ProbeCacheOperationsTotal.WithLabelValues(metrics.CacheStatusHit).Inc()
			return !isBrowserCompatible(cached.Codec)
		}
		metrics.ProbeCacheOperationsTotal.WithLabelValues(metrics.CacheStatusMiss).Inc()

		probedCodec := s.prober.Probe(ctx, sourcePath)
		_ = s.probes.Set(ctx, fingerprint, repository.ProbeResult{Codec: probedCodec}, s.cfg.ProbeCacheTTL)
		return !isBrowserCompatible(probedCodec)
	}

	return s.prober.NeedsTranscoding(ctx, sourcePath)
}

func isBrowserCompatible(c string) bool {
	switch c {
	case "h264", "avc1", "avc":
		return true
	default:
		return false
	}
}
