package repository

import (
	"context"
	"time"
)

// ProbeResult is a memoized codec-probe outcome.
type ProbeResult struct {
	Codec string
}

// ProbeCache memoizes recent codec-probe results, keyed by a fingerprint of
// the source path and its modification time. Purely an optimization: every
// caller must treat a cache error as a miss and fall back to a live probe.
type ProbeCache interface {
	// Get returns the cached result, or nil, nil on a miss.
	Get(ctx context.Context, fingerprint string) (*ProbeResult, error)

	// Set stores a probe result under fingerprint for the given TTL.
	Set(ctx context.Context, fingerprint string, result ProbeResult, ttl time.Duration) error
}
