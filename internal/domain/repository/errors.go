package repository

import "errors"

var (
	// ErrJobNotFound is returned when a transcode job cannot be found.
	ErrJobNotFound = errors.New("transcode job not found")

	// ErrCacheEntryNotFound is returned when a cache entry cannot be found.
	ErrCacheEntryNotFound = errors.New("cache entry not found")

	// ErrArchiveObjectNotFound is returned when an archived object cannot be found.
	ErrArchiveObjectNotFound = errors.New("archive object not found")

	// ErrBucketNotFound is returned when the configured archive bucket does not exist.
	ErrBucketNotFound = errors.New("archive bucket not found")
)
