// Package cachestore implements the persistent, size- and age-bounded cache
// of transcoded MP4s that sits beside the original media library.
package cachestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/privatefit/vodcache/internal/domain/repository"
	"github.com/privatefit/vodcache/internal/infrastructure/metrics"
)

// maxStemLength bounds the human-readable part of a cache filename for
// filesystem compatibility, matching the original service's truncation.
const maxStemLength = 50

// Config controls cache sizing and retention.
type Config struct {
	Dir          string
	SizeLimit    int64
	TTL          time.Duration
	TargetFactor float64 // fraction of SizeLimit the LRU pass trims down to
}

func DefaultConfig(dir string) Config {
	return Config{
		Dir:          dir,
		SizeLimit:    10 * 1024 * 1024 * 1024,
		TTL:          30 * 24 * time.Hour,
		TargetFactor: 0.8,
	}
}

// Stats summarizes current cache usage.
type Stats struct {
	TotalFiles   int
	TotalBytes   int64
	LimitBytes   int64
	UsagePercent float64
	TTL          time.Duration
}

// EvictionStats summarizes the outcome of an evict() pass.
type EvictionStats struct {
	FilesRemoved int
	BytesFreed   int64
	TTLExpired   int
	LRUEvicted   int
}

// Store manages the on-disk cache directory and its metadata sidecar.
type Store struct {
	cfg      Config
	metadata *metadataStore
	archiver repository.Archiver // optional, may be nil
}

// New creates the cache directory if needed and returns a ready Store.
// archiver may be nil to disable cold-storage write-behind on eviction.
func New(cfg Config, archiver repository.Archiver) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, err
	}
	return &Store{
		cfg:      cfg,
		metadata: newMetadataStore(cfg.Dir),
		archiver: archiver,
	}, nil
}

// PathFor derives the cache file path for a given source path. The hash
// prefix makes the name collision-free; the trailing stem only aids human
// inspection of the cache directory. Matches get_cache_path's shape with
// MD5 replaced by SHA-256.
func (s *Store) PathFor(originalPath string) string {
	sum := sha256.Sum256([]byte(originalPath))
	hash := hex.EncodeToString(sum[:])[:16]

	base := filepath.Base(originalPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.ReplaceAll(stem, "/", "_")
	stem = strings.ReplaceAll(stem, "\\", "_")
	if len(stem) > maxStemLength {
		stem = stem[:maxStemLength]
	}

	return filepath.Join(s.cfg.Dir, hash+"_"+stem+".mp4")
}

// Lookup reports whether a complete cache entry exists for originalPath,
// touching its last-accessed time for LRU tracking if so.
func (s *Store) Lookup(originalPath string) (cachePath string, hit bool) {
	cachePath = s.PathFor(originalPath)

	info, err := os.Stat(cachePath)
	if err != nil || !info.Mode().IsRegular() {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpLookup, metrics.CacheStatusMiss).Inc()
		return "", false
	}

	if err := s.metadata.update(func(entries map[string]entry) map[string]entry {
		e, ok := entries[cachePath]
		if !ok {
			e = entry{OriginalPath: originalPath, CreatedAt: info.ModTime(), SizeBytes: info.Size()}
		}
		e.LastAccessedAt = time.Now()
		entries[cachePath] = e
		return entries
	}); err != nil {
		slog.Warn("cache metadata touch failed", "cache_path", cachePath, "error", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpLookup, metrics.CacheStatusHit).Inc()
	return cachePath, true
}

// Record registers a freshly materialized cache entry. Call this right
// after the transcode engine's atomic rename lands the final file.
func (s *Store) Record(cachePath, originalPath string) error {
	info, err := os.Stat(cachePath)
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpRecord, metrics.CacheStatusError).Inc()
		return err
	}

	now := time.Now()
	err = s.metadata.update(func(entries map[string]entry) map[string]entry {
		entries[cachePath] = entry{
			OriginalPath:   originalPath,
			CreatedAt:      now,
			LastAccessedAt: now,
			SizeBytes:      info.Size(),
		}
		return entries
	})
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpRecord, metrics.CacheStatusError).Inc()
		return err
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpRecord, metrics.CacheStatusSuccess).Inc()
	metrics.CacheBytesUsed.Add(float64(info.Size()))
	return nil
}

// Stats returns current cache usage, reconciling metadata with disk state.
func (s *Store) Stats() (Stats, error) {
	entries, err := s.reconcile()
	if err != nil {
		return Stats{}, err
	}

	var total int64
	for _, e := range entries {
		total += e.SizeBytes
	}

	usage := 0.0
	if s.cfg.SizeLimit > 0 {
		usage = float64(total) / float64(s.cfg.SizeLimit) * 100
	}

	return Stats{
		TotalFiles:   len(entries),
		TotalBytes:   total,
		LimitBytes:   s.cfg.SizeLimit,
		UsagePercent: usage,
		TTL:          s.cfg.TTL,
	}, nil
}

// Evict runs the two-pass eviction: TTL expiry first, then LRU eviction
// down to TargetFactor of the size limit if still over budget. Eviction is
// best-effort per file; one failed removal never aborts the pass.
func (s *Store) Evict(ctx context.Context) (EvictionStats, error) {
	entries, err := s.reconcile()
	if err != nil {
		return EvictionStats{}, err
	}

	now := time.Now()
	stats := EvictionStats{}
	toRemove := map[string]string{} // cachePath -> reason

	for path, e := range entries {
		if s.cfg.TTL > 0 && now.Sub(e.CreatedAt) > s.cfg.TTL {
			toRemove[path] = "ttl"
			stats.TTLExpired++
		}
	}

	var currentSize int64
	for path, e := range entries {
		if _, marked := toRemove[path]; !marked {
			currentSize += e.SizeBytes
		}
	}

	if s.cfg.SizeLimit > 0 && currentSize > s.cfg.SizeLimit {
		type candidate struct {
			path string
			e    entry
		}
		var remaining []candidate
		for path, e := range entries {
			if _, marked := toRemove[path]; marked {
				continue
			}
			remaining = append(remaining, candidate{path, e})
		}
		sort.Slice(remaining, func(i, j int) bool {
			a, b := remaining[i].e, remaining[j].e
			if !a.LastAccessedAt.Equal(b.LastAccessedAt) {
				return a.LastAccessedAt.Before(b.LastAccessedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		})

		target := int64(float64(s.cfg.SizeLimit) * s.cfg.TargetFactor)
		for _, c := range remaining {
			if currentSize <= target {
				break
			}
			toRemove[c.path] = "lru"
			currentSize -= c.e.SizeBytes
			stats.LRUEvicted++
		}
	}

	for path, reason := range toRemove {
		if _, err := os.Stat(path + ".lock"); err == nil {
			slog.Warn("skipping eviction, source locked", "cache_path", path)
			continue
		}
		if _, err := os.Stat(path + ".tmp"); err == nil {
			slog.Warn("skipping eviction, write in progress", "cache_path", path)
			continue
		}

		e := entries[path]
		if s.archiver != nil {
			if err := s.archiver.Archive(ctx, filepath.Base(path), path); err != nil {
				slog.Warn("archive before eviction failed", "cache_path", path, "error", err)
			}
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpEvict, metrics.CacheStatusError).Inc()
			slog.Warn("cache eviction failed", "cache_path", path, "reason", reason, "error", err)
			continue
		}

		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpEvict, metrics.CacheStatusSuccess).Inc()
		if reason == "ttl" {
			metrics.CacheEvictionsTotal.WithLabelValues(metrics.EvictReasonTTL).Inc()
		} else {
			metrics.CacheEvictionsTotal.WithLabelValues(metrics.EvictReasonLRU).Inc()
		}

		stats.BytesFreed += e.SizeBytes
		stats.FilesRemoved++
		delete(entries, path)
	}

	if err := s.metadata.save(entries); err != nil {
		return stats, err
	}

	var remainingBytes int64
	for _, e := range entries {
		remainingBytes += e.SizeBytes
	}
	metrics.CacheBytesUsed.Set(float64(remainingBytes))

	return stats, nil
}

// reconcile drops metadata entries whose backing file is gone and folds in
// any cache file discovered on disk but missing from metadata (e.g. after a
// crash mid-write), defaulting its last-accessed time to its creation time.
func (s *Store) reconcile() (map[string]entry, error) {
	entries, err := s.metadata.load()
	if err != nil {
		return nil, err
	}

	for path := range entries {
		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
			delete(entries, path)
		}
	}

	files, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".mp4") {
			continue
		}
		path := filepath.Join(s.cfg.Dir, f.Name())
		if _, ok := entries[path]; ok {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		entries[path] = entry{
			CreatedAt:      info.ModTime(),
			LastAccessedAt: info.ModTime(),
			SizeBytes:      info.Size(),
		}
	}

	return entries, nil
}
