package cachestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeArchiver struct {
	archiveFunc func(ctx context.Context, key, localPath string) error
	calls       []string
}

func (f *fakeArchiver) Archive(ctx context.Context, key, localPath string) error {
	f.calls = append(f.calls, key)
	if f.archiveFunc != nil {
		return f.archiveFunc(ctx, key, localPath)
	}
	return nil
}

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	s, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	return s
}

func TestStore_PathFor_Deterministic(t *testing.T) {
	s := newTestStore(t, DefaultConfig(""))

	a := s.PathFor("/media/library/workout.mkv")
	b := s.PathFor("/media/library/workout.mkv")
	if a != b {
		t.Errorf("PathFor() is not deterministic: %v != %v", a, b)
	}

	if filepath.Ext(a) != ".mp4" {
		t.Errorf("PathFor() extension = %v, want .mp4", filepath.Ext(a))
	}
}

func TestStore_PathFor_TruncatesLongStem(t *testing.T) {
	s := newTestStore(t, DefaultConfig(""))
	path := s.PathFor("/media/" + repeatChar('a', 200) + ".mkv")
	base := filepath.Base(path)
	// hash (16 hex) + "_" + stem (<=50) + ".mp4"
	if len(base) > 16+1+maxStemLength+4 {
		t.Errorf("PathFor() produced overlong filename: %d chars", len(base))
	}
}

func repeatChar(c byte, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = c
	}
	return string(b)
}

func TestStore_LookupAndRecord(t *testing.T) {
	s := newTestStore(t, DefaultConfig(""))
	original := "/media/library/workout.mkv"

	if _, hit := s.Lookup(original); hit {
		t.Error("Lookup() should miss before the entry is materialized")
	}

	cachePath := s.PathFor(original)
	if err := os.WriteFile(cachePath, []byte("fake mp4 bytes"), 0644); err != nil {
		t.Fatalf("failed to write cache file: %v", err)
	}
	if err := s.Record(cachePath, original); err != nil {
		t.Fatalf("Record() unexpected error: %v", err)
	}

	got, hit := s.Lookup(original)
	if !hit {
		t.Fatal("Lookup() should hit after Record()")
	}
	if got != cachePath {
		t.Errorf("Lookup() = %v, want %v", got, cachePath)
	}
}

func TestStore_Evict_TTLExpiry(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir, SizeLimit: 10 * 1024 * 1024, TTL: time.Millisecond, TargetFactor: 0.8}
	s := newTestStore(t, cfg)

	original := "/media/library/old.mkv"
	cachePath := s.PathFor(original)
	if err := os.WriteFile(cachePath, []byte("stale"), 0644); err != nil {
		t.Fatalf("failed to write cache file: %v", err)
	}
	if err := s.Record(cachePath, original); err != nil {
		t.Fatalf("Record() unexpected error: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	stats, err := s.Evict(context.Background())
	if err != nil {
		t.Fatalf("Evict() unexpected error: %v", err)
	}
	if stats.TTLExpired != 1 || stats.FilesRemoved != 1 {
		t.Errorf("Evict() stats = %+v, want 1 TTL expiry removed", stats)
	}
	if _, err := os.Stat(cachePath); !os.IsNotExist(err) {
		t.Error("Evict() should have removed the expired cache file")
	}
}

func TestStore_Evict_LRUOverBudget(t *testing.T) {
	dir := t.TempDir()
	// Each file is ~10 bytes; budget only 2 files' worth, target 50% -> 1 file.
	cfg := Config{Dir: dir, SizeLimit: 20, TTL: time.Hour, TargetFactor: 0.5}
	s := newTestStore(t, cfg)

	paths := []string{"/media/a.mkv", "/media/b.mkv", "/media/c.mkv"}
	for i, original := range paths {
		cachePath := s.PathFor(original)
		if err := os.WriteFile(cachePath, []byte("0123456789"), 0644); err != nil {
			t.Fatalf("failed to write cache file: %v", err)
		}
		if err := s.Record(cachePath, original); err != nil {
			t.Fatalf("Record() unexpected error: %v", err)
		}
		// Ensure distinct LastAccessedAt ordering (oldest = a, newest = c).
		_ = i
		time.Sleep(time.Millisecond)
	}

	stats, err := s.Evict(context.Background())
	if err != nil {
		t.Fatalf("Evict() unexpected error: %v", err)
	}
	if stats.LRUEvicted == 0 {
		t.Error("Evict() should have LRU-evicted at least one file over budget")
	}

	// The oldest entry (a.mkv) should be gone; the newest (c.mkv) should remain.
	if _, err := os.Stat(s.PathFor("/media/a.mkv")); !os.IsNotExist(err) {
		t.Error("Evict() should remove the least-recently-accessed entry first")
	}
	if _, err := os.Stat(s.PathFor("/media/c.mkv")); err != nil {
		t.Error("Evict() should not remove the most-recently-accessed entry")
	}
}

func TestStore_Evict_ArchivesBeforeDelete(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir, SizeLimit: 10, TTL: time.Millisecond, TargetFactor: 0.8}
	existedAtArchive := false
	archiver := &fakeArchiver{archiveFunc: func(ctx context.Context, key, localPath string) error {
		_, statErr := os.Stat(localPath)
		existedAtArchive = statErr == nil
		return nil
	}}
	s, err := New(cfg, archiver)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}

	original := "/media/old.mkv"
	cachePath := s.PathFor(original)
	if err := os.WriteFile(cachePath, []byte("bytes"), 0644); err != nil {
		t.Fatalf("failed to write cache file: %v", err)
	}
	if err := s.Record(cachePath, original); err != nil {
		t.Fatalf("Record() unexpected error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := s.Evict(context.Background()); err != nil {
		t.Fatalf("Evict() unexpected error: %v", err)
	}
	if len(archiver.calls) != 1 || archiver.calls[0] != filepath.Base(cachePath) {
		t.Errorf("Archive() calls = %v, want one call with key %s", archiver.calls, filepath.Base(cachePath))
	}
	if !existedAtArchive {
		t.Error("Archive() should run while the cache file still exists")
	}
	if _, err := os.Stat(cachePath); !os.IsNotExist(err) {
		t.Error("Evict() should remove the cache file after archiving it")
	}
}

func TestStore_Evict_ArchiverFailureDoesNotBlockDeletion(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir, SizeLimit: 10, TTL: time.Millisecond, TargetFactor: 0.8}
	archiver := &fakeArchiver{archiveFunc: func(ctx context.Context, key, localPath string) error {
		return context.DeadlineExceeded
	}}
	s, err := New(cfg, archiver)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}

	original := "/media/old.mkv"
	cachePath := s.PathFor(original)
	if err := os.WriteFile(cachePath, []byte("bytes"), 0644); err != nil {
		t.Fatalf("failed to write cache file: %v", err)
	}
	if err := s.Record(cachePath, original); err != nil {
		t.Fatalf("Record() unexpected error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	stats, err := s.Evict(context.Background())
	if err != nil {
		t.Fatalf("Evict() unexpected error: %v", err)
	}
	if stats.FilesRemoved != 1 {
		t.Errorf("Evict() should still remove the file when archiving fails, got %+v", stats)
	}
	if _, err := os.Stat(cachePath); !os.IsNotExist(err) {
		t.Error("Evict() should have removed the local file despite archiver failure")
	}
}

func TestStore_Stats(t *testing.T) {
	s := newTestStore(t, DefaultConfig(""))

	original := "/media/a.mkv"
	cachePath := s.PathFor(original)
	if err := os.WriteFile(cachePath, []byte("0123456789"), 0644); err != nil {
		t.Fatalf("failed to write cache file: %v", err)
	}
	if err := s.Record(cachePath, original); err != nil {
		t.Fatalf("Record() unexpected error: %v", err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats() unexpected error: %v", err)
	}
	if stats.TotalFiles != 1 {
		t.Errorf("Stats().TotalFiles = %d, want 1", stats.TotalFiles)
	}
	if stats.TotalBytes != 10 {
		t.Errorf("Stats().TotalBytes = %d, want 10", stats.TotalBytes)
	}
}
