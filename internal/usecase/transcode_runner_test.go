package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/privatefit/vodcache/internal/cachestore"
	"github.com/privatefit/vodcache/internal/domain/model"
	"github.com/privatefit/vodcache/internal/transcoder"
)

type runnerMockJobs struct {
	finishJobID string
	finishOK    bool
	finishMsg   string
	finishErr   error
	finishCalls int
}

func (m *runnerMockJobs) CreateOrGet(ctx context.Context, inputPath, outputPath string) (*model.TranscodeJob, bool, error) {
	return nil, false, errors.New("not used by runner tests")
}

func (m *runnerMockJobs) ClaimNext(ctx context.Context) (*model.TranscodeJob, error) {
	return nil, errors.New("not used by runner tests")
}

func (m *runnerMockJobs) Finish(ctx context.Context, jobID string, success bool, errMsg string) error {
	m.finishCalls++
	m.finishJobID = jobID
	m.finishOK = success
	m.finishMsg = errMsg
	return m.finishErr
}

func (m *runnerMockJobs) Status(ctx context.Context, jobID string) (*model.TranscodeJob, error) {
	return nil, errors.New("not used by runner tests")
}

type runnerMockTranscoder struct {
	transcodeFunc func(ctx context.Context, inputPath, outputPath string) error
}

func (m *runnerMockTranscoder) Transcode(ctx context.Context, inputPath, outputPath string) error {
	if m.transcodeFunc != nil {
		return m.transcodeFunc(ctx, inputPath, outputPath)
	}
	return os.WriteFile(outputPath, []byte("fake mp4"), 0644)
}

func newRunnerTestStore(t *testing.T) *cachestore.Store {
	t.Helper()
	store, err := cachestore.New(cachestore.DefaultConfig(t.TempDir()), nil)
	if err != nil {
		t.Fatalf("failed to create cache store: %v", err)
	}
	return store
}

func TestTranscodeRunner_Run_Success(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "out.mp4")
	job := &model.TranscodeJob{ID: "job1", InputPath: "/media/a.mkv", OutputPath: outputPath, Status: model.JobProcessing}

	jobs := &runnerMockJobs{}
	tc := &runnerMockTranscoder{}
	store := newRunnerTestStore(t)
	runner := NewTranscodeRunner(jobs, tc, store)

	if err := runner.Run(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if jobs.finishCalls != 1 || !jobs.finishOK || jobs.finishJobID != "job1" {
		t.Errorf("expected a successful Finish call for job1, got calls=%d ok=%v id=%s", jobs.finishCalls, jobs.finishOK, jobs.finishJobID)
	}

	if cachePath, hit := store.Lookup(job.InputPath); !hit || cachePath == "" {
		t.Errorf("expected cache entry to be recorded for %s", job.InputPath)
	}
}

func TestTranscodeRunner_Run_TranscodeFailure(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "out.mp4")
	job := &model.TranscodeJob{ID: "job2", InputPath: "/media/bad.mkv", OutputPath: outputPath, Status: model.JobProcessing}

	wantErr := errors.New("ffmpeg exited with status 1")
	jobs := &runnerMockJobs{}
	tc := &runnerMockTranscoder{transcodeFunc: func(ctx context.Context, inputPath, outputPath string) error {
		return wantErr
	}}
	runner := NewTranscodeRunner(jobs, tc, newRunnerTestStore(t))

	err := runner.Run(context.Background(), job)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected transcode error to propagate, got %v", err)
	}

	if jobs.finishCalls != 1 || jobs.finishOK || jobs.finishMsg != wantErr.Error() {
		t.Errorf("expected a failed Finish call recording the error, got calls=%d ok=%v msg=%q", jobs.finishCalls, jobs.finishOK, jobs.finishMsg)
	}
}

func TestTranscodeRunner_Run_SourceAlreadyLocked(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "out.mp4")
	if err := os.WriteFile(outputPath+".lock", []byte("1"), 0644); err != nil {
		t.Fatalf("failed to seed lock file: %v", err)
	}
	job := &model.TranscodeJob{ID: "job3", InputPath: "/media/locked.mkv", OutputPath: outputPath, Status: model.JobProcessing}

	jobs := &runnerMockJobs{}
	tc := &runnerMockTranscoder{}
	runner := NewTranscodeRunner(jobs, tc, newRunnerTestStore(t))

	err := runner.Run(context.Background(), job)
	if !errors.Is(err, transcoder.ErrAlreadyInProgress) {
		t.Fatalf("expected ErrAlreadyInProgress, got %v", err)
	}

	if jobs.finishCalls != 0 {
		t.Errorf("expected no Finish call when the source lock is already held, got %d", jobs.finishCalls)
	}
}
