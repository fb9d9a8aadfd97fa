package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/privatefit/vodcache/internal/cachestore"
	"github.com/privatefit/vodcache/internal/codec"
	"github.com/privatefit/vodcache/internal/domain/model"
	"github.com/privatefit/vodcache/internal/domain/repository"
	"github.com/privatefit/vodcache/internal/pathresolver"
	"github.com/privatefit/vodcache/internal/usecase"
)

func newStreamTestResolver(t *testing.T) (*pathresolver.Resolver, string) {
	t.Helper()
	root := t.TempDir()
	resolver, err := pathresolver.New(root)
	if err != nil {
		t.Fatalf("failed to build resolver: %v", err)
	}
	return resolver, root
}

func writeStreamTestVideo(t *testing.T, root, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write test video: %v", err)
	}
	return path
}

func newChiRequest(method, target, wildcard string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("*", wildcard)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestStreamHandler_Stream_FullFileNoRange(t *testing.T) {
	_, root := newStreamTestResolver(t)
	content := []byte("0123456789")
	writeStreamTestVideo(t, root, "clip.mp4", content)

	req := newChiRequest(http.MethodGet, "/stream/clip.mp4", "clip.mp4")
	w := httptest.NewRecorder()

	serveVideoFile(w, req, filepath.Join(root, "clip.mp4"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != string(content) {
		t.Errorf("expected full body %q, got %q", content, w.Body.String())
	}
	if w.Header().Get("Accept-Ranges") != "bytes" {
		t.Errorf("expected Accept-Ranges: bytes header")
	}
}

func TestStreamHandler_Stream_ValidRange(t *testing.T) {
	_, root := newStreamTestResolver(t)
	content := []byte("0123456789")
	path := writeStreamTestVideo(t, root, "clip.mp4", content)

	req := newChiRequest(http.MethodGet, "/stream/clip.mp4", "clip.mp4")
	req.Header.Set("Range", "bytes=2-5")
	w := httptest.NewRecorder()

	serveVideoFile(w, req, path)

	if w.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", w.Code)
	}
	if w.Body.String() != "2345" {
		t.Errorf("expected body %q, got %q", "2345", w.Body.String())
	}
	if got := w.Header().Get("Content-Range"); got != "bytes 2-5/10" {
		t.Errorf("expected Content-Range bytes 2-5/10, got %s", got)
	}
}

func TestStreamHandler_Stream_OpenEndedRange(t *testing.T) {
	_, root := newStreamTestResolver(t)
	content := []byte("0123456789")
	path := writeStreamTestVideo(t, root, "clip.mp4", content)

	req := newChiRequest(http.MethodGet, "/stream/clip.mp4", "clip.mp4")
	req.Header.Set("Range", "bytes=7-")
	w := httptest.NewRecorder()

	serveVideoFile(w, req, path)

	if w.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", w.Code)
	}
	if w.Body.String() != "789" {
		t.Errorf("expected body %q, got %q", "789", w.Body.String())
	}
}

func TestStreamHandler_Stream_InvalidRangeReturns416(t *testing.T) {
	_, root := newStreamTestResolver(t)
	content := []byte("0123456789")
	path := writeStreamTestVideo(t, root, "clip.mp4", content)

	req := newChiRequest(http.MethodGet, "/stream/clip.mp4", "clip.mp4")
	req.Header.Set("Range", "bytes=50-100")
	w := httptest.NewRecorder()

	serveVideoFile(w, req, path)

	if w.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("expected 416, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Range"); got != "bytes */10" {
		t.Errorf("expected Content-Range bytes */10, got %s", got)
	}
}

func TestStreamHandler_Stream_MissingFileReturns404(t *testing.T) {
	_, root := newStreamTestResolver(t)

	req := httptest.NewRequest(http.MethodGet, "/stream/missing.mp4", nil)
	w := httptest.NewRecorder()

	serveVideoFile(w, req, filepath.Join(root, "missing.mp4"))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestStreamHandler_Stream_UnsupportedFormatResolverError(t *testing.T) {
	resolver, root := newStreamTestResolver(t)
	writeStreamTestVideo(t, root, "clip.txt", []byte("not a video"))

	_, err := resolver.Resolve("clip.txt")
	if err != pathresolver.ErrUnsupportedFormat {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestParseRange(t *testing.T) {
	const size = int64(100)

	cases := []struct {
		name      string
		header    string
		wantStart int64
		wantEnd   int64
		wantOK    bool
	}{
		{"closed range", "bytes=0-9", 0, 9, true},
		{"open-ended range", "bytes=90-", 90, 99, true},
		{"end beyond size", "bytes=0-999", 0, 0, false},
		{"start after end", "bytes=50-10", 0, 0, false},
		{"not a byte range", "items=0-9", 0, 0, false},
		{"empty header", "", 0, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, ok := parseRange(tc.header, size)
			if ok != tc.wantOK {
				t.Fatalf("expected ok=%v, got %v", tc.wantOK, ok)
			}
			if !ok {
				return
			}
			if start != tc.wantStart || end != tc.wantEnd {
				t.Errorf("expected [%d, %d], got [%d, %d]", tc.wantStart, tc.wantEnd, start, end)
			}
		})
	}
}

type handlerMockJobs struct {
	onCreateOrGet func(inputPath, outputPath string) (*model.TranscodeJob, bool, error)
}

func (m *handlerMockJobs) CreateOrGet(ctx context.Context, inputPath, outputPath string) (*model.TranscodeJob, bool, error) {
	return m.onCreateOrGet(inputPath, outputPath)
}
func (m *handlerMockJobs) ClaimNext(ctx context.Context) (*model.TranscodeJob, error) {
	return nil, repository.ErrJobNotFound
}
func (m *handlerMockJobs) Finish(ctx context.Context, jobID string, success bool, errMsg string) error {
	return nil
}
func (m *handlerMockJobs) Status(ctx context.Context, jobID string) (*model.TranscodeJob, error) {
	return nil, repository.ErrJobNotFound
}

type handlerNoopNotifier struct{}

func (handlerNoopNotifier) Notify(ctx context.Context, jobID string) error { return nil }
func (handlerNoopNotifier) Subscribe(ctx context.Context) (<-chan string, error) {
	ch := make(chan string)
	close(ch)
	return ch, nil
}
func (handlerNoopNotifier) Close() error { return nil }

func handlerFakeFFprobe(t *testing.T, codecName string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\necho " + codecName + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write fake ffprobe: %v", err)
	}
	return path
}

func TestStreamHandler_Stream_TranscodingInProgressReturns202(t *testing.T) {
	resolver, root := newStreamTestResolver(t)
	writeStreamTestVideo(t, root, "clip.mkv", []byte("fake hevc bytes"))

	store, err := cachestore.New(cachestore.DefaultConfig(t.TempDir()), nil)
	if err != nil {
		t.Fatalf("failed to create cache store: %v", err)
	}

	proberCfg := codec.DefaultConfig()
	proberCfg.FFprobePath = handlerFakeFFprobe(t, "hevc")
	prober := codec.NewProber(proberCfg)

	wantJobID := model.JobID(filepath.Join(root, "clip.mkv"))
	jobs := &handlerMockJobs{
		onCreateOrGet: func(inputPath, outputPath string) (*model.TranscodeJob, bool, error) {
			return &model.TranscodeJob{ID: wantJobID, InputPath: inputPath, OutputPath: outputPath, Status: model.JobPending}, true, nil
		},
	}

	streamSvc := usecase.NewStreamService(store, prober, nil, jobs, handlerNoopNotifier{}, usecase.DefaultStreamServiceConfig())
	streamHandler := NewStreamHandler(resolver, streamSvc)

	req := newChiRequest(http.MethodGet, "/stream/clip.mkv", "clip.mkv")
	w := httptest.NewRecorder()

	streamHandler.Stream(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Retry-After") == "" {
		t.Errorf("expected a Retry-After header")
	}

	var resp TranscodingResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "transcoding" || resp.JobID != wantJobID {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestStreamHandler_Stream_NotFoundForUnresolvablePath(t *testing.T) {
	resolver, _ := newStreamTestResolver(t)
	streamHandler := NewStreamHandler(resolver, nil)

	req := newChiRequest(http.MethodGet, "/stream/does-not-exist.mp4", "does-not-exist.mp4")
	w := httptest.NewRecorder()

	streamHandler.Stream(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestContentTypeFor(t *testing.T) {
	if ct := contentTypeFor("clip.mp4"); ct != "video/mp4" {
		t.Errorf("expected video/mp4, got %s", ct)
	}
	if ct := contentTypeFor("clip.unknownext"); ct != "video/mp4" {
		t.Errorf("expected fallback video/mp4, got %s", ct)
	}
}
