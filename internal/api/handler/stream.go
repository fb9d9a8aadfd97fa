package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/privatefit/vodcache/internal/pathresolver"
	"github.com/privatefit/vodcache/internal/usecase"
)

// chunkSize bounds a single range read, matching the original streaming
// generator's 8 KiB reads so neither end buffers a whole range in memory.
const chunkSize = 8192

var rangePattern = regexp.MustCompile(`^bytes=(\d+)-(\d*)$`)

// StreamHandler answers GET /stream/{path}, the byte-range playback route.
type StreamHandler struct {
	resolver *pathresolver.Resolver
	stream   *usecase.StreamService
}

func NewStreamHandler(resolver *pathresolver.Resolver, stream *usecase.StreamService) *StreamHandler {
	return &StreamHandler{resolver: resolver, stream: stream}
}

type TranscodingResponse struct {
	Status    string `json:"status"`
	JobID     string `json:"job_id"`
	RetryHint int    `json:"retry_after_seconds"`
}

func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	clientPath := chi.URLParam(r, "*")

	absPath, err := h.resolver.Resolve(clientPath)
	if err != nil {
		h.handleResolveError(w, err)
		return
	}

	plan, err := h.stream.Plan(r.Context(), absPath)
	if err != nil {
		Error(w, http.StatusInternalServerError, "plan_failed", "failed to decide how to serve this video")
		return
	}

	switch plan.Action {
	case usecase.ActionTranscoding:
		retrySeconds := int(plan.RetryHint.Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(retrySeconds))
		JSON(w, http.StatusAccepted, TranscodingResponse{
			Status:    "transcoding",
			JobID:     plan.JobID,
			RetryHint: retrySeconds,
		})
	default:
		serveVideoFile(w, r, plan.Path)
	}
}

func (h *StreamHandler) handleResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pathresolver.ErrNotFound):
		Error(w, http.StatusNotFound, "not_found", "video file not found")
	case errors.Is(err, pathresolver.ErrUnsupportedFormat):
		Error(w, http.StatusUnsupportedMediaType, "unsupported_format", "video format is not supported")
	case errors.Is(err, pathresolver.ErrInvalidPath):
		Error(w, http.StatusForbidden, "invalid_path", "path is outside the media library")
	default:
		Error(w, http.StatusBadRequest, "invalid_path", "could not resolve the requested path")
	}
}

// serveVideoFile streams path, honoring a single-range Range header the way
// the original video server did: one contiguous byte range, 206 Partial
// Content, chunked reads capped at chunkSize. A missing Range header streams
// the whole file with a 200; a malformed or unsatisfiable one gets a 416
// with "Content-Range: bytes */<size>".
func serveVideoFile(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		Error(w, http.StatusNotFound, "not_found", "video file not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		Error(w, http.StatusInternalServerError, "stat_failed", "failed to read video file")
		return
	}
	fileSize := info.Size()
	contentType := contentTypeFor(path)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(fileSize, 10))
		w.WriteHeader(http.StatusOK)
		copyInChunks(w, f, fileSize)
		return
	}

	start, end, ok := parseRange(rangeHeader, fileSize)
	if !ok {
		w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(fileSize, 10))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		Error(w, http.StatusInternalServerError, "seek_failed", "failed to seek video file")
		return
	}

	contentLength := end - start + 1
	w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/"+strconv.FormatInt(fileSize, 10))
	w.Header().Set("Content-Length", strconv.FormatInt(contentLength, 10))
	w.WriteHeader(http.StatusPartialContent)
	copyInChunks(w, f, contentLength)
}

// parseRange accepts a single "bytes=start-end" range, end optional,
// matching the original regex-based parser exactly rather than the fuller
// multi-range grammar RFC 7233 allows.
func parseRange(header string, fileSize int64) (start, end int64, ok bool) {
	m := rangePattern.FindStringSubmatch(header)
	if m == nil {
		return 0, 0, false
	}

	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}

	end = fileSize - 1
	if m[2] != "" {
		parsedEnd, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return 0, 0, false
		}
		end = parsedEnd
	}

	if start < 0 || end < start || end >= fileSize {
		return 0, 0, false
	}
	return start, end, true
}

// copyInChunks streams up to n bytes from r to w in chunkSize pieces,
// stopping silently on a write error: a client that disconnects mid-range
// just gets the rest of the generator discarded, not a server error.
func copyInChunks(w io.Writer, r io.Reader, n int64) {
	remaining := n
	buf := make([]byte, chunkSize)
	for remaining > 0 {
		size := int64(chunkSize)
		if remaining < size {
			size = remaining
		}
		read, err := r.Read(buf[:size])
		if read > 0 {
			if _, writeErr := w.Write(buf[:read]); writeErr != nil {
				return
			}
			remaining -= int64(read)
		}
		if err != nil {
			return
		}
	}
}

func contentTypeFor(path string) string {
	ext := filepath.Ext(path)
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "video/mp4"
}
