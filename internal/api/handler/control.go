package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/privatefit/vodcache/internal/pathresolver"
	"github.com/privatefit/vodcache/internal/usecase"
)

// ControlHandler backs the pre-warm/inspection endpoints: transcode status,
// trigger, and cache stats.
type ControlHandler struct {
	resolver *pathresolver.Resolver
	control  *usecase.ControlService
}

func NewControlHandler(resolver *pathresolver.Resolver, control *usecase.ControlService) *ControlHandler {
	return &ControlHandler{resolver: resolver, control: control}
}

type TranscodeStatusResponse struct {
	NeedsTranscoding      bool   `json:"needs_transcoding"`
	CacheExists           bool   `json:"cache_exists"`
	TranscodingInProgress bool   `json:"transcoding_in_progress"`
	Ready                 bool   `json:"ready"`
	Codec                 string `json:"codec"`
}

type TriggerTranscodeRequest struct {
	Path string `json:"path"`
}

type TriggerTranscodeResponse struct {
	Status string `json:"status"`
}

type CacheStatsResponse struct {
	TotalFiles   int     `json:"total_files"`
	TotalBytes   int64   `json:"total_bytes"`
	LimitBytes   int64   `json:"limit_bytes"`
	UsagePercent float64 `json:"usage_percent"`
	TTLSeconds   float64 `json:"ttl_seconds"`
}

// Status handles GET /transcode-status/{path}.
func (h *ControlHandler) Status(w http.ResponseWriter, r *http.Request) {
	absPath, err := h.resolveParam(r)
	if err != nil {
		h.handleResolveError(w, err)
		return
	}

	status, err := h.control.Status(r.Context(), absPath)
	if err != nil {
		Error(w, http.StatusInternalServerError, "status_failed", "failed to determine transcode status")
		return
	}

	JSON(w, http.StatusOK, TranscodeStatusResponse{
		NeedsTranscoding:      status.NeedsTranscoding,
		CacheExists:           status.CacheExists,
		TranscodingInProgress: status.TranscodingInProgress,
		Ready:                 status.Ready,
		Codec:                 status.Codec,
	})
}

// Trigger handles POST /transcode. It pre-warms the cache, blocking until
// a transcode it starts is done; a source already being transcoded is
// reported as in_progress without waiting.
func (h *ControlHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerTranscodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Path == "" {
		Error(w, http.StatusBadRequest, "invalid_path", "path is required")
		return
	}

	absPath, err := h.resolver.Resolve(req.Path)
	if err != nil {
		h.handleResolveError(w, err)
		return
	}

	outcome, err := h.control.Trigger(r.Context(), absPath)
	if err != nil {
		Error(w, http.StatusInternalServerError, "trigger_failed", "failed to trigger transcoding")
		return
	}

	JSON(w, http.StatusOK, TriggerTranscodeResponse{Status: string(outcome)})
}

// Stats handles GET /cache/stats.
func (h *ControlHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.control.Stats()
	if err != nil {
		Error(w, http.StatusInternalServerError, "stats_failed", "failed to read cache stats")
		return
	}

	JSON(w, http.StatusOK, CacheStatsResponse{
		TotalFiles:   stats.TotalFiles,
		TotalBytes:   stats.TotalBytes,
		LimitBytes:   stats.LimitBytes,
		UsagePercent: stats.UsagePercent,
		TTLSeconds:   stats.TTL.Seconds(),
	})
}

func (h *ControlHandler) resolveParam(r *http.Request) (string, error) {
	return h.resolver.Resolve(chi.URLParam(r, "*"))
}

func (h *ControlHandler) handleResolveError(w http.ResponseWriter, err error) {
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
