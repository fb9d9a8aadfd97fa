package handler

import (
	"context"
	"net/http"
)

// Pinger is satisfied by *postgres.Client and by a thin adapter around the
// redis client's Ping; kept minimal so health checks stay testable without
// importing either concrete infrastructure package.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connected is satisfied by *queue.Client; it just needs to report whether
// the connection is usable.
type Connected interface {
	IsConnected() bool
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthHandler pings the database, cache, and broker so a container
// orchestrator's readiness probe actually reflects the dependencies this
// service needs, not just that the HTTP listener is up.
type HealthHandler struct {
	db    Pinger
	cache Pinger
	queue Connected
}

func NewHealthHandler(db Pinger, cache Pinger, queue Connected) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, queue: queue}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if err := h.db.Ping(r.Context()); err != nil {
		checks["postgres"] = "down: " + err.Error()
		healthy = false
	} else {
		checks["postgres"] = "up"
	}

	if err := h.cache.Ping(r.Context()); err != nil {
		checks["redis"] = "down: " + err.Error()
		healthy = false
	} else {
		checks["redis"] = "up"
	}

	if h.queue.IsConnected() {
		checks["rabbitmq"] = "up"
	} else {
		checks["rabbitmq"] = "down"
		healthy = false
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	JSON(w, code, HealthResponse{Status: status, Checks: checks})
}

// Health is a dependency-free liveness check: the process is up and serving
// HTTP, nothing more. cmd/api does not register it; /healthz is served by
// HealthHandler.Health.
func Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}
