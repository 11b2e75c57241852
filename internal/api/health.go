package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Pinger is implemented by stores that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service and store health.
type HealthHandler struct {
	store    Pinger
	backend  string
	provider string
	started  time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(store Pinger, backend, provider string) *HealthHandler {
	return &HealthHandler{store: store, backend: backend, provider: provider, started: time.Now()}
}

// RegisterHealth mounts GET /health.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// Health pings the store and returns 503 when it is unreachable.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := map[string]any{
		"status":          "ok",
		"session_backend": h.backend,
		"llm_provider":    h.provider,
		"uptime_seconds":  int64(time.Since(h.started).Seconds()),
	}
	if err := h.store.Ping(ctx); err != nil {
		resp["status"] = "degraded"
		resp["store_error"] = err.Error()
		JSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	JSON(w, http.StatusOK, resp)
}
