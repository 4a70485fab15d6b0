package api

import (
	"context"
	"net/http"
	"time"

	"github.com/besides-508-potenday/na-T-na-AI/internal/llm"
	"github.com/go-chi/chi/v5"
)

// Pinger checks a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports readiness and backend telemetry.
type HealthHandler struct {
	store           Pinger
	stats           func() llm.Stats
	persistFailures func() int64
	version         string
}

// NewHealthHandler creates a new health handler. stats and persistFailures may be nil.
func NewHealthHandler(store Pinger, stats func() llm.Stats, persistFailures func() int64, version string) *HealthHandler {
	return &HealthHandler{store: store, stats: stats, persistFailures: persistFailures, version: version}
}

// RegisterRoutes registers the health route.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)
}

// Health reports 200 when the store answers and 503 otherwise.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	storeStatus := "ok"
	if err := h.store.Ping(ctx); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		storeStatus = "unavailable"
	}

	body := map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"store":     storeStatus,
	}
	if h.stats != nil {
		body["llm"] = h.stats()
	}
	if h.persistFailures != nil {
		body["persist_failures"] = h.persistFailures()
	}
	JSON(w, code, body)
}
