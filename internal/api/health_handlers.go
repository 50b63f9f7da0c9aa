package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/quaywood/mapmeasure/internal/middleware"
	"github.com/quaywood/mapmeasure/internal/session"
)

// HealthHandlers provides health and readiness check endpoints for
// Kubernetes probes.
type HealthHandlers struct {
	store *session.Store
}

// NewHealthHandlers creates a health check handler over the session store.
func NewHealthHandlers(store *session.Store) *HealthHandlers {
	return &HealthHandlers{store: store}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status         string            `json:"status"`
	Checks         map[string]string `json:"checks"`
	ActiveSessions int               `json:"active_sessions"`
	Timestamp      string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe). If the process can
// respond, it is alive.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	response := HealthResponse{
		Status:         "healthy",
		Checks:         map[string]string{"runtime": "ok"},
		ActiveSessions: h.store.Count(),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode health response", "error", err)
	}
}

// Ready handles GET /ready (readiness probe). Sessions live entirely in
// memory so readiness has no external dependencies to wait on; the
// session store being reachable is the whole check.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	response := HealthResponse{
		Status: "healthy",
		Checks: map[string]string{
			"sessions": "ok",
			"metrics":  "ok",
		},
		ActiveSessions: h.store.Count(),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode readiness response", "error", err)
	}
}
