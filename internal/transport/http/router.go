// Package httpapi is the operational HTTP surface: health, stats, and the
// Prometheus scrape endpoint. Registry business traffic never flows here.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stats is the live-counters snapshot served at /stats.
type Stats struct {
	ActiveSessions int `json:"active_sessions"`
	TrackedSources int `json:"tracked_sources"`
}

// StatsFunc supplies a Stats snapshot on demand.
type StatsFunc func() Stats

// Handler is the thin HTTP layer. It delegates to the registry's live
// components without embedding any business logic.
type Handler struct {
	stats  StatsFunc
	logger *slog.Logger
}

func NewHandler(stats StatsFunc, logger *slog.Logger) *Handler {
	return &Handler{stats: stats, logger: logger}
}

// NewRouter wires the operational endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", h.handleHealth)
	r.Get("/stats", h.handleStats)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.stats())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response encoding failed", "error", err)
	}
}
