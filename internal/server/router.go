// Package server exposes the read-only boundary of the pipeline: the latest
// snapshot, scored anomalies, persisted threats, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/strixlabs/strix-anomaly/internal/cache"
	"github.com/strixlabs/strix-anomaly/internal/logging"
	"github.com/strixlabs/strix-anomaly/internal/repository"
)

const defaultThreatLimit = 100

// Handler serves the read API.
type Handler struct {
	store  *cache.Store
	repo   repository.Repository
	logger *slog.Logger
}

// NewHandler creates the read-API handler. repo may be nil when persistence
// is disabled; the threats endpoint then serves 404.
func NewHandler(store *cache.Store, repo repository.Repository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, repo: repo, logger: logger}
}

// NewRouter wires all routes. verifier may be nil to disable auth on the API
// routes; health and metrics are always open.
func NewRouter(h *Handler, verifier *TokenVerifier) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", h.HealthCheck)
	mux.Handle("/metrics", promhttp.Handler())

	api := http.NewServeMux()
	api.HandleFunc("/api/v1/snapshot", h.GetSnapshot)
	api.HandleFunc("/api/v1/anomalies", h.ListAnomalies)
	api.HandleFunc("/api/v1/threats", h.ListThreats)
	mux.Handle("/api/v1/", verifier.Middleware(api))

	return mux
}

// HealthCheck reports service liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetSnapshot returns the complete latest snapshot.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.store.Latest())
}

// ListAnomalies returns the scored results of the latest run. With
// ?flagged=true only anomalous entries are returned.
func (h *Handler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := h.store.Latest()
	results := snap.Results
	if r.URL.Query().Get("flagged") == "true" {
		flagged := results[:0:0]
		for _, res := range results {
			if res.IsAnomaly {
				flagged = append(flagged, res)
			}
		}
		results = flagged
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results":    results,
		"updated_at": snap.UpdatedAt,
	})
}

// ListThreats returns persisted threat records, newest first.
func (h *Handler) ListThreats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.repo == nil {
		http.Error(w, "threat persistence disabled", http.StatusNotFound)
		return
	}

	limit := defaultThreatLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	threats, err := h.repo.ListThreats(ctx, limit)
	if err != nil {
		h.logger.Error("list threats failed", logging.Err(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"threats": threats})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
