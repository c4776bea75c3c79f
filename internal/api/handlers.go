package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/watchstack/watchstack-anomaly/internal/baseline"
	"github.com/watchstack/watchstack-anomaly/internal/history"
	"github.com/watchstack/watchstack-anomaly/internal/models"
)

// AlertReader serves durably persisted alert history, typically Redis-backed.
type AlertReader interface {
	Recent(ctx context.Context, count int64) ([]models.AlertRecord, error)
	Count(ctx context.Context) (int64, error)
}

// CycleStats exposes detection-cycle latency figures for the health endpoint.
type CycleStats interface {
	LatencyP95() time.Duration
}

// Handlers serves the operational read-only API: recent alerts, current
// baselines, and mined per-metric patterns.
type Handlers struct {
	logger  *slog.Logger
	tracker *baseline.Tracker
	store   *history.Store
	alerts  AlertReader
	stats   CycleStats
}

// NewHandlers constructs the HTTP handler set. alerts may be nil when no
// durable store is configured; the in-memory history then serves all reads.
// stats may be nil when no detector is attached.
func NewHandlers(logger *slog.Logger, tracker *baseline.Tracker, store *history.Store, alerts AlertReader, stats CycleStats) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{logger: logger, tracker: tracker, store: store, alerts: alerts, stats: stats}
}

// Router builds the mux router with all operational routes registered.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/alerts", h.handleAlerts).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/baselines", h.handleBaselines).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/patterns", h.handlePatterns).Methods(http.MethodGet)
	r.Path("/metrics").Handler(promhttp.Handler())
	return r
}

func (h *Handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if h.stats != nil {
		body["cycle_p95_ms"] = h.stats.LatencyP95().Milliseconds()
	}
	h.writeJSON(w, body)
}

func (h *Handlers) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	// Prefer the durable store when one is wired; fall back to the in-memory
	// history if it is unreachable.
	if h.alerts != nil {
		records, err := h.alerts.Recent(r.Context(), int64(limit))
		if err == nil {
			total, countErr := h.alerts.Count(r.Context())
			if countErr != nil {
				total = int64(h.store.Total())
			}
			h.writeJSON(w, map[string]any{"alerts": records, "total": total})
			return
		}
		h.logger.Warn("durable alert history unavailable, serving in-memory history", slog.Any("error", err))
	}

	h.writeJSON(w, map[string]any{
		"alerts": h.store.Recent(limit),
		"total":  h.store.Total(),
	})
}

func (h *Handlers) handleBaselines(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, map[string]any{"baselines": h.tracker.Snapshots()})
}

func (h *Handlers) handlePatterns(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, map[string]any{"patterns": h.store.Patterns()})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("failed to write response", slog.Any("error", err))
	}
}
