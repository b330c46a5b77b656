package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"

	"github.com/pulsestack/pulse-monitor/internal/models"
	"github.com/pulsestack/pulse-monitor/internal/scoring"
)

// Monitor is the loop controller surface the handlers expose.
type Monitor interface {
	State() models.State
	Watermark() time.Time
	LastSummary() *models.CheckSummary
	ModelMetadata() scoring.Metadata
	RunCheck(ctx context.Context) (models.CheckSummary, error)
}

// StatsSource provides the rolling statistics views.
type StatsSource interface {
	Snapshot() []models.ServiceStats
	RecentAnomalies(limit int) []models.AnomalyResult
}

// Handlers implements the control-surface endpoints.
type Handlers struct {
	monitor Monitor
	stats   StatsSource
	logger  *slog.Logger
}

// NewHandlers constructs the handler set.
func NewHandlers(monitor Monitor, stats StatsSource, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{monitor: monitor, stats: stats, logger: logger}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

type statusResponse struct {
	State       models.State         `json:"state"`
	Watermark   time.Time            `json:"watermark"`
	Model       scoring.Metadata     `json:"model"`
	LastCheck   *models.CheckSummary `json:"last_check,omitempty"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// Status reports the loop state, watermark, and model metadata.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, statusResponse{
		State:       h.monitor.State(),
		Watermark:   h.monitor.Watermark(),
		Model:       h.monitor.ModelMetadata(),
		LastCheck:   h.monitor.LastSummary(),
		GeneratedAt: time.Now().UTC(),
	})
}

// Stats returns the rolling per-endpoint statistics.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.stats.Snapshot())
}

// Anomalies returns the bounded recent-anomaly buffer, newest first.
func (h *Handlers) Anomalies(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}
	render.JSON(w, r, h.stats.RecentAnomalies(limit))
}

// RunCheck triggers a single check immediately; the testing surface for the
// loop. A check failure is reported with 502 since the cause is an upstream
// dependency, not the request.
func (h *Handlers) RunCheck(w http.ResponseWriter, r *http.Request) {
	summary, err := h.monitor.RunCheck(r.Context())
	if err != nil {
		h.logger.Error("manual check failed", slog.Any("error", err))
		w.WriteHeader(http.StatusBadGateway)
		render.JSON(w, r, map[string]any{"error": err.Error(), "summary": summary})
		return
	}
	render.JSON(w, r, summary)
}
