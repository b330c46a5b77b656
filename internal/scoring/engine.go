package scoring

import (
	"log/slog"
	"time"

	"github.com/pulsestack/pulse-monitor/internal/models"
)

// Engine scores feature windows against a loaded model bundle. The bundle is
// immutable after startup, so the engine is safe for unsynchronised reads.
type Engine struct {
	bundle *Bundle
	logger *slog.Logger
}

// NewEngine constructs a scoring engine around a loaded bundle.
func NewEngine(bundle *Bundle, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{bundle: bundle, logger: logger}
}

// Metadata exposes the training metadata of the loaded bundle.
func (e *Engine) Metadata() Metadata {
	return e.bundle.Metadata
}

// Score upgrades each window to an AnomalyResult. A window with no usable
// model features passes through unscored with a warning; one malformed
// endpoint must not block scoring of the rest. The returned warning count
// feeds the check summary.
func (e *Engine) Score(windows []models.FeatureWindow, detectedAt time.Time) ([]models.AnomalyResult, int) {
	results := make([]models.AnomalyResult, 0, len(windows))
	warnings := 0

	for _, window := range windows {
		result := models.AnomalyResult{FeatureWindow: window, DetectedAt: detectedAt}

		vector, usable := e.project(window)
		if usable == 0 {
			warnings++
			e.logger.Warn("no matching features for window, leaving unscored",
				slog.String("service", window.Service),
				slog.String("endpoint", window.Endpoint),
			)
			results = append(results, result)
			continue
		}

		decision := e.bundle.Forest.Decision(e.bundle.Scaler.Transform(vector))
		result.AnomalyScore = decision
		result.IsAnomaly = decision < 0
		results = append(results, result)
	}

	return results, warnings
}

// project builds the raw feature vector in the model's feature order. The
// aggregator defines every window statistic, including the degenerate cases
// (median falls back to mean there, single samples carry std 0), so each
// known feature name maps straight onto its window value; unknown names fill
// with zero and do not count as usable.
func (e *Engine) project(w models.FeatureWindow) ([]float64, int) {
	vector := make([]float64, len(e.bundle.Features))
	usable := 0

	for i, name := range e.bundle.Features {
		value, ok := featureValue(w, name)
		if ok {
			usable++
		}
		vector[i] = value
	}
	return vector, usable
}

func featureValue(w models.FeatureWindow, name string) (float64, bool) {
	switch name {
	case "duration_ms_count":
		return float64(w.Count), true
	case "duration_ms_mean":
		return w.MeanDuration, true
	case "duration_ms_std":
		return w.StdDuration, true
	case "duration_ms_min":
		return w.MinDuration, true
	case "duration_ms_max":
		return w.MaxDuration, true
	case "duration_ms_median":
		return w.MedianDuration, true
	case "is_error_sum":
		return float64(w.ErrorCount), true
	case "is_error_mean":
		return w.ErrorRate / 100, true
	case "error_rate":
		return w.ErrorRate, true
	case "requests_per_minute":
		return w.RequestsPerMinute, true
	default:
		return 0, false
	}
}
