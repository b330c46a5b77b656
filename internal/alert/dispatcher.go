package alert

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulsestack/pulse-monitor/internal/cache"
	"github.com/pulsestack/pulse-monitor/internal/metrics"
	"github.com/pulsestack/pulse-monitor/internal/models"
	"github.com/pulsestack/pulse-monitor/internal/repo"
)

// DefaultHighSeverityBelow is the fixed score threshold separating high from
// medium severity.
const DefaultHighSeverityBelow = -0.15

// Sink persists alert documents. Writes must be idempotent per alert ID.
type Sink interface {
	WriteAlert(ctx context.Context, alert models.Alert) error
}

// Outcome summarises one dispatch batch.
type Outcome struct {
	Sent       int
	Failed     int
	Suppressed int
}

// Dispatcher converts anomalous results into alert documents and writes them
// to the sink. Individual write failures are counted and logged without
// aborting the batch; only an unreachable sink fails the dispatch as a whole,
// in which case the unadvanced watermark recomputes and redispatches the same
// windows next check. Alert IDs are deterministic per (service, endpoint,
// window), so those retries overwrite rather than duplicate.
type Dispatcher struct {
	sink      Sink
	dedupe    cache.Provider
	highBelow float64
	dedupeTTL time.Duration
	logger    *slog.Logger
}

// NewDispatcher constructs a Dispatcher. dedupe may be nil to rely solely on
// sink-side idempotency.
func NewDispatcher(sink Sink, dedupe cache.Provider, highBelow float64, dedupeTTL time.Duration, logger *slog.Logger) *Dispatcher {
	if dedupe == nil {
		dedupe = cache.NoopProvider{}
	}
	if highBelow == 0 {
		highBelow = DefaultHighSeverityBelow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sink:      sink,
		dedupe:    dedupe,
		highBelow: highBelow,
		dedupeTTL: dedupeTTL,
		logger:    logger,
	}
}

// Dispatch writes one alert per anomalous result. Non-anomalous results are
// ignored; an empty batch is a no-op success.
func (d *Dispatcher) Dispatch(ctx context.Context, results []models.AnomalyResult) (Outcome, error) {
	outcome := Outcome{}

	for _, result := range results {
		if !result.IsAnomaly {
			continue
		}

		a := d.buildAlert(result)

		claimed, err := d.dedupe.SetNX(ctx, "alert:"+a.ID, []byte("1"), d.dedupeTTL)
		if err != nil {
			// Dedupe is best effort; the sink write is idempotent anyway.
			d.logger.Debug("alert dedupe unavailable", slog.Any("error", err))
		} else if !claimed {
			outcome.Suppressed++
			metrics.CountAlert(metrics.AlertSuppressed)
			continue
		}

		if err := d.sink.WriteAlert(ctx, a); err != nil {
			if errors.Is(err, repo.ErrStoreUnavailable) {
				// Release the claim so the retry after the failed check is
				// not suppressed locally.
				_ = d.dedupe.Del(ctx, "alert:"+a.ID)
				return outcome, fmt.Errorf("alert sink unreachable: %w", err)
			}
			outcome.Failed++
			metrics.CountAlert(metrics.AlertFailed)
			d.logger.Error("alert write rejected",
				slog.String("service", a.Service),
				slog.String("endpoint", a.Endpoint),
				slog.Any("error", err),
			)
			continue
		}

		outcome.Sent++
		metrics.CountAlert(metrics.AlertSent)
	}

	return outcome, nil
}

func (d *Dispatcher) buildAlert(result models.AnomalyResult) models.Alert {
	severity := models.SeverityMedium
	if result.AnomalyScore < d.highBelow {
		severity = models.SeverityHigh
	}
	return models.Alert{
		ID:             alertID(result.Service, result.Endpoint, result.WindowStart),
		Service:        result.Service,
		Endpoint:       result.Endpoint,
		DurationMsMean: result.MeanDuration,
		ErrorRate:      result.ErrorRate,
		AnomalyScore:   result.AnomalyScore,
		Severity:       severity,
		DetectionTime:  result.DetectedAt,
		AlertType:      models.AlertTypeAPIAnomaly,
	}
}

// alertID derives a stable document ID from the anomaly identity, making sink
// writes idempotent across check retries.
func alertID(service, endpoint string, windowStart time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", service, endpoint, windowStart.UnixNano())))
	return hex.EncodeToString(sum[:16])
}
