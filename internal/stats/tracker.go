package stats

import (
	"sort"
	"sync"

	"github.com/pulsestack/pulse-monitor/internal/models"
)

// DefaultHistoryLimit bounds the in-memory recent-anomaly buffer. Long-term
// anomaly history belongs to the alert sink, not this process.
const DefaultHistoryLimit = 100

// Tracker maintains rolling per-(service, endpoint) counters across checks.
// Entries accumulate for the process lifetime; cardinality is bounded by the
// number of distinct service/endpoint pairs, not by event volume. The mutex
// only guards against API reads racing the loop's update; the loop itself is
// the sole writer.
type Tracker struct {
	mu           sync.RWMutex
	entries      map[models.ServiceKey]*models.ServiceStats
	recent       []models.AnomalyResult
	historyLimit int
}

// NewTracker constructs a Tracker. historyLimit <= 0 selects the default cap.
func NewTracker(historyLimit int) *Tracker {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Tracker{
		entries:      make(map[models.ServiceKey]*models.ServiceStats),
		historyLimit: historyLimit,
	}
}

// Update folds one check's results into the rolling counters. The average
// duration is blended as (old+new)/2, a deliberately lightweight smoothing
// rather than a weighted running mean.
func (t *Tracker) Update(results []models.AnomalyResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, result := range results {
		key := models.ServiceKey{Service: result.Service, Endpoint: result.Endpoint}
		entry := t.entries[key]
		if entry == nil {
			entry = &models.ServiceStats{Service: result.Service, Endpoint: result.Endpoint}
			t.entries[key] = entry
		}

		entry.RequestCount += int64(result.Count)
		entry.ErrorCount += int64(result.ErrorCount)
		if entry.AvgDuration == 0 {
			entry.AvgDuration = result.MeanDuration
		} else {
			entry.AvgDuration = (entry.AvgDuration + result.MeanDuration) / 2
		}

		if result.IsAnomaly {
			entry.AnomalyCount++
			at := result.DetectedAt
			entry.LastAnomalyAt = &at
			t.remember(result)
		}
	}
}

func (t *Tracker) remember(result models.AnomalyResult) {
	t.recent = append(t.recent, result)
	if len(t.recent) > t.historyLimit {
		t.recent = t.recent[len(t.recent)-t.historyLimit:]
	}
}

// Snapshot returns a copy of all entries, sorted by service then endpoint.
func (t *Tracker) Snapshot() []models.ServiceStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.ServiceStats, 0, len(t.entries))
	for _, entry := range t.entries {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Service != out[j].Service {
			return out[i].Service < out[j].Service
		}
		return out[i].Endpoint < out[j].Endpoint
	})
	return out
}

// RecentAnomalies returns up to limit of the most recent anomalies, newest
// first. limit <= 0 returns the whole buffer.
func (t *Tracker) RecentAnomalies(limit int) []models.AnomalyResult {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := len(t.recent)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.AnomalyResult, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, t.recent[i])
	}
	return out
}
