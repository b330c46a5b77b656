package aggregate

import (
	"math"
	"sort"
	"time"

	"github.com/pulsestack/pulse-monitor/internal/models"
	"github.com/pulsestack/pulse-monitor/internal/utils"
)

// Aggregator buckets normalized records into fixed-size time windows per
// (service, endpoint) and computes the feature vector for each bucket. It is
// stateless: every call starts from the raw records of one check interval, so
// windows never merge across checks.
type Aggregator struct {
	window time.Duration
}

// New constructs an Aggregator with the given window size (1m when zero).
func New(window time.Duration) *Aggregator {
	if window <= 0 {
		window = time.Minute
	}
	return &Aggregator{window: window}
}

// Window returns the configured window size.
func (a *Aggregator) Window() time.Duration { return a.window }

type groupKey struct {
	windowStart int64
	service     string
	endpoint    string
}

type group struct {
	durations   []float64
	errorCount  int
	statusCodes map[int]struct{}
}

// Build computes one FeatureWindow per (window_start, service, endpoint)
// combination present in the input. Combinations with zero records produce no
// window. Output order is deterministic (window start, service, endpoint).
func (a *Aggregator) Build(records []models.LogRecord) []models.FeatureWindow {
	if len(records) == 0 {
		return nil
	}

	groups := make(map[groupKey]*group)
	for _, record := range records {
		key := groupKey{
			windowStart: utils.WindowStart(record.Timestamp, a.window).UnixNano(),
			service:     record.Service,
			endpoint:    record.Endpoint,
		}
		g := groups[key]
		if g == nil {
			g = &group{statusCodes: make(map[int]struct{})}
			groups[key] = g
		}
		g.durations = append(g.durations, record.DurationMs)
		g.statusCodes[record.StatusCode] = struct{}{}
		if record.IsError {
			g.errorCount++
		}
	}

	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].windowStart != keys[j].windowStart {
			return keys[i].windowStart < keys[j].windowStart
		}
		if keys[i].service != keys[j].service {
			return keys[i].service < keys[j].service
		}
		return keys[i].endpoint < keys[j].endpoint
	})

	windowMinutes := a.window.Minutes()
	windows := make([]models.FeatureWindow, 0, len(keys))
	for _, key := range keys {
		g := groups[key]
		count := len(g.durations)

		fw := models.FeatureWindow{
			WindowStart:         time.Unix(0, key.windowStart).UTC(),
			Service:             key.service,
			Endpoint:            key.endpoint,
			Count:               count,
			MeanDuration:        mean(g.durations),
			StdDuration:         sampleStd(g.durations),
			MinDuration:         minOf(g.durations),
			MaxDuration:         maxOf(g.durations),
			ErrorCount:          g.errorCount,
			ErrorRate:           100 * float64(g.errorCount) / float64(count),
			DistinctStatusCodes: len(g.statusCodes),
			RequestsPerMinute:   float64(count) / windowMinutes,
		}
		// A single sample has no defined median rank either way; fall back
		// to the mean, matching the std=0 convention.
		if count >= 2 {
			fw.MedianDuration = median(g.durations)
		} else {
			fw.MedianDuration = fw.MeanDuration
		}
		windows = append(windows, fw)
	}
	return windows
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStd is the n-1 (sample) standard deviation; a single sample yields 0
// rather than NaN.
func sampleStd(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(n-1))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func minOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
