package utils

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayouts covers the formats the instrumented services emit. The
// OpenTelemetry exporters write RFC3339 with nanoseconds, the legacy demo
// services write naive ISO 8601 without a zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a source timestamp, trying each known layout.
// Zone-less layouts are interpreted as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	for _, layout := range timestampLayouts {
		if strings.Contains(layout, "Z07") {
			if t, err := time.Parse(layout, value); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time value %q", value)
}

// WindowStart truncates a timestamp to the containing fixed-size window.
func WindowStart(t time.Time, window time.Duration) time.Time {
	if window <= 0 {
		window = time.Minute
	}
	return t.Truncate(window)
}

// DurationMinutes converts a pair of timestamps into minute duration.
func DurationMinutes(start, end time.Time) float64 {
	if end.Before(start) {
		start, end = end, start
	}
	return end.Sub(start).Minutes()
}
