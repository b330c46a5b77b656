package models

import "time"

// LogRecord is one normalized API request event. Immutable once produced by
// the normalizer.
type LogRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Service    string    `json:"service"`
	Endpoint   string    `json:"endpoint"`
	Method     string    `json:"method"`
	StatusCode int       `json:"status_code"`
	DurationMs float64   `json:"duration_ms"`
	IsError    bool      `json:"is_error"`
}
