package models

import "time"

// Severity is the coarse alert priority derived from the anomaly score.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AlertTypeAPIAnomaly is the fixed alert_type written to the sink.
const AlertTypeAPIAnomaly = "api_anomaly"

// Alert is one anomaly document destined for the alert sink. ID is derived
// from (service, endpoint, window_start) so retried dispatches overwrite the
// same sink document instead of duplicating it.
type Alert struct {
	ID             string    `json:"-"`
	Service        string    `json:"service"`
	Endpoint       string    `json:"endpoint"`
	DurationMsMean float64   `json:"duration_ms_mean"`
	ErrorRate      float64   `json:"error_rate"`
	AnomalyScore   float64   `json:"anomaly_score"`
	Severity       Severity  `json:"alert_severity"`
	DetectionTime  time.Time `json:"detection_time"`
	AlertType      string    `json:"alert_type"`
}
