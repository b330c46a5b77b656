package models

import "time"

// FeatureWindow aggregates the records of one (window, service, endpoint)
// bucket into the feature vector consumed by the scoring engine.
type FeatureWindow struct {
	WindowStart time.Time `json:"window_start"`
	Service     string    `json:"service"`
	Endpoint    string    `json:"endpoint"`

	Count               int     `json:"count"`
	MeanDuration        float64 `json:"duration_ms_mean"`
	StdDuration         float64 `json:"duration_ms_std"`
	MinDuration         float64 `json:"duration_ms_min"`
	MaxDuration         float64 `json:"duration_ms_max"`
	MedianDuration      float64 `json:"duration_ms_median"`
	ErrorCount          int     `json:"error_count"`
	ErrorRate           float64 `json:"error_rate"`
	DistinctStatusCodes int     `json:"distinct_status_codes"`
	RequestsPerMinute   float64 `json:"requests_per_minute"`
}

// AnomalyResult is a FeatureWindow upgraded with the scoring verdict. Never
// mutated after the scoring engine returns it.
type AnomalyResult struct {
	FeatureWindow

	IsAnomaly    bool      `json:"is_anomaly"`
	AnomalyScore float64   `json:"anomaly_score"`
	DetectedAt   time.Time `json:"detected_at"`
}
