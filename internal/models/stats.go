package models

import "time"

// ServiceKey identifies one monitored (service, endpoint) pair.
type ServiceKey struct {
	Service  string `json:"service"`
	Endpoint string `json:"endpoint"`
}

// ServiceStats keeps rolling per-endpoint counters for the process lifetime.
// AvgDuration is an exponentially blended mean, not a weighted running mean.
type ServiceStats struct {
	Service       string     `json:"service"`
	Endpoint      string     `json:"endpoint"`
	RequestCount  int64      `json:"request_count"`
	AvgDuration   float64    `json:"avg_duration"`
	ErrorCount    int64      `json:"error_count"`
	AnomalyCount  int64      `json:"anomaly_count"`
	LastAnomalyAt *time.Time `json:"last_anomaly_at,omitempty"`
}
