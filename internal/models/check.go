package models

import "time"

// State enumerates the loop controller phases.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateAggregating State = "aggregating"
	StateScoring     State = "scoring"
	StateReporting   State = "reporting"
	StateFailed      State = "failed"
)

// CheckSummary describes the outcome of one monitoring check.
type CheckSummary struct {
	CheckID         string        `json:"check_id"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	IntervalStart   time.Time     `json:"interval_start"`
	IntervalEnd     time.Time     `json:"interval_end"`
	RecordsFetched  int           `json:"records_fetched"`
	RecordsRejected int           `json:"records_rejected"`
	Windows         int           `json:"windows"`
	Anomalies       int           `json:"anomalies"`
	AlertsSent      int           `json:"alerts_sent"`
	AlertsFailed    int           `json:"alerts_failed"`
	ScoringWarnings int           `json:"scoring_warnings"`
}
