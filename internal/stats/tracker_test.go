package stats

import (
	"fmt"
	"testing"
	"time"

	"github.com/pulsestack/pulse-monitor/internal/models"
)

func result(service, endpoint string, count, errors int, mean float64, anomaly bool) models.AnomalyResult {
	return models.AnomalyResult{
		FeatureWindow: models.FeatureWindow{
			Service:      service,
			Endpoint:     endpoint,
			Count:        count,
			ErrorCount:   errors,
			MeanDuration: mean,
		},
		IsAnomaly:  anomaly,
		DetectedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestUpdateAccumulatesCounters(t *testing.T) {
	tracker := NewTracker(0)
	tracker.Update([]models.AnomalyResult{result("svc", "/x", 10, 2, 40, false)})
	tracker.Update([]models.AnomalyResult{result("svc", "/x", 30, 3, 60, false)})

	snapshot := tracker.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("entries = %d, want 1", len(snapshot))
	}
	entry := snapshot[0]
	if entry.RequestCount != 40 {
		t.Errorf("request_count = %d, want 40", entry.RequestCount)
	}
	if entry.ErrorCount != 5 {
		t.Errorf("error_count = %d, want 5", entry.ErrorCount)
	}
	// First update seeds the average, the second blends (40+60)/2.
	if entry.AvgDuration != 50 {
		t.Errorf("avg_duration = %v, want 50", entry.AvgDuration)
	}
	if entry.AnomalyCount != 0 || entry.LastAnomalyAt != nil {
		t.Errorf("unexpected anomaly bookkeeping: %+v", entry)
	}
}

func TestUpdateTracksAnomalies(t *testing.T) {
	tracker := NewTracker(0)
	tracker.Update([]models.AnomalyResult{
		result("svc", "/x", 10, 5, 500, true),
		result("svc", "/y", 10, 0, 30, false),
	})

	snapshot := tracker.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("entries = %d, want 2", len(snapshot))
	}
	flagged := snapshot[0]
	if flagged.Endpoint != "/x" {
		t.Fatalf("snapshot order unexpected: %+v", snapshot)
	}
	if flagged.AnomalyCount != 1 {
		t.Errorf("anomaly_count = %d, want 1", flagged.AnomalyCount)
	}
	if flagged.LastAnomalyAt == nil {
		t.Fatal("last_anomaly_at not set")
	}

	recent := tracker.RecentAnomalies(0)
	if len(recent) != 1 || recent[0].Endpoint != "/x" {
		t.Errorf("recent anomalies = %+v, want the /x result only", recent)
	}
}

func TestRecentAnomaliesNewestFirstAndBounded(t *testing.T) {
	tracker := NewTracker(5)
	for i := 0; i < 8; i++ {
		tracker.Update([]models.AnomalyResult{
			result("svc", fmt.Sprintf("/e%d", i), 1, 1, 100, true),
		})
	}

	recent := tracker.RecentAnomalies(0)
	if len(recent) != 5 {
		t.Fatalf("recent = %d, want history limit 5", len(recent))
	}
	if recent[0].Endpoint != "/e7" {
		t.Errorf("recent[0] = %s, want /e7 (newest first)", recent[0].Endpoint)
	}
	if recent[4].Endpoint != "/e3" {
		t.Errorf("recent[4] = %s, want /e3 (oldest kept)", recent[4].Endpoint)
	}

	limited := tracker.RecentAnomalies(2)
	if len(limited) != 2 || limited[0].Endpoint != "/e7" || limited[1].Endpoint != "/e6" {
		t.Errorf("limited = %+v, want newest 2", limited)
	}
}

func TestSnapshotSorted(t *testing.T) {
	tracker := NewTracker(0)
	tracker.Update([]models.AnomalyResult{
		result("svc-b", "/x", 1, 0, 10, false),
		result("svc-a", "/y", 1, 0, 10, false),
		result("svc-a", "/x", 1, 0, 10, false),
	})

	snapshot := tracker.Snapshot()
	want := []models.ServiceKey{
		{Service: "svc-a", Endpoint: "/x"},
		{Service: "svc-a", Endpoint: "/y"},
		{Service: "svc-b", Endpoint: "/x"},
	}
	for i, key := range want {
		if snapshot[i].Service != key.Service || snapshot[i].Endpoint != key.Endpoint {
			t.Errorf("snapshot[%d] = (%s, %s), want (%s, %s)",
				i, snapshot[i].Service, snapshot[i].Endpoint, key.Service, key.Endpoint)
		}
	}
}
