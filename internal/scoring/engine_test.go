package scoring

import (
	"testing"
	"time"

	"github.com/pulsestack/pulse-monitor/internal/models"
)

// testBundle models a detector over mean duration and error rate: a window
// only isolates quickly when both features sit beyond their splits.
func testBundle() *Bundle {
	meanTree := splitTree(150, 99, 1)
	errorTree := Tree{
		Feature:   []int{1, -1, -1},
		Threshold: []float64{10, 0, 0},
		Left:      []int{1, -1, -1},
		Right:     []int{2, -1, -1},
		Size:      []int{100, 99, 1},
	}
	return &Bundle{
		Forest: &Forest{
			NEstimators: 2,
			MaxSamples:  100,
			Offset:      -0.7,
			Trees:       []Tree{meanTree, errorTree},
		},
		Scaler:   &Scaler{Mean: []float64{0, 0}, Scale: []float64{1, 1}},
		Features: []string{"duration_ms_mean", "error_rate"},
		Metadata: Metadata{TrainingRecords: 100},
	}
}

func TestScoreFlagsAnomalousWindow(t *testing.T) {
	engine := NewEngine(testBundle(), nil)
	detectedAt := time.Date(2025, 6, 1, 10, 20, 0, 0, time.UTC)

	results, warnings := engine.Score([]models.FeatureWindow{{
		Service:      "svc",
		Endpoint:     "/x",
		Count:        20,
		MeanDuration: 600,
		ErrorRate:    50,
	}}, detectedAt)

	if warnings != 0 {
		t.Fatalf("warnings = %d, want 0", warnings)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	r := results[0]
	if !r.IsAnomaly {
		t.Error("degraded window should be flagged")
	}
	if r.AnomalyScore >= 0 {
		t.Errorf("score = %v, want negative", r.AnomalyScore)
	}
	if !r.DetectedAt.Equal(detectedAt) {
		t.Errorf("detected_at = %v, want %v", r.DetectedAt, detectedAt)
	}
}

func TestScoreBoundaryErrorRateNotFlagged(t *testing.T) {
	engine := NewEngine(testBundle(), nil)

	// 18 requests at 30ms plus 2 server errors at 600ms: error_rate lands
	// exactly on the split, which is not beyond it.
	results, _ := engine.Score([]models.FeatureWindow{{
		Service:      "svc",
		Endpoint:     "/x",
		Count:        20,
		MeanDuration: 87,
		ErrorRate:    10,
	}}, time.Now())

	if results[0].IsAnomaly {
		t.Errorf("boundary window flagged with score %v", results[0].AnomalyScore)
	}
}

func TestScoreHealthyWindowNotFlagged(t *testing.T) {
	engine := NewEngine(testBundle(), nil)
	results, _ := engine.Score([]models.FeatureWindow{{
		Service:      "svc",
		Endpoint:     "/x",
		Count:        50,
		MeanDuration: 35,
		ErrorRate:    0,
	}}, time.Now())
	if results[0].IsAnomaly {
		t.Errorf("healthy window flagged with score %v", results[0].AnomalyScore)
	}
}

func TestScoreNoUsableFeaturesPassesThrough(t *testing.T) {
	bundle := testBundle()
	bundle.Features = []string{"cpu_saturation"}
	bundle.Scaler = &Scaler{Mean: []float64{0}, Scale: []float64{1}}
	engine := NewEngine(bundle, nil)

	results, warnings := engine.Score([]models.FeatureWindow{{
		Service:      "svc",
		Endpoint:     "/x",
		Count:        5,
		MeanDuration: 9999,
		ErrorRate:    100,
	}}, time.Now())

	if warnings != 1 {
		t.Fatalf("warnings = %d, want 1", warnings)
	}
	if results[0].IsAnomaly {
		t.Error("unscored window must not be flagged")
	}
	if results[0].AnomalyScore != 0 {
		t.Errorf("unscored score = %v, want 0", results[0].AnomalyScore)
	}
}

func TestFeatureValueMapping(t *testing.T) {
	w := models.FeatureWindow{
		Count:             20,
		MeanDuration:      87,
		StdDuration:       12,
		MinDuration:       30,
		MaxDuration:       600,
		MedianDuration:    30,
		ErrorCount:        2,
		ErrorRate:         10,
		RequestsPerMinute: 20,
	}
	cases := []struct {
		name string
		want float64
	}{
		{"duration_ms_count", 20},
		{"duration_ms_mean", 87},
		{"duration_ms_std", 12},
		{"duration_ms_min", 30},
		{"duration_ms_max", 600},
		{"duration_ms_median", 30},
		{"is_error_sum", 2},
		{"is_error_mean", 0.1},
		{"error_rate", 10},
		{"requests_per_minute", 20},
	}
	for _, tc := range cases {
		got, ok := featureValue(w, tc.name)
		if !ok {
			t.Errorf("%s: not usable", tc.name)
			continue
		}
		if got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, got, tc.want)
		}
	}

	if _, ok := featureValue(w, "unknown_feature"); ok {
		t.Error("unknown feature reported usable")
	}
}

func TestFeatureValueZeroMedianPreserved(t *testing.T) {
	// Records with no duration default to 0, so a window can have a genuine
	// zero median alongside a non-zero mean ({0, 0, 300} gives median 0,
	// mean 100). The projection must carry the real median, not the mean.
	w := models.FeatureWindow{
		Count:          3,
		MeanDuration:   100,
		MedianDuration: 0,
		MinDuration:    0,
		MaxDuration:    300,
	}
	got, ok := featureValue(w, "duration_ms_median")
	if !ok || got != 0 {
		t.Errorf("projected duration_ms_median = %v (usable %v), want the window's real median 0", got, ok)
	}
	if got, ok := featureValue(w, "duration_ms_min"); !ok || got != 0 {
		t.Errorf("projected duration_ms_min = %v (usable %v), want 0", got, ok)
	}
}
