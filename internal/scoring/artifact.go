package scoring

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact file names inside the model directory. The training job exports
// the fitted ensemble, the scaler parameters, the ordered feature list, and
// a metadata document as four JSON files.
const (
	ModelFile    = "service_isolation_forest.json"
	ScalerFile   = "service_isolation_forest_scaler.json"
	FeaturesFile = "service_isolation_forest_features.json"
	MetadataFile = "service_model_metadata.json"
)

// Scaler holds standardization parameters: z = (x - mean) / scale, applied
// positionally over the ordered feature list.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform standardizes a raw feature vector in place and returns it.
func (s *Scaler) Transform(vector []float64) []float64 {
	for i := range vector {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		vector[i] = (vector[i] - s.Mean[i]) / scale
	}
	return vector
}

// Metadata describes the training run that produced the bundle.
type Metadata struct {
	TrainingTime      string   `json:"training_time"`
	TrainingRecords   int      `json:"training_records"`
	FeatureRecords    int      `json:"feature_records"`
	Features          []string `json:"features"`
	AnomaliesDetected int      `json:"anomalies_detected"`
	Services          []string `json:"services,omitempty"`
	Endpoints         []string `json:"endpoints,omitempty"`
}

// Bundle is the complete model artifact: forest, scaler, ordered feature
// names, and training metadata. Immutable after Load.
type Bundle struct {
	Forest   *Forest
	Scaler   *Scaler
	Features []string
	Metadata Metadata
}

// Load reads the four artifact files from dir. Any missing or malformed file
// is an error; callers treat that as fatal at startup since the monitor
// cannot score without a model.
func Load(dir string) (*Bundle, error) {
	var forest Forest
	if err := readJSON(filepath.Join(dir, ModelFile), &forest); err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	bundle := &Bundle{Forest: &forest}

	if err := readJSON(filepath.Join(dir, ScalerFile), &bundle.Scaler); err != nil {
		return nil, fmt.Errorf("load scaler: %w", err)
	}
	if err := readJSON(filepath.Join(dir, FeaturesFile), &bundle.Features); err != nil {
		return nil, fmt.Errorf("load feature list: %w", err)
	}
	if err := readJSON(filepath.Join(dir, MetadataFile), &bundle.Metadata); err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}

	if err := bundle.validate(); err != nil {
		return nil, fmt.Errorf("validate model bundle: %w", err)
	}
	return bundle, nil
}

func (b *Bundle) validate() error {
	n := len(b.Features)
	if n == 0 {
		return fmt.Errorf("feature list is empty")
	}
	if b.Scaler == nil {
		return fmt.Errorf("scaler missing")
	}
	if len(b.Scaler.Mean) != n || len(b.Scaler.Scale) != n {
		return fmt.Errorf("scaler dimensions %d/%d do not match %d features",
			len(b.Scaler.Mean), len(b.Scaler.Scale), n)
	}
	if b.Forest == nil || len(b.Forest.Trees) == 0 {
		return fmt.Errorf("forest has no trees")
	}
	return b.Forest.validate(n)
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
