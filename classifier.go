/*
File: classifier.go
Version: 1.0.0
Description: Statistical classifier adapters.
             The engine only needs "41 ordered columns in, phishing probability out".
             Local adapters: a fixed probability and a standard-scaled logistic model loaded
             from a YAML or JSON file. The remote adapter lives in classifier_remote.go.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

var errFeatureLength = errors.New("feature vector length mismatch")

// Classifier returns the phishing probability for an ordered feature vector.
type Classifier interface {
	PredictProbability(ctx context.Context, features []float64) (float64, error)
	Name() string
}

// checkFeatureLength enforces the column contract shared by every adapter.
func checkFeatureLength(features []float64) error {
	if len(features) != featureCount {
		return fmt.Errorf("%w: got %d columns, want %d", errFeatureLength, len(features), featureCount)
	}
	return nil
}

// checkProbability rejects values a classifier must never return.
func checkProbability(p float64) (float64, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("classifier returned out-of-range probability %v", p)
	}
	return p, nil
}

// --- Constant ---

// ConstantClassifier always answers the same probability.
type ConstantClassifier struct {
	P float64
}

func NewConstantClassifier(p float64) (*ConstantClassifier, error) {
	if _, err := checkProbability(p); err != nil {
		return nil, err
	}
	return &ConstantClassifier{P: p}, nil
}

func (c *ConstantClassifier) PredictProbability(ctx context.Context, features []float64) (float64, error) {
	if err := checkFeatureLength(features); err != nil {
		return 0, err
	}
	return checkProbability(c.P)
}

func (c *ConstantClassifier) Name() string {
	return fmt.Sprintf("constant(%.2f)", c.P)
}

// --- Logistic ---

// LogisticModel is the on-disk model format.
type LogisticModel struct {
	Columns []string `yaml:"columns" json:"columns"`
	Scaler  struct {
		Mean  []float64 `yaml:"mean" json:"mean"`
		Scale []float64 `yaml:"scale" json:"scale"`
	} `yaml:"scaler" json:"scaler"`
	Coefficients []float64 `yaml:"coefficients" json:"coefficients"`
	Intercept    float64   `yaml:"intercept" json:"intercept"`
}

// LogisticClassifier standard-scales each column and applies the logistic function.
type LogisticClassifier struct {
	model LogisticModel
	path  string
}

// LoadLogisticClassifier reads a model file. YAML and JSON are both accepted.
func LoadLogisticClassifier(path string) (*LogisticClassifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var m LogisticModel
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model file %s: %w", path, err)
	}

	c, err := NewLogisticClassifier(m)
	if err != nil {
		return nil, fmt.Errorf("model file %s: %w", path, err)
	}
	c.path = path
	LogInfo("[CLASSIFIER] Loaded logistic model from %s (%d columns)", path, len(m.Columns))
	return c, nil
}

// NewLogisticClassifier validates m against FeatureNames.
func NewLogisticClassifier(m LogisticModel) (*LogisticClassifier, error) {
	if len(m.Columns) != featureCount {
		return nil, fmt.Errorf("model has %d columns, want %d", len(m.Columns), featureCount)
	}
	for i, name := range m.Columns {
		if name != FeatureNames[i] {
			return nil, fmt.Errorf("model column %d is %q, want %q", i, name, FeatureNames[i])
		}
	}
	if len(m.Coefficients) != featureCount {
		return nil, fmt.Errorf("model has %d coefficients, want %d", len(m.Coefficients), featureCount)
	}
	if len(m.Scaler.Mean) == 0 {
		m.Scaler.Mean = make([]float64, featureCount)
	}
	if len(m.Scaler.Scale) == 0 {
		m.Scaler.Scale = make([]float64, featureCount)
		for i := range m.Scaler.Scale {
			m.Scaler.Scale[i] = 1
		}
	}
	if len(m.Scaler.Mean) != featureCount || len(m.Scaler.Scale) != featureCount {
		return nil, fmt.Errorf("scaler must have %d means and scales", featureCount)
	}
	return &LogisticClassifier{model: m}, nil
}

func (c *LogisticClassifier) PredictProbability(ctx context.Context, features []float64) (float64, error) {
	if err := checkFeatureLength(features); err != nil {
		return 0, err
	}

	z := c.model.Intercept
	for i, x := range features {
		scale := c.model.Scaler.Scale[i]
		if scale == 0 {
			// Constant column at training time
			scale = 1
		}
		z += c.model.Coefficients[i] * (x - c.model.Scaler.Mean[i]) / scale
	}
	return checkProbability(1 / (1 + math.Exp(-z)))
}

func (c *LogisticClassifier) Name() string {
	if c.path != "" {
		return "logistic(" + c.path + ")"
	}
	return "logistic"
}
