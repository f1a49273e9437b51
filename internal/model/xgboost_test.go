package model

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// Two stumps on feature 0 and a depth-2 tree on feature 1.
const classifierJSON = `{
  "learner": {
    "feature_names": ["elo_diff", "pts_avg_5"],
    "gradient_booster": {
      "name": "gbtree",
      "model": {
        "trees": [
          {"left_children": [1, -1, -1], "right_children": [2, -1, -1],
           "split_indices": [0, 0, 0], "split_conditions": [0.0, -0.4, 0.4],
           "default_left": [1, 0, 0]},
          {"left_children": [1, -1, 3, -1, -1], "right_children": [2, -1, 4, -1, -1],
           "split_indices": [1, 0, 1, 0, 0], "split_conditions": [100.0, -0.1, 110.0, 0.05, 0.2],
           "default_left": [false, false, false, false, false]}
        ]
      }
    },
    "learner_model_param": {"base_score": "[5E-1]", "num_feature": "2"},
    "objective": {"name": "binary:logistic"}
  }
}`

const regressorJSON = `{
  "learner": {
    "feature_names": ["pts_avg_5"],
    "gradient_booster": {"name": "gbtree", "model": {"trees": [
      {"left_children": [1, -1, -1], "right_children": [2, -1, -1],
       "split_indices": [0, 0, 0], "split_conditions": [20.0, -2.0, 3.0],
       "default_left": [0, 0, 0]}
    ]}},
    "learner_model_param": {"base_score": "1.1E2"},
    "objective": {"name": "reg:squarederror"}
  }
}`

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func TestClassifier(t *testing.T) {
	b, err := Parse([]byte(classifierJSON))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if names := b.FeatureNames(); len(names) != 2 || names[0] != "elo_diff" {
		t.Errorf("FeatureNames = %v", names)
	}

	tests := []struct {
		name string
		x    []float64
		want float64
	}{
		{"left left", []float64{-5, 90}, sigmoid(-0.4 - 0.1)},
		{"right right right", []float64{5, 120}, sigmoid(0.4 + 0.2)},
		{"right middle-left", []float64{5, 105}, sigmoid(0.4 + 0.05)},
		{"nan default left then right", []float64{math.NaN(), math.NaN()}, sigmoid(-0.4 + 0.2)},
		{"split is strict less-than", []float64{0, 100}, sigmoid(0.4 + 0.05)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.PredictProba(tt.x)
			if err != nil {
				t.Fatalf("PredictProba failed: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("PredictProba(%v) = %v, want %v", tt.x, got, tt.want)
			}
		})
	}
}

func TestRegressor(t *testing.T) {
	b, err := Parse([]byte(regressorJSON))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := b.Predict([]float64{25}); got != 113 {
		t.Errorf("Predict = %v, want 113", got)
	}
	if got := b.Predict([]float64{10}); got != 108 {
		t.Errorf("Predict = %v, want 108", got)
	}
	if _, err := b.PredictProba([]float64{1}); err == nil {
		t.Error("regressor must not expose probabilities")
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse([]byte(`{"learner": {"feature_names": []}}`)); !errors.Is(err, ErrNoFeatureNames) {
		t.Errorf("expected ErrNoFeatureNames, got %v", err)
	}
	cyclic := `{"learner": {"feature_names": ["a"], "gradient_booster": {"model": {"trees": [
		{"left_children": [0], "right_children": [0], "split_indices": [0], "split_conditions": [1], "default_left": [0]}
	]}}, "objective": {"name": "reg:squarederror"}}}`
	if _, err := Parse([]byte(cyclic)); err == nil {
		t.Error("expected error for cyclic tree")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.json")
	os.WriteFile(empty, nil, 0o644)
	if _, err := Load(empty); err == nil {
		t.Error("expected error for empty model file")
	}

	path := filepath.Join(dir, "win.json")
	os.WriteFile(path, []byte(classifierJSON), 0o644)
	b, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if b.Objective() != "binary:logistic" {
		t.Errorf("Objective = %q", b.Objective())
	}
}
