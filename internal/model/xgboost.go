// Package model evaluates gradient-boosted tree artifacts saved in the
// XGBoost JSON format. Boosters are immutable after Load and safe for
// concurrent use.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

var ErrNoFeatureNames = errors.New("model has no feature names")

// link maps a raw margin to the prediction scale.
type link int

const (
	linkIdentity link = iota
	linkLogistic
	linkLog
)

type tree struct {
	left, right []int
	feature     []int
	cond        []float64
	defaultLeft []bool
}

func (t *tree) leaf(x []float64) float64 {
	node := 0
	for t.left[node] >= 0 {
		f := t.feature[node]
		var v float64
		if f < len(x) {
			v = x[f]
		} else {
			v = math.NaN()
		}
		switch {
		case math.IsNaN(v):
			if t.defaultLeft[node] {
				node = t.left[node]
			} else {
				node = t.right[node]
			}
		case v < t.cond[node]:
			node = t.left[node]
		default:
			node = t.right[node]
		}
	}
	return t.cond[node]
}

// Booster is a loaded tree ensemble.
type Booster struct {
	features  []string
	objective string
	link      link
	base      float64 // margin-space base score
	trees     []tree
}

// FeatureNames returns the ordered feature list the model was trained on.
func (b *Booster) FeatureNames() []string {
	out := make([]string, len(b.features))
	copy(out, b.features)
	return out
}

// Objective returns the training objective name.
func (b *Booster) Objective() string { return b.objective }

// Margin returns the raw ensemble output for one row.
func (b *Booster) Margin(x []float64) float64 {
	sum := b.base
	for i := range b.trees {
		sum += b.trees[i].leaf(x)
	}
	return sum
}

// Predict returns the prediction on the objective's output scale: a
// probability for logistic objectives, a value otherwise.
func (b *Booster) Predict(x []float64) float64 {
	m := b.Margin(x)
	switch b.link {
	case linkLogistic:
		return 1 / (1 + math.Exp(-m))
	case linkLog:
		return math.Exp(m)
	default:
		return m
	}
}

// PredictProba returns the positive-class probability. It fails for
// non-logistic objectives.
func (b *Booster) PredictProba(x []float64) (float64, error) {
	if b.link != linkLogistic {
		return 0, fmt.Errorf("objective %s is not a classifier", b.objective)
	}
	return b.Predict(x), nil
}

// Load reads a booster from a JSON model file.
func Load(path string) (*Booster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("model file %s is empty", path)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing model %s: %w", path, err)
	}
	return b, nil
}

type flexBools []bool

func (f *flexBools) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]bool, len(raw))
	for i, r := range raw {
		switch s := strings.TrimSpace(string(r)); s {
		case "true", "1":
			out[i] = true
		case "false", "0":
		default:
			return fmt.Errorf("invalid default_left value %s", s)
		}
	}
	*f = out
	return nil
}

type modelJSON struct {
	Learner struct {
		FeatureNames []string `json:"feature_names"`

		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				Trees []struct {
					LeftChildren    []int     `json:"left_children"`
					RightChildren   []int     `json:"right_children"`
					SplitIndices    []int     `json:"split_indices"`
					SplitConditions []float64 `json:"split_conditions"`
					DefaultLeft     flexBools `json:"default_left"`
				} `json:"trees"`
			} `json:"model"`
		} `json:"gradient_booster"`
		LearnerModelParam struct {
			BaseScore string `json:"base_score"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
}

// Parse decodes a booster from XGBoost JSON.
func Parse(data []byte) (*Booster, error) {
	var m modelJSON
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	l := m.Learner
	if name := l.GradientBooster.Name; name != "" && name != "gbtree" {
		return nil, fmt.Errorf("unsupported booster %q", name)
	}
	if len(l.FeatureNames) == 0 {
		return nil, ErrNoFeatureNames
	}

	base, err := parseBaseScore(l.LearnerModelParam.BaseScore)
	if err != nil {
		return nil, err
	}

	b := &Booster{features: l.FeatureNames, objective: l.Objective.Name}
	switch b.objective {
	case "binary:logistic", "reg:logistic":
		b.link = linkLogistic
		if base <= 0 || base >= 1 {
			return nil, fmt.Errorf("base_score %v outside (0,1) for %s", base, b.objective)
		}
		b.base = math.Log(base / (1 - base))
	case "count:poisson", "reg:gamma", "reg:tweedie":
		b.link = linkLog
		if base <= 0 {
			return nil, fmt.Errorf("base_score %v must be positive for %s", base, b.objective)
		}
		b.base = math.Log(base)
	default:
		b.link = linkIdentity
		b.base = base
	}

	for i, raw := range l.GradientBooster.Model.Trees {
		n := len(raw.LeftChildren)
		if n == 0 || len(raw.RightChildren) != n || len(raw.SplitIndices) != n ||
			len(raw.SplitConditions) != n || len(raw.DefaultLeft) != n {
			return nil, fmt.Errorf("tree %d: inconsistent node arrays", i)
		}
		for node := 0; node < n; node++ {
			lc, rc := raw.LeftChildren[node], raw.RightChildren[node]
			// Children always follow their parent, which rules out cycles.
			if lc >= n || rc >= n || (lc < 0) != (rc < 0) || (lc >= 0 && (lc <= node || rc <= node)) {
				return nil, fmt.Errorf("tree %d: node %d has invalid children", i, node)
			}
		}
		b.trees = append(b.trees, tree{
			left:        raw.LeftChildren,
			right:       raw.RightChildren,
			feature:     raw.SplitIndices,
			cond:        raw.SplitConditions,
			defaultLeft: raw.DefaultLeft,
		})
	}
	return b, nil
}

// parseBaseScore accepts "5E-1" and the bracketed "[5E-1]" form.
func parseBaseScore(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if s == "" {
		return 0.5, nil
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid base_score %q: %w", s, err)
	}
	return v, nil
}
