// Package regressor provides the model backends the inference engine can
// load: linear artifacts evaluated in-process and a remote HTTP model server.
package regressor

import (
	"context"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// Artifact is the on-disk form of a trained linear model.
type Artifact struct {
	Name    string    `yaml:"name" json:"name"`
	Version string    `yaml:"version" json:"version"`
	Width   int       `yaml:"width" json:"width"`
	Bias    float64   `yaml:"bias" json:"bias"`
	Weights []float64 `yaml:"weights" json:"weights"`
}

// Validate checks that the weight vector matches the declared width.
func (a Artifact) Validate() error {
	if a.Width <= 0 {
		return fmt.Errorf("model %q: width must be positive", a.Name)
	}
	if len(a.Weights) != a.Width {
		return fmt.Errorf("model %q: %d weights for width %d", a.Name, len(a.Weights), a.Width)
	}
	return nil
}

// LoadArtifact reads a YAML model artifact.
func LoadArtifact(path string) (Artifact, error) {
	var a Artifact
	b, err := os.ReadFile(path)
	if err != nil {
		return a, err
	}
	if err := yaml.Unmarshal(b, &a); err != nil {
		return a, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := a.Validate(); err != nil {
		return a, err
	}
	return a, nil
}

// Linear scores rows as bias + row·weights.
type Linear struct {
	art     Artifact
	weights *mat.VecDense
}

// NewLinear validates a and returns a Linear regressor.
func NewLinear(a Artifact) (*Linear, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	w := make([]float64, len(a.Weights))
	copy(w, a.Weights)
	return &Linear{art: a, weights: mat.NewVecDense(len(w), w)}, nil
}

// InputWidth returns the artifact width.
func (l *Linear) InputWidth() int { return l.art.Width }

// Artifact returns the loaded model description.
func (l *Linear) Artifact() Artifact { return l.art }

// Predict evaluates the whole batch as one matrix-vector product.
func (l *Linear) Predict(ctx context.Context, batch [][]float64) ([]float64, error) {
	if len(batch) == 0 {
		return []float64{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := make([]float64, 0, len(batch)*l.art.Width)
	for i, row := range batch {
		if len(row) != l.art.Width {
			return nil, fmt.Errorf("row %d: width %d, model %q expects %d", i, len(row), l.art.Name, l.art.Width)
		}
		data = append(data, row...)
	}
	x := mat.NewDense(len(batch), l.art.Width, data)
	var y mat.VecDense
	y.MulVec(x, l.weights)
	out := make([]float64, len(batch))
	for i := range out {
		out[i] = y.AtVec(i) + l.art.Bias
	}
	return out, nil
}
