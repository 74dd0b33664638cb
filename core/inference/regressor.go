package inference

import (
	"context"
	"fmt"

	"github.com/YDUTSEVOLDN/Subway/core/factory"
)

// Regressor is a trained single-target model evaluated over a whole batch.
// Implementations must be safe for concurrent use once constructed.
type Regressor interface {
	// Predict returns one output per input row, in input order.
	Predict(ctx context.Context, batch [][]float64) ([]float64, error)
	// InputWidth is the row length the model was trained on.
	InputWidth() int
}

// PointRegressor is a model that can only score one row per call.
type PointRegressor interface {
	PredictOne(ctx context.Context, row []float64) (float64, error)
	InputWidth() int
}

// Batched adapts a PointRegressor to Regressor by looping over the batch.
// Output order equals input order.
func Batched(p PointRegressor) Regressor { return pointLoop{p} }

type pointLoop struct{ PointRegressor }

func (l pointLoop) Predict(ctx context.Context, batch [][]float64) ([]float64, error) {
	out := make([]float64, len(batch))
	for i, row := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := l.PredictOne(ctx, row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

var regressorRegistry = factory.NewRegistry[Regressor]()

// RegisterRegressor adds a regressor factory identified by name.
func RegisterRegressor(name string, f factory.Factory[Regressor]) error {
	return regressorRegistry.Register(name, f)
}

// NewRegressor creates a Regressor from its module configuration.
func NewRegressor(cfg factory.ModuleConfig) (Regressor, error) {
	return regressorRegistry.Create(cfg)
}

// RegressorTypes lists the registered regressor types.
func RegressorTypes() []string { return regressorRegistry.Types() }
