package inference

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/YDUTSEVOLDN/Subway/core/logger"
)

// ShapeMismatchError reports a feature width that differs from what a
// regressor was trained on. It indicates version skew between the feature
// builder and the model artifacts and is never retried.
type ShapeMismatchError struct {
	Model    string
	Expected int
	Actual   int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("feature shape mismatch for %s model: expected width %d, got %d",
		e.Model, e.Expected, e.Actual)
}

// Output holds both targets, aligned with the input rows.
type Output struct {
	Inbound  []float64
	Outbound []float64
}

// Engine runs the inbound and outbound regressors over a batch.
type Engine struct {
	inbound  Regressor
	outbound Regressor
	width    int
	log      logger.Logger
}

// NewEngine checks both regressors against the feature width and returns an
// Engine.
func NewEngine(inbound, outbound Regressor, width int, log logger.Logger) (*Engine, error) {
	if inbound == nil || outbound == nil {
		return nil, errors.New("inference: both regressors are required")
	}
	e := &Engine{inbound: inbound, outbound: outbound, width: width, log: logger.OrNop(log)}
	if err := e.checkWidth(width); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) checkWidth(actual int) error {
	if w := e.inbound.InputWidth(); w != actual {
		return &ShapeMismatchError{Model: "inbound", Expected: w, Actual: actual}
	}
	if w := e.outbound.InputWidth(); w != actual {
		return &ShapeMismatchError{Model: "outbound", Expected: w, Actual: actual}
	}
	return nil
}

// Predict validates every row width, then evaluates both regressors on the
// full batch concurrently.
func (e *Engine) Predict(ctx context.Context, rows [][]float64) (Output, error) {
	for _, r := range rows {
		if err := e.checkWidth(len(r)); err != nil {
			return Output{}, err
		}
	}
	if len(rows) == 0 {
		return Output{}, nil
	}
	var out Output
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := e.inbound.Predict(gctx, rows)
		if err != nil {
			return fmt.Errorf("inbound regressor: %w", err)
		}
		out.Inbound = v
		return nil
	})
	g.Go(func() error {
		v, err := e.outbound.Predict(gctx, rows)
		if err != nil {
			return fmt.Errorf("outbound regressor: %w", err)
		}
		out.Outbound = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return Output{}, err
	}
	e.log.Debugf("inference done for %d rows", len(rows))
	return out, nil
}
