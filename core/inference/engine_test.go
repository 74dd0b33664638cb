package inference

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// sumRegressor returns scale*sum(row)+bias.
type sumRegressor struct {
	width       int
	scale, bias float64
	calls       int
}

func (s *sumRegressor) InputWidth() int { return s.width }

func (s *sumRegressor) Predict(_ context.Context, batch [][]float64) ([]float64, error) {
	s.calls++
	out := make([]float64, len(batch))
	for i, row := range batch {
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		out[i] = s.scale*sum + s.bias
	}
	return out, nil
}

type mockRegressor struct{ mock.Mock }

func (m *mockRegressor) InputWidth() int { return m.Called().Int(0) }

func (m *mockRegressor) Predict(ctx context.Context, batch [][]float64) ([]float64, error) {
	args := m.Called(ctx, batch)
	if v := args.Get(0); v != nil {
		return v.([]float64), args.Error(1)
	}
	return nil, args.Error(1)
}

type pointFunc struct {
	width int
	fn    func([]float64) float64
}

func (p pointFunc) InputWidth() int { return p.width }
func (p pointFunc) PredictOne(_ context.Context, row []float64) (float64, error) {
	return p.fn(row), nil
}

func rows(n, width int, fill func(i int) float64) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, width)
		for j := range out[i] {
			out[i][j] = fill(i)
		}
	}
	return out
}

func TestNewEngine_WidthMismatch(t *testing.T) {
	_, err := NewEngine(&sumRegressor{width: 42}, &sumRegressor{width: 40}, 42, nil)
	var shape *ShapeMismatchError
	require.True(t, errors.As(err, &shape))
	assert.Equal(t, "outbound", shape.Model)
	assert.Equal(t, 40, shape.Expected)
	assert.Equal(t, 42, shape.Actual)
	assert.Contains(t, err.Error(), "expected width 40, got 42")

	_, err = NewEngine(nil, &sumRegressor{width: 42}, 42, nil)
	assert.Error(t, err)
}

func TestEngine_PredictBatch(t *testing.T) {
	in := &sumRegressor{width: 42, scale: 1}
	out := &sumRegressor{width: 42, scale: 2, bias: 1}
	eng, err := NewEngine(in, out, 42, nil)
	require.NoError(t, err)

	res, err := eng.Predict(context.Background(), rows(3, 42, func(i int) float64 { return float64(i) }))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 42, 84}, res.Inbound)
	assert.Equal(t, []float64{1, 85, 169}, res.Outbound)
	assert.Equal(t, 1, in.calls, "whole batch in one call")
	assert.Equal(t, 1, out.calls)
}

func TestEngine_ZeroVectorIsDeterministic(t *testing.T) {
	eng, err := NewEngine(&sumRegressor{width: 42, bias: 7.25}, &sumRegressor{width: 42, bias: -3}, 42, nil)
	require.NoError(t, err)
	zero := rows(1, 42, func(int) float64 { return 0 })
	for i := 0; i < 3; i++ {
		res, err := eng.Predict(context.Background(), zero)
		require.NoError(t, err)
		assert.Equal(t, 7.25, res.Inbound[0])
		assert.Equal(t, -3.0, res.Outbound[0])
	}
}

func TestEngine_RowWidthMismatch(t *testing.T) {
	eng, err := NewEngine(&sumRegressor{width: 42}, &sumRegressor{width: 42}, 42, nil)
	require.NoError(t, err)
	bad := rows(2, 42, func(int) float64 { return 1 })
	bad[1] = bad[1][:41]
	_, err = eng.Predict(context.Background(), bad)
	var shape *ShapeMismatchError
	require.True(t, errors.As(err, &shape))
	assert.Equal(t, 41, shape.Actual)
}

func TestEngine_RegressorErrorPropagates(t *testing.T) {
	in := &mockRegressor{}
	in.On("InputWidth").Return(42)
	in.On("Predict", mock.Anything, mock.Anything).Return(nil, errors.New("model server down"))
	eng, err := NewEngine(in, &sumRegressor{width: 42}, 42, nil)
	require.NoError(t, err)

	_, err = eng.Predict(context.Background(), rows(1, 42, func(int) float64 { return 0 }))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inbound regressor: model server down")
	in.AssertExpectations(t)
}

func TestEngine_EmptyBatch(t *testing.T) {
	in := &sumRegressor{width: 42}
	eng, err := NewEngine(in, &sumRegressor{width: 42}, 42, nil)
	require.NoError(t, err)
	res, err := eng.Predict(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Inbound)
	assert.Zero(t, in.calls)
}

func TestBatched_PreservesOrder(t *testing.T) {
	r := Batched(pointFunc{width: 2, fn: func(row []float64) float64 { return row[0]*10 + row[1] }})
	assert.Equal(t, 2, r.InputWidth())
	got, err := r.Predict(context.Background(), [][]float64{{3, 1}, {1, 2}, {2, 3}})
	require.NoError(t, err)
	assert.Equal(t, []float64{31, 12, 23}, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Predict(ctx, [][]float64{{1, 1}})
	assert.ErrorIs(t, err, context.Canceled)
}
