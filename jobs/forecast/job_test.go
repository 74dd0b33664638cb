package forecast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/YDUTSEVOLDN/Subway/core/model"
	"github.com/YDUTSEVOLDN/Subway/core/pipeline"
)

type mockRunner struct{ mock.Mock }

func (m *mockRunner) RunAndStore(ctx context.Context, start, end model.Date, stations []string) (pipeline.Report, error) {
	args := m.Called(pipeline.TriggerFrom(ctx), start, end, stations)
	return args.Get(0).(pipeline.Report), args.Error(1)
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New(&mockRunner{}, Options{Spec: "every tuesday"}, nil)
	assert.Error(t, err)
	_, err = New(nil, Options{Spec: "@hourly"}, nil)
	assert.Error(t, err)
	_, err = New(&mockRunner{}, Options{Spec: "@hourly", LookbackDays: -1}, nil)
	assert.Error(t, err)
}

func TestWindow_UsesLocation(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	j, err := New(&mockRunner{}, Options{Spec: "@hourly", LookbackDays: 7, Location: loc}, nil)
	require.NoError(t, err)

	// 2025-07-08 20:00 UTC is already 2025-07-09 in UTC+8.
	start, end := j.Window(time.Date(2025, time.July, 8, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, model.Date{Year: 2025, Month: time.July, Day: 9}, end)
	assert.Equal(t, model.Date{Year: 2025, Month: time.July, Day: 2}, start)
}

func TestRunOnce(t *testing.T) {
	r := &mockRunner{}
	j, err := New(r, Options{Spec: "*/15 * * * *", LookbackDays: 1, Stations: []string{"Xidan"}, Location: time.UTC}, nil)
	require.NoError(t, err)
	j.now = func() time.Time { return time.Date(2025, time.July, 8, 9, 0, 0, 0, time.UTC) }

	rep := pipeline.Report{BatchID: "b1", Stored: 4}
	r.On("RunAndStore", TriggerCron,
		model.Date{Year: 2025, Month: time.July, Day: 7},
		model.Date{Year: 2025, Month: time.July, Day: 8},
		[]string{"Xidan"}).Return(rep, nil).Once()

	_, ok := j.Last()
	assert.False(t, ok)
	got, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rep, got)
	last, ok := j.Last()
	require.True(t, ok)
	assert.Equal(t, "b1", last.BatchID)
	r.AssertExpectations(t)
}

func TestRunOnce_ErrorKeepsLast(t *testing.T) {
	r := &mockRunner{}
	j, err := New(r, Options{Spec: "@daily", Location: time.UTC}, nil)
	require.NoError(t, err)
	r.On("RunAndStore", TriggerCron, mock.Anything, mock.Anything, mock.Anything).
		Return(pipeline.Report{}, errors.New("db down"))

	_, err = j.RunOnce(context.Background())
	assert.EqualError(t, err, "db down")
	_, ok := j.Last()
	assert.False(t, ok)
}

func TestStart_StopsOnCancel(t *testing.T) {
	j, err := New(&mockRunner{}, Options{Spec: "@yearly", Location: time.UTC}, nil)
	require.NoError(t, err)
	assert.False(t, j.Next().IsZero())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

type ctxRunner struct {
	mu  sync.Mutex
	err error
}

func (r *ctxRunner) RunAndStore(ctx context.Context, _, _ model.Date, _ []string) (pipeline.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = ctx.Err()
	return pipeline.Report{}, r.err
}

func TestTick_FollowsStartContext(t *testing.T) {
	r := &ctxRunner{}
	j, err := New(r, Options{Spec: "@yearly", Location: time.UTC}, nil)
	require.NoError(t, err)
	assert.Equal(t, context.Background(), j.runContext())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool { return j.runContext() == ctx }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	j.tick(j.runContext())
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.ErrorIs(t, r.err, context.Canceled)
	_, ok := j.Last()
	assert.False(t, ok)
}
