package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/YDUTSEVOLDN/Subway/core/features"
	"github.com/YDUTSEVOLDN/Subway/core/inference"
	"github.com/YDUTSEVOLDN/Subway/core/metrics"
	"github.com/YDUTSEVOLDN/Subway/core/model"
	"github.com/YDUTSEVOLDN/Subway/core/publish"
	"github.com/YDUTSEVOLDN/Subway/core/runlog"
	"github.com/YDUTSEVOLDN/Subway/internal/eventbus"
)

type mockSource struct{ mock.Mock }

func (m *mockSource) Fetch(ctx context.Context, start, end model.Date, stations []string) ([]model.HistoricalRecord, error) {
	args := m.Called(ctx, start, end, stations)
	recs, _ := args.Get(0).([]model.HistoricalRecord)
	return recs, args.Error(1)
}

// lag1Regressor returns lag-1 in_count (inbound) or out_count (outbound)
// plus a fixed offset.
type lag1Regressor struct {
	col    int
	offset float64
	width  int
}

func (r lag1Regressor) InputWidth() int { return r.width }
func (r lag1Regressor) Predict(_ context.Context, rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = row[r.col] + r.offset
	}
	return out, nil
}

type captureSink struct {
	mu      sync.Mutex
	batches []metrics.BatchEvent
	stores  []metrics.StoreEvent
	preds   int
}

func (c *captureSink) RecordBatch(ev metrics.BatchEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, ev)
	return nil
}

func (c *captureSink) RecordPredictions(_ string, res []model.PredictionResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preds += len(res)
	return nil
}

func (c *captureSink) RecordStore(ev metrics.StoreEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores = append(c.stores, ev)
	return nil
}

type memStore struct {
	saved []model.PredictionResult
	err   error
}

func (s *memStore) Save(_ context.Context, res []model.PredictionResult) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.saved = append(s.saved, res...)
	return len(res), nil
}

func (s *memStore) Query(context.Context, model.PredictionFilter) ([]model.PredictionResult, error) {
	return s.saved, nil
}

type stubPublisher struct {
	name string
	err  error
	msgs []publish.Message
}

func (p *stubPublisher) Name() string { return p.name }
func (p *stubPublisher) Publish(_ context.Context, m publish.Message) error {
	p.msgs = append(p.msgs, m)
	return p.err
}
func (p *stubPublisher) Close() error { return nil }

type captureMonitor struct{ errs []error }

func (m *captureMonitor) CaptureException(err error, _ map[string]string) { m.errs = append(m.errs, err) }
func (m *captureMonitor) Flush(time.Duration)                              {}

var day = model.Date{Year: 2025, Month: time.July, Day: 7}

func series(station string, counts ...int) []model.HistoricalRecord {
	out := make([]model.HistoricalRecord, len(counts))
	for i, c := range counts {
		out[i] = model.HistoricalRecord{
			Date:     day,
			TimeSlot: model.MustTimeSlot(6+i, 0),
			Station:  station,
			District: "Haidian",
			InCount:  c,
			OutCount: c / 2,
		}
	}
	return out
}

func newPipeline(t *testing.T, src RecordSource, sink metrics.MetricsSink) *Pipeline {
	t.Helper()
	b, err := features.NewBuilder(features.Config{}, nil)
	require.NoError(t, err)
	in := lag1Regressor{col: features.Column(1, features.InCount), width: features.Width}
	out := lag1Regressor{col: features.Column(1, features.OutCount), offset: -1000, width: features.Width}
	eng, err := inference.NewEngine(in, out, features.Width, nil)
	require.NoError(t, err)
	p, err := New(src, b, eng, nil, sink)
	require.NoError(t, err)
	ids := 0
	p.newID = func() string {
		ids++
		return "batch-" + string(rune('0'+ids))
	}
	return p
}

func TestRunBatch_EndToEnd(t *testing.T) {
	recs := append(series("A", 100, 120, 140), series("B", 10, 20)...)
	src := &mockSource{}
	src.On("Fetch", mock.Anything, day, day, []string{"a", "b"}).Return(recs, nil)
	sink := &captureSink{}
	p := newPipeline(t, src, sink)
	bus := eventbus.New[metrics.BatchEvent]()
	events := bus.Subscribe()
	p.SetEventBus(bus)

	res, err := p.RunBatch(context.Background(), day, day, []string{"A", " b", "a"})
	require.NoError(t, err)
	require.Len(t, res, 5)
	for i, r := range res {
		assert.Equal(t, recs[i].Key(), r.Key(), "result %d keeps input order", i)
		assert.Equal(t, "Haidian", r.District)
		assert.GreaterOrEqual(t, r.PredictedOutCount, 0)
		assert.Zero(t, r.PredictedOutCount, "negative outbound clamps to zero")
	}
	// A's third record sees lag1 = 120.
	assert.Equal(t, 120, res[2].PredictedInCount)
	assert.Equal(t, 10, res[4].PredictedInCount)

	require.Len(t, sink.batches, 1)
	ev := sink.batches[0]
	assert.False(t, ev.Failed())
	assert.Equal(t, 5, ev.Records)
	assert.Equal(t, 5, ev.Predictions)
	assert.Positive(t, ev.ImputedCells)
	assert.Equal(t, ev.BatchID, (<-events).BatchID)
	src.AssertExpectations(t)
}

func TestRunBatch_UpstreamErrorIsWrapped(t *testing.T) {
	src := &mockSource{}
	boom := errors.New("connection refused")
	src.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)
	sink := &captureSink{}
	p := newPipeline(t, src, sink)
	mon := &captureMonitor{}
	p.SetMonitor(mon)

	res, err := p.RunBatch(context.Background(), day, day, nil)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, IsUpstream(err))
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsFatal(err))
	assert.Empty(t, mon.errs, "upstream failures are not reported as fatal")
	require.Len(t, sink.batches, 1)
	assert.Equal(t, StageFetch, sink.batches[0].Stage)
}

func TestRunBatch_DuplicateKeyIsFatal(t *testing.T) {
	recs := series("A", 1, 2)
	recs = append(recs, recs[0])
	src := &mockSource{}
	src.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(recs, nil)
	p := newPipeline(t, src, nil)
	mon := &captureMonitor{}
	p.SetMonitor(mon)

	_, err := p.RunBatch(context.Background(), day, day, nil)
	var dup *model.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.True(t, IsFatal(err))
	assert.Len(t, mon.errs, 1)
}

func TestRunBatch_InvalidWindow(t *testing.T) {
	src := &mockSource{}
	p := newPipeline(t, src, nil)
	_, err := p.RunBatch(context.Background(), day, day.AddDays(-1), nil)
	var win *InvalidWindowError
	require.ErrorAs(t, err, &win)
	_, err = p.RunBatch(context.Background(), model.Date{}, day, nil)
	require.ErrorAs(t, err, &win)
	src.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunBatch_CancelledBeforeFetch(t *testing.T) {
	src := &mockSource{}
	p := newPipeline(t, src, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.RunBatch(ctx, day, day, nil)
	assert.ErrorIs(t, err, context.Canceled)
	src.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunBatch_EmptyWindow(t *testing.T) {
	src := &mockSource{}
	src.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]model.HistoricalRecord{}, nil)
	p := newPipeline(t, src, nil)
	res, err := p.RunBatch(context.Background(), day, day, nil)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestRunAndStore(t *testing.T) {
	src := &mockSource{}
	src.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(series("A", 5, 6, 7), nil)
	sink := &captureSink{}
	p := newPipeline(t, src, sink)
	store := &memStore{}
	okPub := &stubPublisher{name: "redis"}
	badPub := &stubPublisher{name: "mqtt", err: errors.New("broker offline")}
	runs, err := runlog.NewJSONLStore(filepath.Join(t.TempDir(), "runs.jsonl"))
	require.NoError(t, err)
	p.SetStore(store)
	p.SetPublishers([]publish.Publisher{okPub, badPub})
	p.SetRunLog(runs)

	rep, err := p.RunAndStore(WithTrigger(context.Background(), "cron"), day, day, []string{"A"})
	require.NoError(t, err, "publisher failure does not fail the batch")
	assert.Equal(t, 3, rep.Stored)
	assert.Equal(t, []string{"redis"}, rep.Published)
	assert.Len(t, store.saved, 3)
	require.Len(t, okPub.msgs, 1)
	assert.Equal(t, rep.BatchID, okPub.msgs[0].BatchID)
	assert.Equal(t, 3, sink.preds)
	assert.Len(t, sink.stores, 3)

	logged, err := runs.Query(context.Background(), runlog.Query{})
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, rep.BatchID, logged[0].BatchID)
	assert.Equal(t, "cron", logged[0].Trigger)
	assert.Equal(t, []string{"a"}, logged[0].Stations)
	assert.Equal(t, 3, logged[0].Records)
	assert.Equal(t, 3, logged[0].Predictions)
	assert.Equal(t, 3, logged[0].Stored)
	assert.False(t, logged[0].Failed())
}

func TestRunAndStore_SaveFailure(t *testing.T) {
	src := &mockSource{}
	src.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(series("A", 5), nil)
	p := newPipeline(t, src, nil)
	p.SetStore(&memStore{err: errors.New("disk full")})
	runs, err := runlog.NewJSONLStore(filepath.Join(t.TempDir(), "runs.jsonl"))
	require.NoError(t, err)
	p.SetRunLog(runs)

	_, err = p.RunAndStore(context.Background(), day, day, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save predictions: disk full")

	logged, err := runs.Query(context.Background(), runlog.Query{FailedOnly: true})
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, 1, logged[0].Records, "fetched records are logged on a failed save")
	assert.Zero(t, logged[0].Stored)
}

func TestRunAndStore_WithoutStoreCountsResults(t *testing.T) {
	src := &mockSource{}
	src.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(series("A", 5, 9), nil)
	p := newPipeline(t, src, nil)
	rep, err := p.RunAndStore(context.Background(), day, day, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Stored)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestPredictOne_UsesPrecedingHistory(t *testing.T) {
	hist := series("A", 100, 120, 140, 160)
	src := &mockSource{}
	src.On("Fetch", mock.Anything, day.AddDays(-SingleHistoryDays), day, []string{"a"}).Return(hist, nil)
	p := newPipeline(t, src, nil)

	res, err := p.PredictOne(context.Background(), model.HistoricalRecord{
		Date:     day,
		TimeSlot: model.MustTimeSlot(8, 0),
		Station:  "a",
		InCount:  9999,
	})
	require.NoError(t, err)
	assert.Equal(t, "A", res.Station)
	assert.Equal(t, "Haidian", res.District)
	assert.Equal(t, model.MustTimeSlot(8, 0), res.TimeSlot)
	// 08:00 already exists in history; its own row and later rows are ignored.
	assert.Equal(t, 120, res.PredictedInCount)
	assert.Zero(t, res.PredictedOutCount)
	src.AssertExpectations(t)
}

func TestPredictOne_WithoutHistory(t *testing.T) {
	src := &mockSource{}
	src.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]model.HistoricalRecord{}, nil)
	p := newPipeline(t, src, nil)

	res, err := p.PredictOne(context.Background(), model.HistoricalRecord{
		Date: day, TimeSlot: model.MustTimeSlot(7, 0), Station: "New", District: "Fengtai",
	})
	require.NoError(t, err)
	assert.Equal(t, "New", res.Station)
	assert.Equal(t, "Fengtai", res.District)
	assert.Zero(t, res.PredictedInCount)
}

func TestPredictOne_Errors(t *testing.T) {
	src := &mockSource{}
	src.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
	p := newPipeline(t, src, nil)

	_, err := p.PredictOne(context.Background(), model.HistoricalRecord{Date: day, Station: "A"})
	assert.True(t, IsUpstream(err))

	_, err = p.PredictOne(context.Background(), model.HistoricalRecord{Date: day})
	var win *InvalidWindowError
	assert.ErrorAs(t, err, &win)
}
