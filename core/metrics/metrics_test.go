package metrics

import (
	"encoding/json"
	"errors"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YDUTSEVOLDN/Subway/core/factory"
	"github.com/YDUTSEVOLDN/Subway/core/model"
)

type countingSink struct {
	batches, predictions, stores int
	err                          error
}

func (c *countingSink) RecordBatch(BatchEvent) error { c.batches++; return c.err }
func (c *countingSink) RecordPredictions(string, []model.PredictionResult) error {
	c.predictions++
	return nil
}

type batchOnlySink struct{ n int }

func (b *batchOnlySink) RecordBatch(BatchEvent) error { b.n++; return nil }

func TestMultiSink_Forwarding(t *testing.T) {
	a := &countingSink{}
	b := &batchOnlySink{}
	m := NewMultiSink(a, b)

	require.NoError(t, m.RecordBatch(BatchEvent{BatchID: "x"}))
	require.NoError(t, m.RecordPredictions("x", nil))
	require.NoError(t, m.RecordStore(StoreEvent{}))
	assert.Equal(t, 1, a.batches)
	assert.Equal(t, 1, a.predictions)
	assert.Equal(t, 1, b.n)
}

func TestMultiSink_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a := &countingSink{err: boom}
	b := &batchOnlySink{}
	err := NewMultiSink(a, b).RecordBatch(BatchEvent{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, b.n, "later sinks still receive the event")
}

func TestNewMetricsSink(t *testing.T) {
	s, err := NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s)

	s, err = NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "nop"}})
	require.NoError(t, err)
	multi, ok := s.(*MultiSink)
	require.True(t, ok)
	assert.Len(t, multi.Sinks, 2)

	_, err = NewMetricsSink([]factory.ModuleConfig{{Type: "missing"}})
	assert.Error(t, err)
}

func TestConfigDecode(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte("sinks:\n  - type: nop\n  - type: prometheus\n"), &cfg))
	assert.True(t, cfg.HasSink("prometheus"))
	assert.False(t, cfg.HasSink("influx"))

	require.NoError(t, json.Unmarshal([]byte(`{"sinks":[{"type":"influx","conf":{"bucket":"b"}}]}`), &cfg))
	assert.True(t, cfg.HasSink("influx"))
	assert.Equal(t, "b", cfg.Sinks[0].Conf["bucket"])
}

type closingSink struct {
	batchOnlySink
	closed bool
	err    error
}

func (c *closingSink) Close() error { c.closed = true; return c.err }

type voidCloser struct {
	batchOnlySink
	closed bool
}

func (v *voidCloser) Close() { v.closed = true }

func TestClose_Recursive(t *testing.T) {
	a := &closingSink{err: errors.New("flush failed")}
	b := &voidCloser{}
	err := Close(NewMultiSink(a, &batchOnlySink{}, NewMultiSink(b)))
	assert.EqualError(t, err, "flush failed")
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.NoError(t, Close(NopSink{}))
}
