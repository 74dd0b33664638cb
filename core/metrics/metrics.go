package metrics

import (
	"time"

	"github.com/YDUTSEVOLDN/Subway/core/model"
)

// BatchEvent summarises one pipeline invocation.
type BatchEvent struct {
	BatchID      string
	Start        model.Date
	End          model.Date
	Stations     []string
	Records      int
	Vectors      int
	ImputedCells int
	Predictions  int
	Duration     time.Duration
	// Stage is the pipeline stage that failed; empty on success.
	Stage string
	Err   string
	Time  time.Time
}

// Failed reports whether the batch aborted.
func (e BatchEvent) Failed() bool { return e.Err != "" }

// MetricsSink records batch outcomes for observability purposes.
type MetricsSink interface {
	RecordBatch(ev BatchEvent) error
}

// PredictionRecorder is implemented by sinks that keep the predicted series
// themselves, such as time-series databases.
type PredictionRecorder interface {
	RecordPredictions(batchID string, res []model.PredictionResult) error
}

// StoreEvent records the outcome of persisting or publishing results.
type StoreEvent struct {
	BatchID string
	Target  string
	Count   int
	Err     string
	Time    time.Time
}

// StoreRecorder records persistence and publication outcomes.
type StoreRecorder interface {
	RecordStore(ev StoreEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordBatch(BatchEvent) error                             { return nil }
func (NopSink) RecordPredictions(string, []model.PredictionResult) error { return nil }
func (NopSink) RecordStore(StoreEvent) error                             { return nil }
