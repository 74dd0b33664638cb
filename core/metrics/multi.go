package metrics

import (
	"errors"

	"github.com/YDUTSEVOLDN/Subway/core/model"
)

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordBatch forwards the event to every sink and joins their errors.
func (m *MultiSink) RecordBatch(ev BatchEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordBatch(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordPredictions forwards results to sinks that keep them.
func (m *MultiSink) RecordPredictions(batchID string, res []model.PredictionResult) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(PredictionRecorder); ok {
			if err := rec.RecordPredictions(batchID, res); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordStore forwards store events to sinks that support them.
func (m *MultiSink) RecordStore(ev StoreEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(StoreRecorder); ok {
			if err := rec.RecordStore(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close releases sinks holding connections. MultiSinks are closed
// recursively; sinks without a Close method are left alone.
func Close(s MetricsSink) error {
	switch c := s.(type) {
	case *MultiSink:
		var errs []error
		for _, sub := range c.Sinks {
			errs = append(errs, Close(sub))
		}
		return errors.Join(errs...)
	case interface{ Close() error }:
		return c.Close()
	case interface{ Close() }:
		c.Close()
	}
	return nil
}
