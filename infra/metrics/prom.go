package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/YDUTSEVOLDN/Subway/core/metrics"
)

// PromSink exposes forecast batch outcomes as Prometheus metrics.
type PromSink struct {
	batches     *prometheus.CounterVec
	duration    prometheus.Histogram
	predictions prometheus.Counter
	imputed     prometheus.Counter
	records     prometheus.Gauge
	stores      *prometheus.CounterVec
}

// NewPromSink registers forecast metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// that are already registered are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subway_forecast_batches_total",
			Help: "Forecast batches by outcome and failing stage",
		}, []string{"outcome", "stage"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "subway_forecast_batch_duration_seconds",
			Help:    "Wall time of one forecast batch",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		predictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subway_forecast_predictions_total",
			Help: "Predictions assembled across all batches",
		}),
		imputed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subway_forecast_imputed_cells_total",
			Help: "Feature cells filled by column-mean imputation",
		}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "subway_forecast_last_batch_records",
			Help: "Historical records read by the most recent batch",
		}),
		stores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subway_forecast_writes_total",
			Help: "Prediction writes to stores and publishers by outcome",
		}, []string{"target", "outcome"}),
	}
	var err error
	if s.batches, err = register(reg, s.batches); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	if s.predictions, err = register(reg, s.predictions); err != nil {
		return nil, err
	}
	if s.imputed, err = register(reg, s.imputed); err != nil {
		return nil, err
	}
	if s.records, err = register(reg, s.records); err != nil {
		return nil, err
	}
	if s.stores, err = register(reg, s.stores); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordBatch updates the batch counters.
func (s *PromSink) RecordBatch(ev coremetrics.BatchEvent) error {
	outcome, stage := "ok", "none"
	if ev.Failed() {
		outcome, stage = "failed", ev.Stage
	}
	s.batches.WithLabelValues(outcome, stage).Inc()
	s.duration.Observe(ev.Duration.Seconds())
	s.records.Set(float64(ev.Records))
	if !ev.Failed() {
		s.predictions.Add(float64(ev.Predictions))
		s.imputed.Add(float64(ev.ImputedCells))
	}
	return nil
}

// RecordStore counts writes per target.
func (s *PromSink) RecordStore(ev coremetrics.StoreEvent) error {
	outcome := "ok"
	if ev.Err != "" {
		outcome = "failed"
	}
	s.stores.WithLabelValues(ev.Target, outcome).Inc()
	return nil
}
