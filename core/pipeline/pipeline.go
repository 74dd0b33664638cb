// Package pipeline runs a forecast batch end to end: fetch records, build
// lagged feature vectors, score both regressors and assemble keyed results.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YDUTSEVOLDN/Subway/core/assembly"
	"github.com/YDUTSEVOLDN/Subway/core/features"
	"github.com/YDUTSEVOLDN/Subway/core/inference"
	"github.com/YDUTSEVOLDN/Subway/core/logger"
	"github.com/YDUTSEVOLDN/Subway/core/metrics"
	"github.com/YDUTSEVOLDN/Subway/core/model"
	"github.com/YDUTSEVOLDN/Subway/core/monitoring"
	"github.com/YDUTSEVOLDN/Subway/core/publish"
	"github.com/YDUTSEVOLDN/Subway/core/runlog"
	"github.com/YDUTSEVOLDN/Subway/internal/eventbus"
)

// Stage names reported on failed batches.
const (
	StageFetch    = "fetch"
	StageFeatures = "features"
	StageInfer    = "inference"
	StageAssemble = "assemble"
	StageStore    = "store"
)

// Report is the outcome of RunAndStore.
type Report struct {
	BatchID     string                   `json:"batch_id"`
	Predictions []model.PredictionResult `json:"predictions"`
	Stored      int                      `json:"stored"`
	Published   []string                 `json:"published,omitempty"`
}

// Pipeline wires a record source to the feature builder, inference engine
// and result assembler. Optional collaborators are attached with the Set
// methods before the first run.
type Pipeline struct {
	source  RecordSource
	builder *features.Builder
	engine  *inference.Engine
	log     logger.Logger
	metrics metrics.MetricsSink

	mu         sync.RWMutex
	monitor    monitoring.Monitor
	store      PredictionStore
	publishers []publish.Publisher
	runs       runlog.Store
	bus        *eventbus.Bus[metrics.BatchEvent]

	now   func() time.Time
	newID func() string
}

// New returns a Pipeline. log and sink may be nil.
func New(source RecordSource, builder *features.Builder, engine *inference.Engine, log logger.Logger, sink metrics.MetricsSink) (*Pipeline, error) {
	if source == nil || builder == nil || engine == nil {
		return nil, fmt.Errorf("pipeline: source, builder and engine are required")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Pipeline{
		source:  source,
		builder: builder,
		engine:  engine,
		log:     logger.OrNop(log),
		metrics: sink,
		monitor: monitoring.NopMonitor{},
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}, nil
}

// SetMonitor configures where fatal errors are reported.
func (p *Pipeline) SetMonitor(m monitoring.Monitor) {
	p.mu.Lock()
	p.monitor = monitoring.OrNop(m)
	p.mu.Unlock()
}

// SetStore configures where RunAndStore persists predictions.
func (p *Pipeline) SetStore(s PredictionStore) {
	p.mu.Lock()
	p.store = s
	p.mu.Unlock()
}

// SetPublishers configures the downstream publishers notified by RunAndStore.
func (p *Pipeline) SetPublishers(ps []publish.Publisher) {
	p.mu.Lock()
	p.publishers = ps
	p.mu.Unlock()
}

// SetRunLog configures the audit trail written by RunAndStore.
func (p *Pipeline) SetRunLog(s runlog.Store) {
	p.mu.Lock()
	p.runs = s
	p.mu.Unlock()
}

// SetEventBus configures a bus receiving one BatchEvent per run.
func (p *Pipeline) SetEventBus(b *eventbus.Bus[metrics.BatchEvent]) {
	p.mu.Lock()
	p.bus = b
	p.mu.Unlock()
}

// Source returns the record source the pipeline reads from.
func (p *Pipeline) Source() RecordSource { return p.source }

// Store returns the configured prediction store, or nil.
func (p *Pipeline) Store() PredictionStore {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store
}

// RunLog returns the configured run log, or nil.
func (p *Pipeline) RunLog() runlog.Store {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.runs
}

// RunBatch forecasts every record the source returns for the inclusive
// window [start, end] and the optional station filter. Results are in the
// order the source delivered the records. Any error aborts the whole batch.
func (p *Pipeline) RunBatch(ctx context.Context, start, end model.Date, stations []string) ([]model.PredictionResult, error) {
	_, res, err := p.run(ctx, start, end, stations)
	return res, err
}

// RunAndStore runs a batch, persists the results when a store is configured,
// publishes them and records the run. A failed save fails the run; publisher,
// metrics and run log failures are only logged.
func (p *Pipeline) RunAndStore(ctx context.Context, start, end model.Date, stations []string) (Report, error) {
	began := p.now()
	ev, res, err := p.run(ctx, start, end, stations)
	id := ev.BatchID
	rep := Report{BatchID: id, Predictions: res}
	rec := runlog.RunRecord{
		BatchID:     id,
		Timestamp:   began,
		Start:       start,
		End:         end,
		Stations:    model.NormalizeStations(stations),
		Records:     ev.Records,
		Predictions: len(res),
		Trigger:     TriggerFrom(ctx),
	}
	defer func() {
		rec.Duration = p.now().Sub(began)
		p.appendRun(ctx, rec)
	}()
	if err != nil {
		rec.Error = err.Error()
		return rep, err
	}

	p.mu.RLock()
	store, pubs := p.store, p.publishers
	p.mu.RUnlock()

	rep.Stored = len(res)
	if store != nil {
		n, err := store.Save(ctx, res)
		p.recordStore(metrics.StoreEvent{BatchID: id, Target: "store", Count: n, Err: errString(err), Time: p.now()})
		if err != nil {
			err = fmt.Errorf("save predictions: %w", err)
			rec.Error = err.Error()
			p.log.Errorf("batch %s: %v", id, err)
			return rep, err
		}
		rep.Stored = n
	}
	rec.Stored = rep.Stored
	p.recordPredictions(id, res)

	if len(pubs) > 0 && len(res) > 0 {
		msg := publish.Message{BatchID: id, Start: start, End: end, Predictions: res}
		for _, pub := range pubs {
			err := pub.Publish(ctx, msg)
			p.recordStore(metrics.StoreEvent{BatchID: id, Target: pub.Name(), Count: len(res), Err: errString(err), Time: p.now()})
			if err != nil {
				p.log.Warnf("batch %s: publish to %s failed: %v", id, pub.Name(), err)
				continue
			}
			rep.Published = append(rep.Published, pub.Name())
		}
	}
	rec.Published = rep.Published
	return rep, nil
}

// run executes one batch and returns its BatchEvent, which is also
// returned on failure.
func (p *Pipeline) run(ctx context.Context, start, end model.Date, stations []string) (metrics.BatchEvent, []model.PredictionResult, error) {
	id := p.newID()
	began := p.now()
	stations = model.NormalizeStations(stations)
	ev := metrics.BatchEvent{BatchID: id, Start: start, End: end, Stations: stations, Time: began}

	fail := func(stage string, err error) (metrics.BatchEvent, []model.PredictionResult, error) {
		ev.Stage = stage
		ev.Err = err.Error()
		ev.Duration = p.now().Sub(began)
		p.finish(ev)
		if IsFatal(err) {
			p.mu.RLock()
			mon := p.monitor
			p.mu.RUnlock()
			mon.CaptureException(err, map[string]string{"batch_id": id, "stage": stage})
		}
		p.log.Errorf("batch %s failed at %s: %v", id, stage, err)
		return ev, nil, err
	}

	if start.IsZero() || end.IsZero() {
		return fail(StageFetch, &InvalidWindowError{Start: start, End: end, Reason: "start and end dates are required"})
	}
	if end.Before(start) {
		return fail(StageFetch, &InvalidWindowError{Start: start, End: end, Reason: "end before start"})
	}
	if err := ctx.Err(); err != nil {
		return fail(StageFetch, err)
	}

	records, err := p.source.Fetch(ctx, start, end, stations)
	if err != nil {
		return fail(StageFetch, &UpstreamSourceError{Err: err})
	}
	ev.Records = len(records)
	if err := ctx.Err(); err != nil {
		return fail(StageFeatures, err)
	}

	batch, err := p.builder.Build(records)
	if err != nil {
		return fail(StageFeatures, err)
	}
	ev.Vectors = batch.Len()
	ev.ImputedCells = batch.ImputedCells
	if err := ctx.Err(); err != nil {
		return fail(StageInfer, err)
	}

	out, err := p.engine.Predict(ctx, batch.Rows())
	if err != nil {
		return fail(StageInfer, err)
	}

	res, err := assembly.Assemble(batch.Vectors, out)
	if err != nil {
		return fail(StageAssemble, err)
	}
	ev.Predictions = len(res)
	ev.Duration = p.now().Sub(began)
	p.finish(ev)
	p.log.Debugw("forecast batch complete", map[string]any{
		"batch_id":      id,
		"start":         start.String(),
		"end":           end.String(),
		"stations":      stations,
		"records":       ev.Records,
		"vectors":       ev.Vectors,
		"imputed_cells": ev.ImputedCells,
		"duration_ms":   ev.Duration.Milliseconds(),
	})
	return ev, res, nil
}

func (p *Pipeline) finish(ev metrics.BatchEvent) {
	if err := p.metrics.RecordBatch(ev); err != nil {
		p.log.Warnf("batch %s: metrics: %v", ev.BatchID, err)
	}
	p.mu.RLock()
	bus := p.bus
	p.mu.RUnlock()
	if bus != nil {
		bus.Publish(ev)
	}
}

func (p *Pipeline) recordPredictions(id string, res []model.PredictionResult) {
	rec, ok := p.metrics.(metrics.PredictionRecorder)
	if !ok || len(res) == 0 {
		return
	}
	if err := rec.RecordPredictions(id, res); err != nil {
		p.log.Warnf("batch %s: record predictions: %v", id, err)
	}
}

func (p *Pipeline) recordStore(ev metrics.StoreEvent) {
	rec, ok := p.metrics.(metrics.StoreRecorder)
	if !ok {
		return
	}
	if err := rec.RecordStore(ev); err != nil {
		p.log.Warnf("batch %s: record store event: %v", ev.BatchID, err)
	}
}

func (p *Pipeline) appendRun(ctx context.Context, rec runlog.RunRecord) {
	runs := p.RunLog()
	if runs == nil {
		return
	}
	// The run is recorded even when ctx was cancelled mid-batch.
	if err := runs.Append(context.WithoutCancel(ctx), rec); err != nil {
		p.log.Warnf("batch %s: run log: %v", rec.BatchID, err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type triggerKey struct{}

// WithTrigger labels runs started from ctx, e.g. "api", "cron" or "cli".
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// TriggerFrom returns the label set by WithTrigger, or "".
func TriggerFrom(ctx context.Context) string {
	s, _ := ctx.Value(triggerKey{}).(string)
	return s
}
