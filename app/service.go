// Package app assembles the forecasting service from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/YDUTSEVOLDN/Subway/api"
	"github.com/YDUTSEVOLDN/Subway/app/plugins"
	"github.com/YDUTSEVOLDN/Subway/config"
	"github.com/YDUTSEVOLDN/Subway/core/features"
	"github.com/YDUTSEVOLDN/Subway/core/inference"
	coremetrics "github.com/YDUTSEVOLDN/Subway/core/metrics"
	"github.com/YDUTSEVOLDN/Subway/core/monitoring"
	"github.com/YDUTSEVOLDN/Subway/core/pipeline"
	"github.com/YDUTSEVOLDN/Subway/core/publish"
	"github.com/YDUTSEVOLDN/Subway/core/runlog"
	"github.com/YDUTSEVOLDN/Subway/infra/logger"
	"github.com/YDUTSEVOLDN/Subway/infra/metrics"
	inframon "github.com/YDUTSEVOLDN/Subway/infra/monitoring"
	"github.com/YDUTSEVOLDN/Subway/internal/eventbus"
	"github.com/YDUTSEVOLDN/Subway/jobs/forecast"
)

// Service owns the pipeline and every resource it was built from.
type Service struct {
	Pipeline *pipeline.Pipeline
	Store    Store

	cfg        *config.Config
	log        logger.Logger
	sink       coremetrics.MetricsSink
	bus        *eventbus.Bus[coremetrics.BatchEvent]
	monitor    monitoring.Monitor
	publishers []publish.Publisher
	runs       runlog.Store
}

// New opens the store, loads both regressors and builds the pipeline.
// Publishers are only created when withPublishers is set, so one-shot
// commands do not connect to brokers they never use.
func New(ctx context.Context, cfg *config.Config, withPublishers bool) (_ *Service, err error) {
	if err := logger.Configure(logger.Options{Level: cfg.Logging.Level, Console: cfg.Logging.Console}); err != nil {
		return nil, err
	}
	log := logger.New("service")
	log.Debugw("modules available", map[string]any{"modules": plugins.Available()})

	s := &Service{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if s.monitor, err = inframon.NewSentryMonitor(cfg.Sentry); err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	if s.Store, err = OpenStore(ctx, cfg.Database, logger.New("store")); err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
	}

	inbound, err := inference.NewRegressor(cfg.Models.Inbound)
	if err != nil {
		return nil, fmt.Errorf("inbound model: %w", err)
	}
	outbound, err := inference.NewRegressor(cfg.Models.Outbound)
	if err != nil {
		return nil, fmt.Errorf("outbound model: %w", err)
	}
	engine, err := inference.NewEngine(inbound, outbound, features.Width, logger.New("inference"))
	if err != nil {
		return nil, err
	}
	builder, err := features.NewBuilder(cfg.Features, logger.New("features"))
	if err != nil {
		return nil, err
	}

	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if s.runs, err = runlog.New(cfg.RunLog); err != nil {
		return nil, err
	}

	p, err := pipeline.New(s.Store, builder, engine, logger.New("pipeline"), s.sink)
	if err != nil {
		return nil, err
	}
	p.SetMonitor(s.monitor)
	p.SetStore(s.Store)
	if s.runs != nil {
		p.SetRunLog(s.runs)
	}
	s.bus = eventbus.New[coremetrics.BatchEvent]()
	p.SetEventBus(s.bus)

	if withPublishers {
		if s.publishers, err = publish.NewAll(cfg.Publish.Sinks); err != nil {
			return nil, err
		}
		p.SetPublishers(s.publishers)
	}
	s.Pipeline = p
	return s, nil
}

// Router returns the HTTP API bound to this service.
func (s *Service) Router() http.Handler {
	deps := api.Deps{
		Forecaster:  s.Pipeline,
		Catalog:     s.Store,
		Predictions: s.Store,
		CORSOrigins: s.cfg.HTTP.CORSOrigins,
		Log:         logger.New("api"),
	}
	if s.runs != nil {
		deps.Runs = s.runs
	}
	return api.NewRouter(deps)
}

// Run serves the HTTP API and, when enabled, the forecast schedule until ctx
// is cancelled.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	collected := metrics.StartEventCollector(ctx, s.bus, batchLog{log: logger.New("batches")}, s.log)

	srv := &http.Server{Addr: s.cfg.HTTP.Address, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error {
		s.log.Infof("HTTP API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if s.cfg.Metrics.HasSink("prometheus") && s.cfg.Metrics.PrometheusPort != "" {
		g.Go(func() error { return metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort) })
	}

	if s.cfg.Schedule.Enabled {
		job, err := s.ForecastJob()
		if err != nil {
			return err
		}
		g.Go(func() error {
			job.Start(ctx)
			return nil
		})
	}

	err := g.Wait()
	<-collected
	return err
}

// ForecastJob builds the scheduled forecast job from the schedule section.
func (s *Service) ForecastJob() (*forecast.Job, error) {
	sc := s.cfg.Schedule
	loc, err := time.LoadLocation(sc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}
	return forecast.New(s.Pipeline, forecast.Options{
		Spec:         sc.Cron,
		LookbackDays: sc.LookbackDays,
		Stations:     sc.Stations,
		Location:     loc,
	}, logger.New("scheduler"))
}

// Close releases every resource in reverse order of creation.
func (s *Service) Close() error {
	var errs []error
	if len(s.publishers) > 0 {
		errs = append(errs, publish.CloseAll(s.publishers))
	}
	if s.bus != nil {
		s.bus.Close()
	}
	if s.sink != nil {
		errs = append(errs, coremetrics.Close(s.sink))
	}
	if s.runs != nil {
		errs = append(errs, s.runs.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	if s.monitor != nil {
		s.monitor.Flush(2 * time.Second)
	}
	return errors.Join(errs...)
}

// batchLog writes one info line per finished batch.
type batchLog struct{ log logger.Logger }

func (b batchLog) RecordBatch(ev coremetrics.BatchEvent) error {
	if ev.Failed() {
		b.log.Warnf("batch %s %s..%s failed at %s after %s: %s",
			ev.BatchID, ev.Start, ev.End, ev.Stage, ev.Duration.Round(time.Millisecond), ev.Err)
		return nil
	}
	b.log.Infof("batch %s %s..%s: %d records, %d predictions, %d imputed cells in %s",
		ev.BatchID, ev.Start, ev.End, ev.Records, ev.Predictions, ev.ImputedCells, ev.Duration.Round(time.Millisecond))
	return nil
}
