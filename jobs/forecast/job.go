// Package forecast schedules recurring forecast batches.
package forecast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/YDUTSEVOLDN/Subway/core/logger"
	"github.com/YDUTSEVOLDN/Subway/core/model"
	"github.com/YDUTSEVOLDN/Subway/core/pipeline"
)

// TriggerCron tags runs started by the scheduler in the run log.
const TriggerCron = "cron"

// Runner executes and persists one forecast batch.
type Runner interface {
	RunAndStore(ctx context.Context, start, end model.Date, stations []string) (pipeline.Report, error)
}

// Options configure a Job.
type Options struct {
	// Spec is a five field cron expression or descriptor.
	Spec         string
	LookbackDays int
	Stations     []string
	Location     *time.Location
}

// Job runs the forecast window ending today on a cron schedule. Ticks that
// fire while a previous run is still going are skipped.
type Job struct {
	runner Runner
	opts   Options
	log    logger.Logger
	cron   *cron.Cron
	now    func() time.Time

	mu   sync.Mutex
	last *pipeline.Report
	// base is the context passed to Start; scheduled runs derive from it.
	base context.Context
}

// New parses opts.Spec and returns an idle Job.
func New(r Runner, opts Options, log logger.Logger) (*Job, error) {
	if r == nil {
		return nil, fmt.Errorf("forecast job: runner is required")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.LookbackDays < 0 {
		return nil, fmt.Errorf("forecast job: negative lookback %d", opts.LookbackDays)
	}
	log = logger.OrNop(log)
	j := &Job{runner: r, opts: opts, log: log, now: time.Now, base: context.Background()}
	j.cron = cron.New(
		cron.WithLocation(opts.Location),
		cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})),
	)
	if _, err := j.cron.AddFunc(opts.Spec, func() { j.tick(j.runContext()) }); err != nil {
		return nil, fmt.Errorf("forecast job: schedule %q: %w", opts.Spec, err)
	}
	return j, nil
}

// Window returns the inclusive date window for a run at now.
func (j *Job) Window(now time.Time) (model.Date, model.Date) {
	today := model.DateOf(now.In(j.opts.Location))
	return today.AddDays(-j.opts.LookbackDays), today
}

// RunOnce runs the current window immediately.
func (j *Job) RunOnce(ctx context.Context) (pipeline.Report, error) {
	start, end := j.Window(j.now())
	rep, err := j.runner.RunAndStore(pipeline.WithTrigger(ctx, TriggerCron), start, end, j.opts.Stations)
	if err != nil {
		return rep, err
	}
	j.mu.Lock()
	j.last = &rep
	j.mu.Unlock()
	return rep, nil
}

// Last returns the report of the most recent successful run.
func (j *Job) Last() (pipeline.Report, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.last == nil {
		return pipeline.Report{}, false
	}
	return *j.last, true
}

// Start runs the schedule until ctx is cancelled, then waits for a running
// batch to finish. Running batches see the cancellation through ctx.
func (j *Job) Start(ctx context.Context) {
	j.mu.Lock()
	j.base = ctx
	j.mu.Unlock()
	j.cron.Start()
	j.log.Infof("forecast schedule %q started, next run at %s", j.opts.Spec, j.Next().Format(time.RFC3339))
	<-ctx.Done()
	<-j.cron.Stop().Done()
	j.log.Infof("forecast schedule stopped")
}

// Next returns the next scheduled run time, or the zero time when stopped.
func (j *Job) Next() time.Time {
	entries := j.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if !entries[0].Next.IsZero() {
		return entries[0].Next
	}
	return entries[0].Schedule.Next(j.now().In(j.opts.Location))
}

func (j *Job) runContext() context.Context {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.base
}

func (j *Job) tick(ctx context.Context) {
	start := j.now()
	rep, err := j.RunOnce(ctx)
	if err != nil {
		j.log.Errorf("scheduled forecast failed: %v", err)
		return
	}
	j.log.Infof("scheduled forecast %s: %d predictions, %d stored in %s",
		rep.BatchID, len(rep.Predictions), rep.Stored, time.Since(start).Round(time.Millisecond))
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct{ l logger.Logger }

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debugw("cron: "+msg, fields(kv))
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Errorf("cron: %s: %v %v", msg, err, kv)
}

func fields(kv []any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return m
}
