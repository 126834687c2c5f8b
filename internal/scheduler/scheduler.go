// Package scheduler drives the engine sweeps on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/microfin/internal/metrics"
)

// Job is a named unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry binds a job to a cron spec.
type Entry struct {
	Spec string
	Job  Job
}

// Params configure the scheduler. Location defaults to UTC.
type Params struct {
	Log      *logrus.Logger
	Metrics  *metrics.EngineMetrics
	Location *time.Location
	Entries  []Entry
}

// Scheduler runs jobs on their cron schedules. A job still running when its next tick
// arrives is skipped for that tick; a panicking job is recovered and logged.
type Scheduler struct {
	cron    *cron.Cron
	log     *logrus.Logger
	metrics *metrics.EngineMetrics
	jobs    map[string]Job

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// New registers every entry. It fails on duplicate job names or invalid specs.
func New(p Params) (*Scheduler, error) {
	if p.Log == nil {
		return nil, fmt.Errorf("logger required")
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := cronLogger{log: p.Log}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		log:     p.Log,
		metrics: p.Metrics,
		jobs:    make(map[string]Job, len(p.Entries)),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, entry := range p.Entries {
		job := entry.Job
		if job == nil {
			continue
		}
		if _, exists := s.jobs[job.Name()]; exists {
			cancel()
			return nil, fmt.Errorf("duplicate job %q", job.Name())
		}
		if _, err := s.cron.AddFunc(entry.Spec, func() { _ = s.run(s.ctx, job) }); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid schedule %q for job %q: %w", entry.Spec, job.Name(), err)
		}
		s.jobs[job.Name()] = job
	}
	return s, nil
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.log.WithField("jobs", s.Names()).Info("Scheduler started")
	s.cron.Start()
}

// Stop prevents new runs, cancels the context of running jobs and waits for them to return
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.once.Do(s.cancel)
	select {
	case <-done.Done():
		s.log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// RunNow runs the named job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(ctx, job)
}

// Names returns the registered job names in sorted order.
func (s *Scheduler) Names() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	entry := s.log.WithField("job", job.Name())
	entry.Debug("Job start")
	start := time.Now()
	err := job.Run(ctx)
	duration := time.Since(start)
	s.metrics.ObserveJob(job.Name(), duration, err)

	entry = entry.WithField("duration_ms", duration.Milliseconds())
	if err != nil {
		entry.WithError(err).Error("Job failed")
		return err
	}
	entry.Info("Job completed")
	return nil
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	log *logrus.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(fields(keysAndValues)).Error("cron: " + msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}
