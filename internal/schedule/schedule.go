// Package schedule runs the bot's background jobs on cron schedules and
// turns unexpected job failures into a process-level fatal signal.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"eventsbot/internal/errs"
	appLog "eventsbot/internal/log"
)

// Job is a named unit of background work.
type Job struct {
	Name string
	// Spec is a robfig/cron schedule, e.g. "@every 1h" or "0 * * * *".
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler owns the cron loop. Each job also runs once when the
// scheduler starts and never overlaps itself: a run that fires while the
// previous one is still going is skipped.
type Scheduler struct {
	ctx  context.Context
	cron *cron.Cron
	jobs map[string]cron.Job

	fatal chan *errs.FatalError

	mu   sync.RWMutex
	dead string
}

// New returns a Scheduler whose jobs receive ctx.
func New(ctx context.Context, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		ctx:   ctx,
		cron:  cron.New(cron.WithLocation(loc), cron.WithLogger(appLog.CronLogger())),
		jobs:  make(map[string]cron.Job),
		fatal: make(chan *errs.FatalError, 1),
	}
}

// Add registers job. It must be called before Start.
func (s *Scheduler) Add(job Job) error {
	sched, err := cron.ParseStandard(job.Spec)
	if err != nil {
		return fmt.Errorf("job %s: parse schedule %q: %w", job.Name, job.Spec, err)
	}
	wrapped := cron.NewChain(cron.SkipIfStillRunning(appLog.CronLogger())).
		Then(cron.FuncJob(func() { s.run(job) }))
	s.jobs[job.Name] = wrapped
	s.cron.Schedule(sched, wrapped)
	return nil
}

// Start runs every job once in the background and starts the cron loop.
func (s *Scheduler) Start() {
	for name, j := range s.jobs {
		appLog.Info("starting job", "job", name)
		go j.Run()
	}
	s.cron.Start()
}

// Stop halts the cron loop. The returned context is done once running
// jobs have returned.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Trigger runs the named job in the background outside its schedule. It
// reports false for an unknown job.
func (s *Scheduler) Trigger(name string) bool {
	j, ok := s.jobs[name]
	if !ok {
		return false
	}
	go j.Run()
	return true
}

// RunNow runs the named job in the calling goroutine.
func (s *Scheduler) RunNow(name string) bool {
	j, ok := s.jobs[name]
	if !ok {
		return false
	}
	j.Run()
	return true
}

// Fatal delivers the first fatal job failure.
func (s *Scheduler) Fatal() <-chan *errs.FatalError {
	return s.fatal
}

// Healthy reports whether every job is still alive, and otherwise the
// name of the job that died.
func (s *Scheduler) Healthy() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dead, s.dead == ""
}

func (s *Scheduler) run(job Job) {
	if _, ok := s.Healthy(); !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.die(&errs.FatalError{Job: job.Name, Panic: r})
		}
	}()

	start := time.Now()
	err := job.Run(s.ctx)
	switch {
	case err == nil:
		appLog.Debug("job finished", "job", job.Name, "duration", time.Since(start))
	case errors.Is(err, context.Canceled):
		appLog.Info("job canceled", "job", job.Name)
	case errs.IsTransient(err):
		appLog.Warn("job failed, retrying on next tick", "job", job.Name, "err", err)
	default:
		s.die(&errs.FatalError{Job: job.Name, Err: err})
	}
}

func (s *Scheduler) die(fe *errs.FatalError) {
	s.mu.Lock()
	first := s.dead == ""
	if first {
		s.dead = fe.Job
	}
	s.mu.Unlock()
	if !first {
		return
	}

	appLog.Error("job died", fe, "job", fe.Job)
	select {
	case s.fatal <- fe:
	default:
	}
	go s.cron.Stop()
}
