// Package scheduler fires background jobs on cron schedules, one instance at
// a time across the fleet. Each tick acquires the job's distributed lock
// first and skips silently when another instance already runs it. Nothing a
// job does (errors, panics, cancellation) propagates past the harness; the
// next tick simply tries again.
package scheduler

import (
	"context"
	"log"
	"runtime/debug"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/you/streamwatch/internal/lock"
)

// Job is one scheduled unit of work.
type Job struct {
	Name       string
	Spec       string        // standard 5-field cron expression
	MaxHold    time.Duration // lock auto-expiry; bounds a crashed holder
	MinHold    time.Duration // floor against rapid re-triggering
	RunTimeout time.Duration // cancellation boundary for one run, 0 = none
	Run        func(ctx context.Context) error
}

// Harness owns the cron runner and the lock discipline around every job.
type Harness struct {
	cron  *cron.Cron
	locks lock.Provider

	runsStarted *prometheus.CounterVec
	runsSkipped *prometheus.CounterVec
	runsFailed  *prometheus.CounterVec
}

func New(locks lock.Provider, reg prometheus.Registerer) *Harness {
	h := &Harness{
		cron:  cron.New(),
		locks: locks,
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamwatch",
			Name:      "scheduler_runs_started_total",
			Help:      "Scheduled job runs that acquired the lock and started",
		}, []string{"job"}),
		runsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamwatch",
			Name:      "scheduler_runs_skipped_total",
			Help:      "Scheduled job ticks skipped because the lock was held elsewhere",
		}, []string{"job"}),
		runsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamwatch",
			Name:      "scheduler_runs_failed_total",
			Help:      "Scheduled job runs that returned an error or panicked",
		}, []string{"job"}),
	}
	if reg != nil {
		reg.MustRegister(h.runsStarted, h.runsSkipped, h.runsFailed)
	}
	return h
}

// Add registers a job. The cron spec is validated here so a bad expression
// fails at startup rather than silently never firing.
func (h *Harness) Add(job Job) error {
	if job.Run == nil {
		return errors.Errorf("job %s has no run function", job.Name)
	}
	_, err := h.cron.AddFunc(job.Spec, func() { h.runJob(job) })
	return errors.Wrapf(err, "schedule job %s", job.Name)
}

func (h *Harness) Start() { h.cron.Start() }

// Stop halts scheduling and waits for in-flight jobs to finish or ctx to
// expire, whichever comes first.
func (h *Harness) Stop(ctx context.Context) {
	done := h.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (h *Harness) runJob(job Job) {
	defer func() {
		if r := recover(); r != nil {
			h.runsFailed.WithLabelValues(job.Name).Inc()
			log.Printf("scheduler: job %s panicked: %v\n%s", job.Name, r, debug.Stack())
		}
	}()

	ctx := context.Background()
	if job.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.RunTimeout)
		defer cancel()
	}

	lease, err := h.locks.TryAcquire(ctx, job.Name, job.MaxHold, job.MinHold)
	if err != nil {
		h.runsFailed.WithLabelValues(job.Name).Inc()
		log.Printf("scheduler: job %s lock error: %v", job.Name, err)
		return
	}
	if lease == nil {
		h.runsSkipped.WithLabelValues(job.Name).Inc()
		return
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			log.Printf("scheduler: job %s release lock: %v", job.Name, err)
		}
	}()

	h.runsStarted.WithLabelValues(job.Name).Inc()
	start := time.Now()
	log.Printf("scheduler: job %s starting", job.Name)

	if err := job.Run(ctx); err != nil {
		h.runsFailed.WithLabelValues(job.Name).Inc()
		log.Printf("scheduler: job %s failed after %s: %v", job.Name, time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("scheduler: job %s finished in %s", job.Name, time.Since(start).Round(time.Millisecond))
}
