package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/you/streamwatch/internal/lock"
)

type fakeLease struct {
	released chan struct{}
}

func (f *fakeLease) Release(context.Context) error {
	close(f.released)
	return nil
}

type fakeProvider struct {
	held       bool
	acquireErr error
	leases     []*fakeLease
}

func (f *fakeProvider) TryAcquire(context.Context, string, time.Duration, time.Duration) (lock.Lease, error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	if f.held {
		return nil, nil
	}
	lease := &fakeLease{released: make(chan struct{})}
	f.leases = append(f.leases, lease)
	return lease, nil
}

func TestAddRejectsBadCronSpec(t *testing.T) {
	h := New(&fakeProvider{}, prometheus.NewRegistry())
	err := h.Add(Job{Name: "bad", Spec: "not a cron spec", Run: func(context.Context) error { return nil }})
	if err == nil {
		t.Fatal("expected invalid cron spec to fail at Add")
	}
}

func TestAddRejectsMissingRunFunc(t *testing.T) {
	h := New(&fakeProvider{}, prometheus.NewRegistry())
	if err := h.Add(Job{Name: "norun", Spec: "* * * * *"}); err == nil {
		t.Fatal("expected job without run function to fail")
	}
}

func TestRunJobExecutesAndReleasesLock(t *testing.T) {
	provider := &fakeProvider{}
	h := New(provider, prometheus.NewRegistry())

	ran := false
	h.runJob(Job{Name: "work", Run: func(ctx context.Context) error {
		ran = true
		return nil
	}})

	if !ran {
		t.Fatal("expected job to run")
	}
	if len(provider.leases) != 1 {
		t.Fatalf("expected one lease, got %d", len(provider.leases))
	}
	select {
	case <-provider.leases[0].released:
	default:
		t.Fatal("lease was not released")
	}
	if got := testutil.ToFloat64(h.runsStarted.WithLabelValues("work")); got != 1 {
		t.Fatalf("runs started = %v, want 1", got)
	}
}

func TestRunJobSkipsWhenLockHeldElsewhere(t *testing.T) {
	provider := &fakeProvider{held: true}
	h := New(provider, prometheus.NewRegistry())

	h.runJob(Job{Name: "work", Run: func(context.Context) error {
		t.Fatal("job must not run while lock is held elsewhere")
		return nil
	}})

	if got := testutil.ToFloat64(h.runsSkipped.WithLabelValues("work")); got != 1 {
		t.Fatalf("runs skipped = %v, want 1", got)
	}
}

func TestRunJobRecordsLockErrors(t *testing.T) {
	provider := &fakeProvider{acquireErr: errors.New("db down")}
	h := New(provider, prometheus.NewRegistry())

	h.runJob(Job{Name: "work", Run: func(context.Context) error { return nil }})

	if got := testutil.ToFloat64(h.runsFailed.WithLabelValues("work")); got != 1 {
		t.Fatalf("runs failed = %v, want 1", got)
	}
}

func TestRunJobContainsErrorsAndReleases(t *testing.T) {
	provider := &fakeProvider{}
	h := New(provider, prometheus.NewRegistry())

	h.runJob(Job{Name: "work", Run: func(context.Context) error {
		return errors.New("boom")
	}})

	if got := testutil.ToFloat64(h.runsFailed.WithLabelValues("work")); got != 1 {
		t.Fatalf("runs failed = %v, want 1", got)
	}
	select {
	case <-provider.leases[0].released:
	default:
		t.Fatal("lease must be released after a failed run")
	}
}

func TestRunJobContainsPanics(t *testing.T) {
	provider := &fakeProvider{}
	h := New(provider, prometheus.NewRegistry())

	h.runJob(Job{Name: "work", Run: func(context.Context) error {
		panic("kaboom")
	}})

	if got := testutil.ToFloat64(h.runsFailed.WithLabelValues("work")); got != 1 {
		t.Fatalf("runs failed = %v, want 1", got)
	}
}

func TestRunJobAppliesRunTimeout(t *testing.T) {
	provider := &fakeProvider{}
	h := New(provider, prometheus.NewRegistry())

	var sawDeadline bool
	h.runJob(Job{Name: "work", RunTimeout: time.Minute, Run: func(ctx context.Context) error {
		_, sawDeadline = ctx.Deadline()
		return nil
	}})

	if !sawDeadline {
		t.Fatal("expected run context to carry a deadline")
	}
}

func TestStopReturnsWhenContextExpires(t *testing.T) {
	h := New(&fakeProvider{}, prometheus.NewRegistry())
	h.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		h.Stop(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
