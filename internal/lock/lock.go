// Package lock provides cross-instance mutual exclusion for scheduled jobs.
// A job runs only while its named lock is held; a lock not explicitly
// released expires on its own at the maximum hold duration. The minimum hold
// duration keeps a second instance from re-triggering immediately after a
// fast run.
package lock

import (
	"context"
	"time"
)

// Lease is a held lock. Release is best-effort; an unreleased lease expires
// at the maximum hold duration.
type Lease interface {
	Release(ctx context.Context) error
}

// Provider hands out named leases. TryAcquire returns a nil Lease (and nil
// error) when another holder has the lock.
type Provider interface {
	TryAcquire(ctx context.Context, name string, maxHold, minHold time.Duration) (Lease, error)
}
