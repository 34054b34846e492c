package lock

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SQLProvider implements row-based locking against the scheduler_locks table.
// Acquisition is a conditional update of an expired row (or a fresh insert),
// so any database shared by the fleet gives single-flight execution.
type SQLProvider struct {
	db    *sql.DB
	owner string
}

func NewSQLProvider(db *sql.DB) *SQLProvider {
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown"
	}
	return &SQLProvider{db: db, owner: host + "/" + uuid.NewString()}
}

func (p *SQLProvider) TryAcquire(ctx context.Context, name string, maxHold, minHold time.Duration) (Lease, error) {
	now := time.Now().UTC()
	until := now.Add(maxHold)

	// Take over an expired row first.
	res, err := p.db.ExecContext(ctx,
		`UPDATE scheduler_locks SET lock_until = ?, locked_at = ?, locked_by = ?
		 WHERE name = ? AND lock_until <= ?;`,
		fmtTime(until), fmtTime(now), p.owner, name, fmtTime(now))
	if err != nil {
		return nil, errors.Wrap(err, "steal lock")
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return &sqlLease{provider: p, name: name, lockedAt: now, minHold: minHold}, nil
	}

	// No expired row: insert a fresh one. A conflict means someone holds it.
	res, err = p.db.ExecContext(ctx,
		`INSERT INTO scheduler_locks (name, lock_until, locked_at, locked_by)
		 VALUES (?, ?, ?, ?) ON CONFLICT(name) DO NOTHING;`,
		name, fmtTime(until), fmtTime(now), p.owner)
	if err != nil {
		return nil, errors.Wrap(err, "insert lock")
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return &sqlLease{provider: p, name: name, lockedAt: now, minHold: minHold}, nil
	}
	return nil, nil
}

type sqlLease struct {
	provider *SQLProvider
	name     string
	lockedAt time.Time
	minHold  time.Duration
}

// Release ends the lease but keeps the row blocking until the minimum hold
// has elapsed since acquisition.
func (l *sqlLease) Release(ctx context.Context) error {
	until := time.Now().UTC()
	if floor := l.lockedAt.Add(l.minHold); floor.After(until) {
		until = floor
	}
	_, err := l.provider.db.ExecContext(ctx,
		`UPDATE scheduler_locks SET lock_until = ? WHERE name = ? AND locked_by = ?;`,
		fmtTime(until), l.name, l.provider.owner)
	return errors.Wrap(err, "release lock")
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
