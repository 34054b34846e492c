package store

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/you/streamwatch/internal/core"
)

const schema = `CREATE TABLE IF NOT EXISTS streaming_events (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  platform TEXT NOT NULL DEFAULT '',
  external_id TEXT NOT NULL DEFAULT '',
  stream_url TEXT NOT NULL,
  source_url TEXT NOT NULL DEFAULT '',
  thumbnail_url TEXT NOT NULL DEFAULT '',
  artist_id TEXT NOT NULL,
  scheduled_at TEXT NOT NULL,
  started_at TEXT,
  ended_at TEXT,
  status TEXT NOT NULL DEFAULT 'SCHEDULED',
  viewer_count INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_platform_external
  ON streaming_events (platform, external_id) WHERE external_id <> '';
CREATE INDEX IF NOT EXISTS idx_events_stream_url ON streaming_events (stream_url);
CREATE INDEX IF NOT EXISTS idx_events_status ON streaming_events (status);

CREATE TABLE IF NOT EXISTS artist_channels (
  channel_handle TEXT PRIMARY KEY,
  artist_id TEXT NOT NULL,
  platform TEXT NOT NULL DEFAULT 'YOUTUBE',
  active INTEGER NOT NULL DEFAULT 1,
  last_crawled_at TEXT
);

CREATE TABLE IF NOT EXISTS scheduler_locks (
  name TEXT PRIMARY KEY,
  lock_until TEXT NOT NULL,
  locked_at TEXT NOT NULL,
  locked_by TEXT NOT NULL
);`

// Store persists streaming events and artist channels in SQLite.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=wal;`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "set WAL")
	}
	ApplyTuningPragmas(context.Background(), db)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping() error { return s.db.Ping() }

// DB exposes the underlying handle so the SQL lock provider can share the
// same database file.
func (s *Store) DB() *sql.DB { return s.db }

const eventColumns = `id, title, description, platform, external_id, stream_url, source_url,
thumbnail_url, artist_id, scheduled_at, started_at, ended_at, status, viewer_count, created_at`

// Save writes the event, assigning an ID and creation time on first save.
func (s *Store) Save(ctx context.Context, ev *core.StreamingEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO streaming_events (` + eventColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  title=excluded.title, description=excluded.description, platform=excluded.platform,
  external_id=excluded.external_id, stream_url=excluded.stream_url, source_url=excluded.source_url,
  thumbnail_url=excluded.thumbnail_url, artist_id=excluded.artist_id,
  scheduled_at=excluded.scheduled_at, started_at=excluded.started_at, ended_at=excluded.ended_at,
  status=excluded.status, viewer_count=excluded.viewer_count;`
	_, err := s.db.ExecContext(ctx, q,
		ev.ID, ev.Title, ev.Description, ev.Platform, ev.ExternalID, ev.StreamURL, ev.SourceURL,
		ev.ThumbnailURL, ev.ArtistID, fmtTime(ev.ScheduledAt), fmtTimePtr(ev.StartedAt),
		fmtTimePtr(ev.EndedAt), string(ev.Status), ev.ViewerCount, fmtTime(ev.CreatedAt))
	return errors.Wrap(err, "save event")
}

func (s *Store) FindByID(ctx context.Context, id string) (*core.StreamingEvent, error) {
	return s.findOne(ctx, `SELECT `+eventColumns+` FROM streaming_events WHERE id = ?;`, id)
}

func (s *Store) FindByPlatformAndExternalID(ctx context.Context, platform, externalID string) (*core.StreamingEvent, error) {
	return s.findOne(ctx,
		`SELECT `+eventColumns+` FROM streaming_events WHERE platform = ? AND external_id = ? AND external_id <> '';`,
		platform, externalID)
}

func (s *Store) FindByStreamURL(ctx context.Context, streamURL string) (*core.StreamingEvent, error) {
	return s.findOne(ctx, `SELECT `+eventColumns+` FROM streaming_events WHERE stream_url = ? LIMIT 1;`, streamURL)
}

func (s *Store) FindByStatus(ctx context.Context, status core.StreamingStatus) ([]*core.StreamingEvent, error) {
	return s.findAll(ctx,
		`SELECT `+eventColumns+` FROM streaming_events WHERE status = ? ORDER BY scheduled_at;`, string(status))
}

func (s *Store) FindByStatusNot(ctx context.Context, status core.StreamingStatus) ([]*core.StreamingEvent, error) {
	return s.findAll(ctx,
		`SELECT `+eventColumns+` FROM streaming_events WHERE status <> ? ORDER BY scheduled_at;`, string(status))
}

func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM streaming_events;`).Scan(&n)
	return n, errors.Wrap(err, "count events")
}

func (s *Store) findOne(ctx context.Context, query string, args ...any) (*core.StreamingEvent, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan event")
	}
	return ev, nil
}

func (s *Store) findAll(ctx context.Context, query string, args ...any) ([]*core.StreamingEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query events")
	}
	defer rows.Close()

	var out []*core.StreamingEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, ev)
	}
	return out, errors.Wrap(rows.Err(), "iterate events")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*core.StreamingEvent, error) {
	var (
		ev                             core.StreamingEvent
		scheduledAt, createdAt, status string
		startedAt, endedAt             sql.NullString
	)
	if err := row.Scan(&ev.ID, &ev.Title, &ev.Description, &ev.Platform, &ev.ExternalID,
		&ev.StreamURL, &ev.SourceURL, &ev.ThumbnailURL, &ev.ArtistID, &scheduledAt,
		&startedAt, &endedAt, &status, &ev.ViewerCount, &createdAt); err != nil {
		return nil, err
	}
	ev.ScheduledAt = parseTime(scheduledAt)
	ev.CreatedAt = parseTime(createdAt)
	ev.StartedAt = parseTimePtr(startedAt)
	ev.EndedAt = parseTimePtr(endedAt)
	st, err := core.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	ev.Status = st
	return &ev, nil
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t := parseTime(raw.String)
	return &t
}
