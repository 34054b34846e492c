package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/you/streamwatch/internal/core"
)

// ListActiveChannels returns every channel eligible for a discovery pass.
func (s *Store) ListActiveChannels(ctx context.Context) ([]core.ArtistChannel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_handle, artist_id, platform, active, last_crawled_at
		 FROM artist_channels WHERE active = 1 ORDER BY channel_handle;`)
	if err != nil {
		return nil, errors.Wrap(err, "list channels")
	}
	defer rows.Close()

	var out []core.ArtistChannel
	for rows.Next() {
		var (
			ch      core.ArtistChannel
			active  int
			crawled sql.NullString
		)
		if err := rows.Scan(&ch.ChannelHandle, &ch.ArtistID, &ch.Platform, &active, &crawled); err != nil {
			return nil, errors.Wrap(err, "scan channel")
		}
		ch.Active = active != 0
		ch.LastCrawledAt = parseTimePtr(crawled)
		out = append(out, ch)
	}
	return out, errors.Wrap(rows.Err(), "iterate channels")
}

// UpsertChannel creates or updates a channel row keyed by handle.
func (s *Store) UpsertChannel(ctx context.Context, ch core.ArtistChannel) error {
	const q = `INSERT INTO artist_channels (channel_handle, artist_id, platform, active)
VALUES (?, ?, ?, ?)
ON CONFLICT(channel_handle) DO UPDATE SET
  artist_id=excluded.artist_id, platform=excluded.platform, active=excluded.active;`
	active := 0
	if ch.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx, q, ch.ChannelHandle, ch.ArtistID, ch.Platform, active)
	return errors.Wrap(err, "upsert channel")
}

// MarkChannelsCrawled stamps last_crawled_at for the given handles in one
// transaction. Called once per discovery pass with the channels that
// completed successfully.
func (s *Store) MarkChannelsCrawled(ctx context.Context, handles []string, at time.Time) error {
	if len(handles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	stamped := fmtTime(at)
	for _, handle := range handles {
		if _, err := tx.ExecContext(ctx,
			`UPDATE artist_channels SET last_crawled_at = ? WHERE channel_handle = ?;`,
			stamped, handle); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "mark crawled %s", handle)
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}
