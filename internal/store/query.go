package store

import (
	"context"
	"strings"

	"github.com/you/streamwatch/internal/core"
	"github.com/you/streamwatch/internal/httpapi"
)

// ListEvents returns events matching the given filters, ordered by
// scheduled time.
func (s *Store) ListEvents(ctx context.Context, f httpapi.Filters) ([]*core.StreamingEvent, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT ` + eventColumns + ` FROM streaming_events`)

	var conds []string
	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.ArtistID != "" {
		conds = append(conds, "artist_id = ?")
		args = append(args, f.ArtistID)
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	if f.Order == httpapi.OrderAsc {
		sb.WriteString(" ORDER BY scheduled_at ASC, id ASC")
	} else {
		sb.WriteString(" ORDER BY scheduled_at DESC, id DESC")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	sb.WriteString(" LIMIT ?;")
	args = append(args, limit)

	return s.findAll(ctx, sb.String(), args...)
}
