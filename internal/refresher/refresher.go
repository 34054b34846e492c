package refresher

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/you/streamwatch/internal/core"
	"github.com/you/streamwatch/internal/youtube"
)

// MetadataSource fetches display metadata for a video ID. Failures carry a
// youtube.ErrorKind classification.
type MetadataSource interface {
	FetchMetadata(ctx context.Context, videoID string) (*youtube.Metadata, error)
}

// Store is the persistence surface the refresher needs.
type Store interface {
	FindByID(ctx context.Context, id string) (*core.StreamingEvent, error)
	FindByStatus(ctx context.Context, status core.StreamingStatus) ([]*core.StreamingEvent, error)
	FindByStatusNot(ctx context.Context, status core.StreamingStatus) ([]*core.StreamingEvent, error)
	Save(ctx context.Context, ev *core.StreamingEvent) error
}

// Options tune batching against the metadata backend.
type Options struct {
	BatchSize  int           // default 50
	BatchDelay time.Duration // pause between batches, default 1s
}

// Refresher updates display-only fields (title, thumbnail) for stored events
// without touching status or timestamps.
type Refresher struct {
	store   Store
	source  MetadataSource
	metrics *Metrics
	opts    Options
}

func New(store Store, source MetadataSource, metrics *Metrics, opts Options) *Refresher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = 0
	}
	return &Refresher{store: store, source: source, metrics: metrics, opts: opts}
}

// RefreshLive refreshes metadata for LIVE events only. Cheap, run frequently.
func (r *Refresher) RefreshLive(ctx context.Context) (core.RefreshResult, error) {
	events, err := r.store.FindByStatus(ctx, core.StatusLive)
	if err != nil {
		return core.RefreshResult{}, errors.Wrap(err, "list live events")
	}
	log.Printf("refresher: starting LIVE refresh for %d events", len(events))
	return r.refreshEvents(ctx, events), nil
}

// RefreshAll refreshes every event that has not ended yet. Exhaustive, run
// occasionally.
func (r *Refresher) RefreshAll(ctx context.Context) (core.RefreshResult, error) {
	events, err := r.store.FindByStatusNot(ctx, core.StatusEnded)
	if err != nil {
		return core.RefreshResult{}, errors.Wrap(err, "list events")
	}
	log.Printf("refresher: starting full refresh for %d events", len(events))
	return r.refreshEvents(ctx, events), nil
}

// RefreshEvent refreshes a single event by ID. Used by the admin API.
func (r *Refresher) RefreshEvent(ctx context.Context, id string) (bool, error) {
	ev, err := r.store.FindByID(ctx, id)
	if err != nil {
		return false, errors.Wrap(err, "find event")
	}
	if ev == nil {
		return false, errors.Errorf("event not found: %s", id)
	}
	outcome := r.refreshOne(ctx, ev)
	if outcome.err != nil {
		return false, outcome.err
	}
	return outcome.updated, nil
}

type outcome struct {
	updated bool
	skipped bool // not-found/private: business as usual
	err     error
}

// refreshEvents walks the events in batches. A Forbidden (quota) response
// trips a run-scoped breaker: every remaining event counts as failed and no
// further backend calls are made this pass. Rate-limit hints stretch the
// pause before the next batch.
func (r *Refresher) refreshEvents(ctx context.Context, events []*core.StreamingEvent) core.RefreshResult {
	result := core.RefreshResult{Total: len(events)}

	tripped := false
	extraDelay := time.Duration(0)

	for i, ev := range events {
		if tripped {
			result.Failed++
			continue
		}
		if ctx.Err() != nil {
			result.Failed++
			continue
		}

		out := r.refreshOne(ctx, ev)
		switch {
		case out.err != nil:
			result.Failed++
			if r.metrics != nil {
				r.metrics.EventsFailed.Inc()
			}
			switch youtube.KindOf(out.err) {
			case youtube.KindForbidden:
				log.Printf("refresher: quota exhausted at event %s, abandoning remainder of run", ev.ID)
				tripped = true
			case youtube.KindRateLimited:
				if hint := youtube.RetryAfterOf(out.err); hint > extraDelay {
					extraDelay = hint
				}
				log.Printf("refresher: rate limited on event %s, deferring", ev.ID)
			default:
				log.Printf("refresher: event %s failed: %v", ev.ID, out.err)
			}
		case out.updated:
			result.Updated++
			if r.metrics != nil {
				r.metrics.EventsUpdated.Inc()
			}
		case out.skipped:
			// Gone or private: nothing to refresh, not a failure.
		}

		if r.opts.BatchDelay > 0 && (i+1)%r.opts.BatchSize == 0 && i+1 < len(events) && !tripped {
			delay := r.opts.BatchDelay + extraDelay
			extraDelay = 0
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}

	log.Printf("refresher: run complete: total=%d updated=%d failed=%d",
		result.Total, result.Updated, result.Failed)
	return result
}

// refreshOne fetches metadata for one event and writes it back only when
// something changed.
func (r *Refresher) refreshOne(ctx context.Context, ev *core.StreamingEvent) outcome {
	videoID := ev.ExternalID
	if videoID == "" {
		videoID = youtube.ExtractVideoID(ev.StreamURL)
	}
	if videoID == "" {
		return outcome{err: errors.Errorf("no video id derivable from %s", ev.StreamURL)}
	}

	meta, err := r.source.FetchMetadata(ctx, videoID)
	if err != nil {
		if youtube.KindOf(err) == youtube.KindNotFound {
			log.Printf("refresher: video %s gone or private, skipping event %s", videoID, ev.ID)
			return outcome{skipped: true}
		}
		return outcome{err: err}
	}

	if !ev.UpdateMetadata(meta.Title, meta.ThumbnailURL) {
		return outcome{}
	}
	if err := r.store.Save(ctx, ev); err != nil {
		return outcome{err: errors.Wrap(err, "save event")}
	}
	return outcome{updated: true}
}
