package discovery

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/you/streamwatch/internal/core"
)

// EventStore is the persistence surface the reconciler needs. Matching and
// creation are read-then-write; the scheduler's distributed lock keeps two
// discovery runs from racing a double-create.
type EventStore interface {
	FindByPlatformAndExternalID(ctx context.Context, platform, externalID string) (*core.StreamingEvent, error)
	FindByStreamURL(ctx context.Context, streamURL string) (*core.StreamingEvent, error)
	Save(ctx context.Context, ev *core.StreamingEvent) error
}

// Reconciler matches a discovered candidate to an existing event (or creates
// one) and applies the status-aware merge.
type Reconciler struct {
	store EventStore
}

func NewReconciler(store EventStore) *Reconciler {
	return &Reconciler{store: store}
}

// Upsert applies one candidate for the given artist and returns the saved
// event. Malformed candidates and store failures surface as errors; the
// caller records them and moves on.
func (r *Reconciler) Upsert(ctx context.Context, artistID string, cand core.DiscoveryCandidate) (*core.StreamingEvent, error) {
	if cand.StreamURL == "" {
		return nil, errors.New("candidate missing stream url")
	}

	existing, err := r.match(ctx, cand)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		return r.create(ctx, artistID, cand)
	}
	return r.merge(ctx, existing, cand)
}

// match looks up by (platform, externalId) first and falls back to the
// stream URL.
func (r *Reconciler) match(ctx context.Context, cand core.DiscoveryCandidate) (*core.StreamingEvent, error) {
	if cand.ExternalID != "" {
		ev, err := r.store.FindByPlatformAndExternalID(ctx, cand.Platform, cand.ExternalID)
		if err != nil {
			return nil, errors.Wrap(err, "find by external id")
		}
		if ev != nil {
			return ev, nil
		}
	}
	ev, err := r.store.FindByStreamURL(ctx, cand.StreamURL)
	if err != nil {
		return nil, errors.Wrap(err, "find by stream url")
	}
	return ev, nil
}

func (r *Reconciler) create(ctx context.Context, artistID string, cand core.DiscoveryCandidate) (*core.StreamingEvent, error) {
	scheduledAt := cand.ScheduledAt
	if scheduledAt == nil {
		scheduledAt = cand.StartedAt
	}
	if scheduledAt == nil {
		scheduledAt = cand.EndedAt
	}
	if scheduledAt == nil {
		return nil, errors.New("candidate missing scheduled time")
	}

	ev := &core.StreamingEvent{
		Title:        cand.Title,
		Description:  cand.Description,
		Platform:     cand.Platform,
		ExternalID:   cand.ExternalID,
		StreamURL:    cand.StreamURL,
		SourceURL:    cand.SourceURL,
		ThumbnailURL: cand.ThumbnailURL,
		ArtistID:     artistID,
		ScheduledAt:  scheduledAt.UTC(),
		Status:       core.StatusScheduled,
		CreatedAt:    time.Now().UTC(),
	}
	// New events start SCHEDULED and advance through the same merge step a
	// re-discovered event would take, so LIVE/ENDED candidates land with
	// their timestamps populated.
	ev.ApplyDiscoveryStatus(cand.Status, nil, cand.StartedAt, cand.EndedAt)
	if cand.ViewerCount != nil {
		if err := ev.UpdateViewerCount(*cand.ViewerCount); err != nil {
			return nil, err
		}
	}

	if err := r.store.Save(ctx, ev); err != nil {
		return nil, errors.Wrap(err, "create event")
	}
	return ev, nil
}

func (r *Reconciler) merge(ctx context.Context, ev *core.StreamingEvent, cand core.DiscoveryCandidate) (*core.StreamingEvent, error) {
	if cand.Title != "" {
		ev.UpdateMetadata(cand.Title, cand.ThumbnailURL)
	}
	ev.UpdateDescription(cand.Description)
	ev.UpdateSourceIdentity(cand.Platform, cand.ExternalID)
	ev.UpdateSourceURL(cand.SourceURL)
	ev.ApplyDiscoveryStatus(cand.Status, cand.ScheduledAt, cand.StartedAt, cand.EndedAt)
	if cand.ViewerCount != nil {
		if err := ev.UpdateViewerCount(*cand.ViewerCount); err != nil {
			return nil, err
		}
	}

	if err := r.store.Save(ctx, ev); err != nil {
		return nil, errors.Wrap(err, "update event")
	}
	return ev, nil
}
