package core

import (
	"fmt"
	"strings"
	"time"
)

// StreamingStatus is the lifecycle state of a StreamingEvent. Status only
// moves forward: SCHEDULED -> LIVE -> ENDED.
type StreamingStatus string

const (
	StatusScheduled StreamingStatus = "SCHEDULED"
	StatusLive      StreamingStatus = "LIVE"
	StatusEnded     StreamingStatus = "ENDED"
)

// ParseStatus converts a stored status string back into a StreamingStatus.
func ParseStatus(raw string) (StreamingStatus, error) {
	switch StreamingStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusScheduled:
		return StatusScheduled, nil
	case StatusLive:
		return StatusLive, nil
	case StatusEnded:
		return StatusEnded, nil
	}
	return "", fmt.Errorf("core: unknown streaming status %q", raw)
}

// StreamingEvent is the reconciled record of one live-stream occurrence.
// Identity is the opaque ID assigned at creation; (Platform, ExternalID) and
// StreamURL are natural keys used for matching only.
type StreamingEvent struct {
	ID           string
	Title        string
	Description  string
	Platform     string
	ExternalID   string
	StreamURL    string
	SourceURL    string
	ThumbnailURL string
	ArtistID     string
	ScheduledAt  time.Time
	StartedAt    *time.Time
	EndedAt      *time.Time
	Status       StreamingStatus
	ViewerCount  int
	CreatedAt    time.Time
}

// GoLive transitions a SCHEDULED event to LIVE. Direct callers only; the
// discovery merge path uses ApplyDiscoveryStatus instead.
func (e *StreamingEvent) GoLive(now time.Time) error {
	if e.Status != StatusScheduled {
		return fmt.Errorf("core: cannot go live from status %s", e.Status)
	}
	e.Status = StatusLive
	t := now
	e.StartedAt = &t
	return nil
}

// End transitions a LIVE event to ENDED.
func (e *StreamingEvent) End(now time.Time) error {
	if e.Status != StatusLive {
		return fmt.Errorf("core: cannot end from status %s", e.Status)
	}
	e.Status = StatusEnded
	t := now
	e.EndedAt = &t
	return nil
}

// UpdateMetadata absorbs a title/thumbnail refresh. An empty thumbnail never
// clears an existing one. Returns true when anything changed.
func (e *StreamingEvent) UpdateMetadata(title, thumbnailURL string) bool {
	changed := false
	if title != "" && title != e.Title {
		e.Title = title
		changed = true
	}
	if thumbnailURL != "" && thumbnailURL != e.ThumbnailURL {
		e.ThumbnailURL = thumbnailURL
		changed = true
	}
	return changed
}

// UpdateDescription replaces the description when the new value is non-blank.
func (e *StreamingEvent) UpdateDescription(description string) {
	if strings.TrimSpace(description) != "" {
		e.Description = description
	}
}

// UpdateSourceIdentity backfills platform/externalId from discovery. Existing
// non-empty values are never reduced.
func (e *StreamingEvent) UpdateSourceIdentity(platform, externalID string) {
	if e.Platform == "" && platform != "" {
		e.Platform = platform
	}
	if e.ExternalID == "" && externalID != "" {
		e.ExternalID = externalID
	}
}

// UpdateSourceURL backfills the original discovery URL.
func (e *StreamingEvent) UpdateSourceURL(sourceURL string) {
	if e.SourceURL == "" && sourceURL != "" {
		e.SourceURL = sourceURL
	}
}

// UpdateViewerCount sets the viewer count. Negative counts are rejected.
func (e *StreamingEvent) UpdateViewerCount(count int) error {
	if count < 0 {
		return fmt.Errorf("core: viewer count cannot be negative: %d", count)
	}
	e.ViewerCount = count
	return nil
}

// ApplyDiscoveryStatus merges the status and timing hints of a discovered
// candidate into the event. Unlike GoLive/End it is permissive: repeated or
// stale candidates never error, and status never moves backward. ENDED is
// terminal and absorbed unconditionally.
func (e *StreamingEvent) ApplyDiscoveryStatus(target StreamingStatus, scheduledAt, startedAt, endedAt *time.Time) {
	// Schedules can shift while an event is still upcoming.
	if scheduledAt != nil {
		e.ScheduledAt = *scheduledAt
	}

	switch target {
	case StatusScheduled:
		// Never regress LIVE/ENDED back to SCHEDULED. Timing hints are still
		// absorbed to cover backend races where a scheduled poll carries
		// stale start/end timestamps.
		e.absorbStartedAt(startedAt)
		e.absorbEndedAt(endedAt)

	case StatusLive:
		if e.Status == StatusScheduled {
			e.Status = StatusLive
			if startedAt != nil {
				e.StartedAt = copyTime(startedAt)
			} else {
				now := time.Now().UTC()
				e.StartedAt = &now
			}
			return
		}
		e.absorbStartedAt(startedAt)

	case StatusEnded:
		e.absorbStartedAt(startedAt)
		e.absorbEndedAt(endedAt)
		if e.Status != StatusEnded {
			e.Status = StatusEnded
			if e.EndedAt == nil {
				now := time.Now().UTC()
				e.EndedAt = &now
			}
		}
	}
}

func (e *StreamingEvent) absorbStartedAt(startedAt *time.Time) {
	if startedAt != nil && e.StartedAt == nil {
		e.StartedAt = copyTime(startedAt)
	}
}

func (e *StreamingEvent) absorbEndedAt(endedAt *time.Time) {
	if endedAt != nil && e.EndedAt == nil {
		e.EndedAt = copyTime(endedAt)
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
