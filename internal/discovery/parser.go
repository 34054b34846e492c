package discovery

import (
	"bytes"
	"encoding/json"
	"log"
	"time"

	"github.com/you/streamwatch/internal/core"
	"github.com/you/streamwatch/internal/youtube"
)

// ytDlpEntry is one video/stream record in yt-dlp JSON output.
type ytDlpEntry struct {
	ID                  string  `json:"id"`
	Title               string  `json:"title"`
	Description         string  `json:"description"`
	WebpageURL          string  `json:"webpage_url"`
	Thumbnail           string  `json:"thumbnail"`
	LiveStatus          string  `json:"live_status"`
	ReleaseTimestamp    *int64  `json:"release_timestamp"`
	Timestamp           *int64  `json:"timestamp"`
	UploadDate          string  `json:"upload_date"`
	Duration            *int64  `json:"duration"`
	ConcurrentViewCount *int64  `json:"concurrent_view_count"`
	ViewCount           *int64  `json:"view_count"`
}

type ytDlpPlaylist struct {
	Entries []*ytDlpEntry `json:"entries"`
}

// parseYtDlpOutput accepts either a single playlist object with an "entries"
// array or NDJSON with one entry per line.
func parseYtDlpOutput(output []byte) []*ytDlpEntry {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '{' && bytes.Contains(trimmed, []byte(`"entries"`)) {
		var playlist ytDlpPlaylist
		if err := json.Unmarshal(trimmed, &playlist); err != nil {
			log.Printf("discovery: failed to parse yt-dlp playlist output: %v", err)
			return nil
		}
		out := make([]*ytDlpEntry, 0, len(playlist.Entries))
		for _, entry := range playlist.Entries {
			if entry != nil {
				out = append(out, entry)
			}
		}
		return out
	}

	var out []*ytDlpEntry
	for _, line := range bytes.Split(trimmed, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var entry ytDlpEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			log.Printf("discovery: skipping malformed yt-dlp entry: %v", err)
			continue
		}
		out = append(out, &entry)
	}
	return out
}

// toCandidate converts a parsed entry into a discovery candidate. Entries
// without a resolvable video ID are dropped.
func (e *ytDlpEntry) toCandidate() (core.DiscoveryCandidate, bool) {
	videoID := e.ID
	if videoID == "" {
		videoID = youtube.ExtractVideoID(e.WebpageURL)
	}
	if videoID == "" {
		return core.DiscoveryCandidate{}, false
	}

	title := e.Title
	if title == "" {
		title = "Untitled Stream"
	}

	release := e.ReleaseTimestamp
	if release == nil {
		release = e.Timestamp
	}
	status := mapLiveStatus(e.LiveStatus, release)

	scheduledAt := epochTime(e.ReleaseTimestamp)
	if scheduledAt == nil {
		scheduledAt = epochTime(e.Timestamp)
	}
	if scheduledAt == nil {
		scheduledAt = parseUploadDate(e.UploadDate)
	}

	var startedAt *time.Time
	if status != core.StatusScheduled {
		startedAt = epochTime(e.Timestamp)
	}

	var endedAt *time.Time
	if status == core.StatusEnded && startedAt != nil && e.Duration != nil {
		t := startedAt.Add(time.Duration(*e.Duration) * time.Second)
		endedAt = &t
	}

	sourceURL := e.WebpageURL
	if sourceURL == "" {
		sourceURL = youtube.WatchURL(videoID)
	}

	return core.DiscoveryCandidate{
		Platform:     "YOUTUBE",
		ExternalID:   videoID,
		Title:        title,
		Description:  e.Description,
		StreamURL:    youtube.EmbedURL(videoID),
		SourceURL:    sourceURL,
		ThumbnailURL: e.Thumbnail,
		ScheduledAt:  scheduledAt,
		StartedAt:    startedAt,
		EndedAt:      endedAt,
		Status:       status,
		ViewerCount:  viewerCount(e),
	}, true
}

// mapLiveStatus maps yt-dlp live_status values. When live_status is absent
// the release timestamp decides: future means SCHEDULED, otherwise ENDED.
func mapLiveStatus(liveStatus string, releaseTimestamp *int64) core.StreamingStatus {
	switch liveStatus {
	case "is_live":
		return core.StatusLive
	case "is_upcoming":
		return core.StatusScheduled
	case "was_live":
		return core.StatusEnded
	}
	if liveStatus == "" && releaseTimestamp != nil {
		if time.Unix(*releaseTimestamp, 0).After(time.Now()) {
			return core.StatusScheduled
		}
	}
	return core.StatusEnded
}

func epochTime(seconds *int64) *time.Time {
	if seconds == nil {
		return nil
	}
	t := time.Unix(*seconds, 0).UTC()
	return &t
}

func parseUploadDate(uploadDate string) *time.Time {
	if len(uploadDate) != 8 {
		return nil
	}
	t, err := time.Parse("20060102", uploadDate)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func viewerCount(e *ytDlpEntry) *int {
	var raw *int64
	if e.ConcurrentViewCount != nil {
		raw = e.ConcurrentViewCount
	} else if e.ViewCount != nil {
		raw = e.ViewCount
	}
	if raw == nil {
		return nil
	}
	n := int(*raw)
	return &n
}
