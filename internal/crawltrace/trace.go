package crawltrace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
)

// Stage represents a pipeline stage a discovered candidate passes through.
type Stage string

const (
	StageSeenFromBackend Stage = "seen_from_backend"
	StageMatchedExisting Stage = "matched_existing"
	StageCreatedNew      Stage = "created_new"
	StageSaved           Stage = "saved"

	StageDroppedPrefix = "dropped_"
)

// StageDropped creates a Stage for a dropped candidate with the given reason.
func StageDropped(reason string) Stage {
	return Stage(fmt.Sprintf("%s%s", StageDroppedPrefix, reason))
}

// CandidateTrace captures trace metadata for one discovered stream candidate
// as it moves through the crawl pipeline.
type CandidateTrace struct {
	Platform string
	Handle   string
	VideoID  string
	Title    string
	TraceID  string

	mu       sync.Mutex
	counters map[Stage]int64
}

// NewTrace constructs a trace from candidate metadata and seeds the
// seen_from_backend counter.
func NewTrace(platform, handle, videoID, title string) *CandidateTrace {
	trace := &CandidateTrace{
		Platform: platform,
		Handle:   handle,
		VideoID:  videoID,
		Title:    title,
		TraceID:  computeTraceID(platform, handle, videoID, title),
		counters: make(map[Stage]int64),
	}

	trace.counters[StageSeenFromBackend] = 1
	return trace
}

// IncCounter increments the counter for the provided stage and returns the
// updated value.
func (t *CandidateTrace) IncCounter(stage Stage) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counters[stage]++
	return t.counters[stage]
}

// LogTrace logs the trace metadata and counters using structured logging.
func (t *CandidateTrace) LogTrace(logger *slog.Logger, msg string) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info(msg,
		"trace_id", t.TraceID,
		"platform", t.Platform,
		"handle", t.Handle,
		"video_id", t.VideoID,
		"title", t.Title,
		"counters", t.snapshotCounters(),
	)
}

func (t *CandidateTrace) snapshotCounters() map[Stage]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	copy := make(map[Stage]int64, len(t.counters))
	for stage, count := range t.counters {
		copy[stage] = count
	}

	return copy
}

func computeTraceID(platform, handle, videoID, title string) string {
	digest := sha256.Sum256([]byte(platform + "\x1f" + handle + "\x1f" + videoID + "\x1f" + title))
	return hex.EncodeToString(digest[:])
}
