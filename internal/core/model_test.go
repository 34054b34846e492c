package core

import (
	"testing"
	"time"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tsp(s string) *time.Time {
	t := ts(s)
	return &t
}

func TestParseStatus(t *testing.T) {
	cases := []struct {
		raw     string
		want    StreamingStatus
		wantErr bool
	}{
		{"SCHEDULED", StatusScheduled, false},
		{"live", StatusLive, false},
		{" Ended ", StatusEnded, false},
		{"CANCELLED", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseStatus(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseStatus(%q): expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseStatus(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseStatus(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestGoLiveRequiresScheduled(t *testing.T) {
	now := ts("2026-03-01T20:00:00Z")

	ev := &StreamingEvent{Status: StatusScheduled}
	if err := ev.GoLive(now); err != nil {
		t.Fatalf("GoLive from SCHEDULED: %v", err)
	}
	if ev.Status != StatusLive {
		t.Fatalf("expected LIVE, got %s", ev.Status)
	}
	if ev.StartedAt == nil || !ev.StartedAt.Equal(now) {
		t.Fatalf("expected startedAt %v, got %v", now, ev.StartedAt)
	}

	if err := ev.GoLive(now); err == nil {
		t.Fatal("GoLive from LIVE should fail")
	}

	ended := &StreamingEvent{Status: StatusEnded}
	if err := ended.GoLive(now); err == nil {
		t.Fatal("GoLive from ENDED should fail")
	}
}

func TestEndRequiresLive(t *testing.T) {
	now := ts("2026-03-01T22:00:00Z")

	ev := &StreamingEvent{Status: StatusLive}
	if err := ev.End(now); err != nil {
		t.Fatalf("End from LIVE: %v", err)
	}
	if ev.Status != StatusEnded {
		t.Fatalf("expected ENDED, got %s", ev.Status)
	}
	if ev.EndedAt == nil || !ev.EndedAt.Equal(now) {
		t.Fatalf("expected endedAt %v, got %v", now, ev.EndedAt)
	}

	scheduled := &StreamingEvent{Status: StatusScheduled}
	if err := scheduled.End(now); err == nil {
		t.Fatal("End from SCHEDULED should fail")
	}
	if err := ev.End(now); err == nil {
		t.Fatal("End from ENDED should fail")
	}
}

func TestUpdateMetadata(t *testing.T) {
	ev := &StreamingEvent{Title: "Old", ThumbnailURL: "thumb-old"}

	if changed := ev.UpdateMetadata("Old", "thumb-old"); changed {
		t.Fatal("identical metadata should report no change")
	}
	if changed := ev.UpdateMetadata("New", ""); !changed {
		t.Fatal("title change should report changed")
	}
	if ev.Title != "New" {
		t.Fatalf("expected title New, got %q", ev.Title)
	}
	if ev.ThumbnailURL != "thumb-old" {
		t.Fatal("empty thumbnail must not clear the existing one")
	}
	if changed := ev.UpdateMetadata("", "thumb-new"); !changed {
		t.Fatal("thumbnail change should report changed")
	}
	if ev.Title != "New" {
		t.Fatal("empty title must not clear the existing one")
	}
}

func TestUpdateDescriptionIgnoresBlank(t *testing.T) {
	ev := &StreamingEvent{Description: "keep me"}
	ev.UpdateDescription("   ")
	if ev.Description != "keep me" {
		t.Fatalf("blank description overwrote existing, got %q", ev.Description)
	}
	ev.UpdateDescription("fresh")
	if ev.Description != "fresh" {
		t.Fatalf("expected fresh, got %q", ev.Description)
	}
}

func TestUpdateSourceIdentityBackfillOnly(t *testing.T) {
	ev := &StreamingEvent{}
	ev.UpdateSourceIdentity("YOUTUBE", "abc123def45")
	if ev.Platform != "YOUTUBE" || ev.ExternalID != "abc123def45" {
		t.Fatalf("backfill failed: %q %q", ev.Platform, ev.ExternalID)
	}
	ev.UpdateSourceIdentity("TWITCH", "other")
	if ev.Platform != "YOUTUBE" || ev.ExternalID != "abc123def45" {
		t.Fatal("existing identity must never be replaced")
	}
}

func TestUpdateViewerCount(t *testing.T) {
	ev := &StreamingEvent{ViewerCount: 10}
	if err := ev.UpdateViewerCount(-1); err == nil {
		t.Fatal("negative viewer count should be rejected")
	}
	if ev.ViewerCount != 10 {
		t.Fatal("rejected update must not mutate the count")
	}
	if err := ev.UpdateViewerCount(0); err != nil {
		t.Fatalf("zero viewer count: %v", err)
	}
	if ev.ViewerCount != 0 {
		t.Fatalf("expected 0, got %d", ev.ViewerCount)
	}
}

func TestApplyDiscoveryStatusNeverRegresses(t *testing.T) {
	live := &StreamingEvent{Status: StatusLive, StartedAt: tsp("2026-03-01T20:00:00Z")}
	live.ApplyDiscoveryStatus(StatusScheduled, tsp("2026-03-01T19:00:00Z"), nil, nil)
	if live.Status != StatusLive {
		t.Fatalf("LIVE regressed to %s", live.Status)
	}
	if !live.ScheduledAt.Equal(ts("2026-03-01T19:00:00Z")) {
		t.Fatal("scheduled hint not absorbed")
	}

	ended := &StreamingEvent{Status: StatusEnded, EndedAt: tsp("2026-03-01T22:00:00Z")}
	ended.ApplyDiscoveryStatus(StatusLive, nil, tsp("2026-03-01T20:00:00Z"), nil)
	if ended.Status != StatusEnded {
		t.Fatalf("ENDED regressed to %s", ended.Status)
	}
}

func TestApplyDiscoveryStatusLiveTransition(t *testing.T) {
	started := tsp("2026-03-01T20:05:00Z")

	ev := &StreamingEvent{Status: StatusScheduled}
	ev.ApplyDiscoveryStatus(StatusLive, nil, started, nil)
	if ev.Status != StatusLive {
		t.Fatalf("expected LIVE, got %s", ev.Status)
	}
	if ev.StartedAt == nil || !ev.StartedAt.Equal(*started) {
		t.Fatalf("expected startedAt from hint, got %v", ev.StartedAt)
	}

	// Without a hint the transition stamps the current time.
	before := time.Now().UTC()
	fresh := &StreamingEvent{Status: StatusScheduled}
	fresh.ApplyDiscoveryStatus(StatusLive, nil, nil, nil)
	if fresh.StartedAt == nil || fresh.StartedAt.Before(before) {
		t.Fatalf("expected startedAt stamped now, got %v", fresh.StartedAt)
	}

	// A second LIVE observation must not move startedAt.
	ev.ApplyDiscoveryStatus(StatusLive, nil, tsp("2026-03-01T21:00:00Z"), nil)
	if !ev.StartedAt.Equal(*started) {
		t.Fatalf("startedAt moved on repeat observation: %v", ev.StartedAt)
	}
}

func TestApplyDiscoveryStatusEndedIsTerminalAndIdempotent(t *testing.T) {
	started := tsp("2026-03-01T20:00:00Z")
	ended := tsp("2026-03-01T22:00:00Z")

	ev := &StreamingEvent{Status: StatusScheduled}
	ev.ApplyDiscoveryStatus(StatusEnded, nil, started, ended)
	if ev.Status != StatusEnded {
		t.Fatalf("expected ENDED, got %s", ev.Status)
	}
	if ev.StartedAt == nil || !ev.StartedAt.Equal(*started) {
		t.Fatalf("expected startedAt absorbed, got %v", ev.StartedAt)
	}
	if ev.EndedAt == nil || !ev.EndedAt.Equal(*ended) {
		t.Fatalf("expected endedAt absorbed, got %v", ev.EndedAt)
	}

	// Repeat with different hints: terminal state and timestamps hold.
	ev.ApplyDiscoveryStatus(StatusEnded, nil, tsp("2026-03-01T19:00:00Z"), tsp("2026-03-01T23:00:00Z"))
	if !ev.StartedAt.Equal(*started) || !ev.EndedAt.Equal(*ended) {
		t.Fatal("repeat ENDED observation mutated timestamps")
	}

	// ENDED without an end hint stamps now.
	fresh := &StreamingEvent{Status: StatusLive}
	fresh.ApplyDiscoveryStatus(StatusEnded, nil, nil, nil)
	if fresh.EndedAt == nil {
		t.Fatal("expected endedAt stamped on transition")
	}
}
