package httpapi

import (
	"net/url"
	"testing"

	"github.com/you/streamwatch/internal/core"
)

func TestParseFiltersDefaults(t *testing.T) {
	f, err := ParseFilters(url.Values{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Limit != defaultLimit {
		t.Fatalf("limit = %d, want %d", f.Limit, defaultLimit)
	}
	if f.Order != OrderDesc {
		t.Fatalf("order = %s, want desc", f.Order)
	}
	if len(f.Statuses) != 0 || f.ArtistID != "" {
		t.Fatalf("unexpected defaults %+v", f)
	}
}

func TestParseFiltersLimit(t *testing.T) {
	f, err := ParseFilters(url.Values{"limit": {"25"}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Limit != 25 {
		t.Fatalf("limit = %d, want 25", f.Limit)
	}

	f, err = ParseFilters(url.Values{"limit": {"99999"}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Limit != maxLimit {
		t.Fatalf("limit = %d, want clamp to %d", f.Limit, maxLimit)
	}

	for _, bad := range []string{"0", "-5", "abc"} {
		if _, err := ParseFilters(url.Values{"limit": {bad}}); err == nil {
			t.Fatalf("limit %q should be rejected", bad)
		}
	}
}

func TestParseFiltersStatuses(t *testing.T) {
	f, err := ParseFilters(url.Values{"status": {"live,SCHEDULED"}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(f.Statuses) != 2 || f.Statuses[0] != core.StatusLive || f.Statuses[1] != core.StatusScheduled {
		t.Fatalf("unexpected statuses %v", f.Statuses)
	}

	if _, err := ParseFilters(url.Values{"status": {"bogus"}}); err == nil {
		t.Fatal("invalid status should be rejected")
	}
}

func TestParseFiltersOrder(t *testing.T) {
	f, err := ParseFilters(url.Values{"order": {"ASC"}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Order != OrderAsc {
		t.Fatalf("order = %s, want asc", f.Order)
	}
	if _, err := ParseFilters(url.Values{"order": {"sideways"}}); err == nil {
		t.Fatal("invalid order should be rejected")
	}
}

func TestFiltersMatches(t *testing.T) {
	live := &core.StreamingEvent{Status: core.StatusLive, ArtistID: "artist-1"}
	ended := &core.StreamingEvent{Status: core.StatusEnded, ArtistID: "artist-2"}

	all := Filters{}
	if !all.Matches(live) || !all.Matches(ended) {
		t.Fatal("empty filters should match everything")
	}

	liveOnly := Filters{Statuses: []core.StreamingStatus{core.StatusLive}}
	if !liveOnly.Matches(live) || liveOnly.Matches(ended) {
		t.Fatal("status filter mismatch")
	}

	artist := Filters{ArtistID: "artist-2"}
	if artist.Matches(live) || !artist.Matches(ended) {
		t.Fatal("artist filter mismatch")
	}
}
