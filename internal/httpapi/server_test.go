package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/you/streamwatch/internal/core"
)

type stubStore struct {
	events   []*core.StreamingEvent
	channels []core.ArtistChannel
}

func (s *stubStore) CountEvents(context.Context) (int64, error) {
	return int64(len(s.events)), nil
}

func (s *stubStore) ListEvents(_ context.Context, f Filters) ([]*core.StreamingEvent, error) {
	var out []*core.StreamingEvent
	for _, ev := range s.events {
		if f.Matches(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *stubStore) FindByID(_ context.Context, id string) (*core.StreamingEvent, error) {
	for _, ev := range s.events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return nil, nil
}

func (s *stubStore) ListActiveChannels(context.Context) ([]core.ArtistChannel, error) {
	return s.channels, nil
}

func newTestServer(store *stubStore, admin Admin) *Server {
	return NewServer(store, admin, NewMetrics(), Options{Addr: ":0"})
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&stubStore{}, Admin{})
	rec := doRequest(t, s, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCount(t *testing.T) {
	s := newTestServer(&stubStore{events: []*core.StreamingEvent{{ID: "a"}, {ID: "b"}}}, Admin{})
	rec := doRequest(t, s, http.MethodGet, "/count")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["count"] != 2 {
		t.Fatalf("count = %d, want 2", body["count"])
	}
}

func TestEventsFiltering(t *testing.T) {
	s := newTestServer(&stubStore{events: []*core.StreamingEvent{
		{ID: "a", Status: core.StatusLive},
		{ID: "b", Status: core.StatusEnded},
	}}, Admin{})

	rec := doRequest(t, s, http.MethodGet, "/events?status=LIVE")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var events []*core.StreamingEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 || events[0].ID != "a" {
		t.Fatalf("unexpected events %v", events)
	}

	rec = doRequest(t, s, http.MethodGet, "/events?status=nope")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad filter status = %d, want 400", rec.Code)
	}
}

func TestEventsEmptyListIsJSONArray(t *testing.T) {
	s := newTestServer(&stubStore{}, Admin{})
	rec := doRequest(t, s, http.MethodGet, "/events")
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("expected empty array, got %q", got)
	}
}

func TestEventByID(t *testing.T) {
	s := newTestServer(&stubStore{events: []*core.StreamingEvent{{ID: "abc"}}}, Admin{})

	rec := doRequest(t, s, http.MethodGet, "/events/abc")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/events/missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing event status = %d, want 404", rec.Code)
	}
}

func TestAdminDiscoverRequiresPost(t *testing.T) {
	called := false
	s := newTestServer(&stubStore{}, Admin{
		Discover: func(context.Context) (*core.LiveDiscoveryResult, error) {
			called = true
			return &core.LiveDiscoveryResult{Total: 5, Upserted: 4, Failed: 1}, nil
		},
	})

	rec := doRequest(t, s, http.MethodGet, "/admin/discover")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d, want 405", rec.Code)
	}
	if called {
		t.Fatal("discover hook must not fire on GET")
	}

	rec = doRequest(t, s, http.MethodPost, "/admin/discover")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST status = %d", rec.Code)
	}
	var res core.LiveDiscoveryResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Total != 5 || res.Failed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAdminDiscoverDisabled(t *testing.T) {
	s := newTestServer(&stubStore{}, Admin{})
	rec := doRequest(t, s, http.MethodPost, "/admin/discover")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestAdminRefreshScopes(t *testing.T) {
	var liveCalls, allCalls int
	s := newTestServer(&stubStore{}, Admin{
		RefreshLive: func(context.Context) (*core.RefreshResult, error) {
			liveCalls++
			return &core.RefreshResult{}, nil
		},
		RefreshAll: func(context.Context) (*core.RefreshResult, error) {
			allCalls++
			return &core.RefreshResult{}, nil
		},
	})

	if rec := doRequest(t, s, http.MethodPost, "/admin/refresh"); rec.Code != http.StatusOK {
		t.Fatalf("default scope status = %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodPost, "/admin/refresh?scope=all"); rec.Code != http.StatusOK {
		t.Fatalf("all scope status = %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodPost, "/admin/refresh?scope=weekly"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad scope status = %d, want 400", rec.Code)
	}
	if liveCalls != 1 || allCalls != 1 {
		t.Fatalf("calls live=%d all=%d", liveCalls, allCalls)
	}
}

func TestBroadcastRespectsFiltersAndSlowClients(t *testing.T) {
	s := newTestServer(&stubStore{}, Admin{})

	liveClient := s.addClient(Filters{Statuses: []core.StreamingStatus{core.StatusLive}})
	allClient := s.addClient(Filters{})
	defer s.removeClient(liveClient)
	defer s.removeClient(allClient)

	s.Broadcast(&core.StreamingEvent{ID: "e1", Status: core.StatusEnded})
	s.Broadcast(&core.StreamingEvent{ID: "e2", Status: core.StatusLive})

	select {
	case ev := <-liveClient.ch:
		if ev.ID != "e2" {
			t.Fatalf("live client got %s", ev.ID)
		}
	default:
		t.Fatal("live client missed the live event")
	}
	if got := len(allClient.ch); got != 2 {
		t.Fatalf("all client buffered %d events, want 2", got)
	}

	// A full buffer drops instead of blocking.
	for i := 0; i < cap(allClient.ch)+5; i++ {
		s.Broadcast(&core.StreamingEvent{ID: "flood", Status: core.StatusLive})
	}
}

func TestStreamSSEDeliversEvents(t *testing.T) {
	s := newTestServer(&stubStore{}, Admin{})

	srv := httptest.NewServer(s.srv.Handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}

	// Wait for the client to register, then publish.
	deadline := time.Now().Add(time.Second)
	for {
		s.mu.Lock()
		n := len(s.clients)
		s.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stream client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Broadcast(&core.StreamingEvent{ID: "live-1", Status: core.StatusLive})

	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	payload := string(buf[:n])
	if !strings.Contains(payload, "live-1") {
		t.Fatalf("expected event payload, got %q", payload)
	}
}
