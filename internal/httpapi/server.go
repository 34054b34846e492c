package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/you/streamwatch/internal/core"
	"github.com/you/streamwatch/internal/version"
)

// EventStore is the read surface the API exposes.
type EventStore interface {
	CountEvents(ctx context.Context) (int64, error)
	ListEvents(ctx context.Context, f Filters) ([]*core.StreamingEvent, error)
	FindByID(ctx context.Context, id string) (*core.StreamingEvent, error)
	ListActiveChannels(ctx context.Context) ([]core.ArtistChannel, error)
}

// Admin holds the hooks behind the admin endpoints. Nil funcs disable
// the corresponding route with a 503.
type Admin struct {
	Discover     func(ctx context.Context) (*core.LiveDiscoveryResult, error)
	RefreshLive  func(ctx context.Context) (*core.RefreshResult, error)
	RefreshAll   func(ctx context.Context) (*core.RefreshResult, error)
	RefreshEvent func(ctx context.Context, id string) (bool, error)
	ConfigJSON   func() ([]byte, error)
}

type Options struct {
	Addr           string
	RateLimitRPS   int
	RateLimitBurst int
	AccessLog      bool
}

type streamClient struct {
	ch      chan *core.StreamingEvent
	filters Filters
}

type Server struct {
	store   EventStore
	admin   Admin
	metrics *Metrics
	limiter *ipRateLimiter

	accessLog bool
	started   time.Time

	mu      sync.Mutex
	clients map[*streamClient]struct{}

	srv *http.Server
}

func NewServer(store EventStore, admin Admin, metrics *Metrics, opts Options) *Server {
	s := &Server{
		store:     store,
		admin:     admin,
		metrics:   metrics,
		limiter:   newIPRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		accessLog: opts.AccessLog,
		started:   time.Now(),
		clients:   make(map[*streamClient]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.wrap("healthz", s.handleHealthz))
	mux.HandleFunc("/info", s.wrap("info", s.handleInfo))
	mux.HandleFunc("/count", s.wrap("count", s.handleCount))
	mux.HandleFunc("/events", s.wrap("events", s.handleEvents))
	mux.HandleFunc("/events/", s.wrap("event", s.handleEventByID))
	mux.HandleFunc("/channels", s.wrap("channels", s.handleChannels))
	mux.HandleFunc("/stream", s.handleStream) // no recorder: hijacks / flushes
	mux.Handle("/metrics", metrics.handler())

	mux.HandleFunc("/admin/discover", s.wrap("admin_discover", s.handleAdminDiscover))
	mux.HandleFunc("/admin/refresh", s.wrap("admin_refresh", s.handleAdminRefresh))
	mux.HandleFunc("/admin/refresh/", s.wrap("admin_refresh_one", s.handleAdminRefreshOne))
	mux.HandleFunc("/admin/config", s.wrap("admin_config", s.handleAdminConfig))

	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	log.Printf("httpapi: listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.clients {
		close(c.ch)
		delete(s.clients, c)
	}
	s.mu.Unlock()
	return s.srv.Shutdown(ctx)
}

// Broadcast fans an event out to every connected stream client whose
// filters match. Slow clients are skipped, never blocked on.
func (s *Server) Broadcast(ev *core.StreamingEvent) {
	if ev == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		if !c.filters.Matches(ev) {
			continue
		}
		select {
		case c.ch <- ev:
		default:
		}
	}
}

func (s *Server) addClient(f Filters) *streamClient {
	c := &streamClient{ch: make(chan *core.StreamingEvent, 16), filters: f}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.metrics.streamClients.Set(float64(n))
	return c
}

func (s *Server) removeClient(c *streamClient) {
	s.mu.Lock()
	delete(s.clients, c)
	n := len(s.clients)
	s.mu.Unlock()
	s.metrics.streamClients.Set(float64(n))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpapi: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":        "streamwatch",
		"version":        version.Version,
		"commit":         version.Commit,
		"built":          version.Built,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.CountEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	f, err := FiltersFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := s.store.ListEvents(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []*core.StreamingEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleEventByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/events/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	ev, err := s.store.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ev == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.store.ListActiveChannels(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if channels == nil {
		channels = []core.ArtistChannel{}
	}
	writeJSON(w, http.StatusOK, channels)
}

// handleStream serves the live event feed. WebSocket when the client
// asks for an upgrade, SSE otherwise.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(remoteIP(r)) {
		s.metrics.rateLimited.Inc()
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	f, err := FiltersFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		s.streamWebSocket(w, r, f)
		return
	}
	s.streamSSE(w, r, f)
}

func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, f Filters) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := s.addClient(f)
	defer s.removeClient(client)

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			fmt.Fprint(w, ":ping\n\n")
			flusher.Flush()
		case ev, open := <-client.ch:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				log.Printf("httpapi: marshal stream event: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: event\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (s *Server) streamWebSocket(w http.ResponseWriter, r *http.Request, f Filters) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("httpapi: websocket accept: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	client := s.addClient(f)
	defer s.removeClient(client)

	ctx := r.Context()

	// Drain reads so close frames and pings are handled.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		case ev, open := <-client.ch:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				log.Printf("httpapi: marshal stream event: %v", err)
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) handleAdminDiscover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if s.admin.Discover == nil {
		writeError(w, http.StatusServiceUnavailable, "discovery disabled")
		return
	}
	res, err := s.admin.Discover(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAdminRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = "live"
	}
	var (
		res *core.RefreshResult
		err error
	)
	switch scope {
	case "live":
		if s.admin.RefreshLive == nil {
			writeError(w, http.StatusServiceUnavailable, "refresh disabled")
			return
		}
		res, err = s.admin.RefreshLive(r.Context())
	case "all":
		if s.admin.RefreshAll == nil {
			writeError(w, http.StatusServiceUnavailable, "refresh disabled")
			return
		}
		res, err = s.admin.RefreshAll(r.Context())
	default:
		writeError(w, http.StatusBadRequest, "scope must be live or all")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAdminRefreshOne(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if s.admin.RefreshEvent == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh disabled")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/admin/refresh/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	updated, err := s.admin.RefreshEvent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "updated": updated})
}

func (s *Server) handleAdminConfig(w http.ResponseWriter, r *http.Request) {
	if s.admin.ConfigJSON == nil {
		writeError(w, http.StatusServiceUnavailable, "config endpoint disabled")
		return
	}
	payload, err := s.admin.ConfigJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		log.Printf("httpapi: write config: %v", err)
	}
}
