package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrorKind classifies oEmbed lookup failures. Consumers branch on the kind
// instead of matching error types.
type ErrorKind string

const (
	// KindNotFound covers 404 and 401: the video is gone or private. Business
	// as usual, never retried.
	KindNotFound ErrorKind = "not_found"
	// KindRateLimited covers 429. Transient; RetryAfter may carry a backoff hint.
	KindRateLimited ErrorKind = "rate_limited"
	// KindForbidden covers 403: quota exhausted or access denied. Systemic.
	KindForbidden ErrorKind = "forbidden"
	// KindUnexpected covers any other 4xx.
	KindUnexpected ErrorKind = "unexpected_client_error"
)

// APIError is a classified oEmbed failure.
type APIError struct {
	Kind       ErrorKind
	VideoID    string
	StatusCode int
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("oembed: %s for video %s (status %d)", e.Kind, e.VideoID, e.StatusCode)
}

// KindOf returns the classification for err, or "" when err is not an APIError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// RetryAfterOf extracts the server backoff hint, when present.
func RetryAfterOf(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// Metadata is the subset of the oEmbed payload the refresher cares about.
type Metadata struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ProviderName string `json:"provider_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// OEmbedConfig tunes the oEmbed client.
type OEmbedConfig struct {
	BaseURL    string // default https://www.youtube.com/oembed
	Timeout    time.Duration
	RetryMax   int
	RetryDelay time.Duration
}

// OEmbedClient fetches lightweight display metadata for a video.
type OEmbedClient struct {
	cfg        OEmbedConfig
	http       *http.Client
	errCounter *prometheus.CounterVec
}

const defaultOEmbedBase = "https://www.youtube.com/oembed"

func NewOEmbedClient(cfg OEmbedConfig, errCounter *prometheus.CounterVec) *OEmbedClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOEmbedBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &OEmbedClient{
		cfg:        cfg,
		http:       &http.Client{Timeout: cfg.Timeout},
		errCounter: errCounter,
	}
}

// FetchMetadata looks up title/thumbnail for the video. Not-found is returned
// immediately; other classified failures are retried up to RetryMax times
// with a fixed delay before the final error surfaces.
func (c *OEmbedClient) FetchMetadata(ctx context.Context, videoID string) (*Metadata, error) {
	var lastErr error
	attempts := c.cfg.RetryMax
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.cfg.RetryDelay):
			}
		}
		meta, err := c.fetchOnce(ctx, videoID)
		if err == nil {
			return meta, nil
		}
		lastErr = err
		if KindOf(err) == KindNotFound {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *OEmbedClient) fetchOnce(ctx context.Context, videoID string) (*Metadata, error) {
	q := url.Values{}
	q.Set("url", WatchURL(videoID))
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "oembed request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "oembed call")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, c.classify(resp, videoID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("oembed: unexpected status %s for video %s", resp.Status, videoID)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "oembed read")
	}
	var meta Metadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, errors.Wrap(err, "oembed decode")
	}
	return &meta, nil
}

func (c *OEmbedClient) classify(resp *http.Response, videoID string) error {
	apiErr := &APIError{VideoID: videoID, StatusCode: resp.StatusCode}
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusUnauthorized:
		apiErr.Kind = KindNotFound
	case http.StatusTooManyRequests:
		apiErr.Kind = KindRateLimited
		if raw := resp.Header.Get("Retry-After"); raw != "" {
			if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
				apiErr.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	case http.StatusForbidden:
		apiErr.Kind = KindForbidden
	default:
		apiErr.Kind = KindUnexpected
	}
	if c.errCounter != nil {
		c.errCounter.WithLabelValues(string(apiErr.Kind)).Inc()
	}
	return apiErr
}
