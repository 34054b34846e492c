package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/you/streamwatch/internal/core"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Order represents the chronological order to use when listing events.
type Order string

const (
	// OrderDesc returns events with the latest scheduled time first.
	OrderDesc Order = "desc"
	// OrderAsc returns events with the earliest scheduled time first.
	OrderAsc Order = "asc"
)

// Filters captures the parsed query parameters for event lookups.
type Filters struct {
	Statuses []core.StreamingStatus
	ArtistID string
	Limit    int
	Order    Order
}

// ParseFilters parses query parameters into a Filters struct.
func ParseFilters(values url.Values) (Filters, error) {
	f := Filters{
		Limit: defaultLimit,
		Order: OrderDesc,
	}

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Filters{}, errors.New("limit must be a positive integer")
		}
		if n > maxLimit {
			n = maxLimit
		}
		f.Limit = n
	}

	if raw := values.Get("order"); raw != "" {
		switch strings.ToLower(raw) {
		case "desc":
			f.Order = OrderDesc
		case "asc":
			f.Order = OrderAsc
		default:
			return Filters{}, errors.New("order must be asc or desc")
		}
	}

	for _, raw := range values["status"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status, err := core.ParseStatus(part)
			if err != nil {
				return Filters{}, errors.New("invalid status filter")
			}
			f.Statuses = append(f.Statuses, status)
		}
	}

	f.ArtistID = strings.TrimSpace(values.Get("artist"))

	return f, nil
}

// FiltersFromRequest parses filters from an HTTP request.
func FiltersFromRequest(r *http.Request) (Filters, error) {
	return ParseFilters(r.URL.Query())
}

// Matches reports whether the provided event satisfies the filters. Used for
// the live stream transports where events arrive one at a time.
func (f Filters) Matches(ev *core.StreamingEvent) bool {
	if len(f.Statuses) > 0 {
		match := false
		for _, s := range f.Statuses {
			if ev.Status == s {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if f.ArtistID != "" && ev.ArtistID != f.ArtistID {
		return false
	}
	return true
}
