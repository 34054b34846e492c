package core

import "time"

// ArtistChannel is one configured source handle the discovery backend can be
// queried against.
type ArtistChannel struct {
	ChannelHandle string
	ArtistID      string
	Platform      string
	Active        bool
	LastCrawledAt *time.Time
}

// DiscoveryCandidate is one discovered stream occurrence prior to
// reconciliation. Candidates are consumed immediately and never persisted.
type DiscoveryCandidate struct {
	Platform     string
	ExternalID   string
	Title        string
	Description  string
	StreamURL    string
	SourceURL    string
	ThumbnailURL string
	ScheduledAt  *time.Time
	StartedAt    *time.Time
	EndedAt      *time.Time
	Status       StreamingStatus
	ViewerCount  *int
}

// LiveDiscoveryResult summarises one discovery pass across all channels.
type LiveDiscoveryResult struct {
	Total    int      `json:"total"`
	Upserted int      `json:"upserted"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// RefreshResult summarises one metadata refresh pass.
type RefreshResult struct {
	Total   int `json:"total"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}
