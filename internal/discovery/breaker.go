package discovery

import (
	"context"
	"log"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/you/streamwatch/internal/core"
)

// BreakerBackend wraps a Backend with a circuit breaker so a misbehaving
// yt-dlp installation (or YouTube blocking the host) stops being hammered
// once failures pile up. While open, Discover fails fast and the channel is
// counted as failed for the run.
type BreakerBackend struct {
	base Backend
	cb   *gobreaker.CircuitBreaker[[]core.DiscoveryCandidate]
}

func NewBreakerBackend(base Backend, metrics *Metrics) *BreakerBackend {
	settings := gobreaker.Settings{
		Name:        "ytdlp",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("discovery: breaker %s: %s -> %s", name, from, to)
			if metrics != nil {
				metrics.BreakerState.Set(stateValue(to))
			}
		},
	}
	return &BreakerBackend{
		base: base,
		cb:   gobreaker.NewCircuitBreaker[[]core.DiscoveryCandidate](settings),
	}
}

func (b *BreakerBackend) Discover(ctx context.Context, channelHandle string) ([]core.DiscoveryCandidate, error) {
	return b.cb.Execute(func() ([]core.DiscoveryCandidate, error) {
		return b.base.Discover(ctx, channelHandle)
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
