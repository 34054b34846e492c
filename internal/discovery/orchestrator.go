package discovery

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/you/streamwatch/internal/core"
	"github.com/you/streamwatch/internal/crawltrace"
)

// ChannelSource supplies the channels to poll and records crawl completion.
type ChannelSource interface {
	ListActiveChannels(ctx context.Context) ([]core.ArtistChannel, error)
	MarkChannelsCrawled(ctx context.Context, handles []string, at time.Time) error
}

// Options tune one orchestrator instance.
type Options struct {
	MaxConcurrency int           // bounded channel fan-out, default 5
	ChannelDelay   time.Duration // spacing between channel dispatches
}

// Orchestrator runs one discovery pass across all active channels.
type Orchestrator struct {
	channels ChannelSource
	backend  Backend
	rec      *Reconciler
	metrics  *Metrics
	opts     Options

	// Notify is invoked for every successfully upserted event. Used by the
	// HTTP API to feed its live stream; safe to leave nil.
	Notify func(*core.StreamingEvent)
}

func NewOrchestrator(channels ChannelSource, backend Backend, rec *Reconciler, metrics *Metrics, opts Options) *Orchestrator {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 5
	}
	return &Orchestrator{
		channels: channels,
		backend:  backend,
		rec:      rec,
		metrics:  metrics,
		opts:     opts,
	}
}

// Run executes one pass and returns the aggregated summary. A single
// channel's failure never aborts the run; only an unavailable channel source
// is fatal.
func (o *Orchestrator) Run(ctx context.Context) (core.LiveDiscoveryResult, error) {
	start := time.Now()

	channels, err := o.channels.ListActiveChannels(ctx)
	if err != nil {
		return core.LiveDiscoveryResult{}, errors.Wrap(err, "list active channels")
	}
	log.Printf("discovery: starting run over %d channels (concurrency=%d)", len(channels), o.opts.MaxConcurrency)

	var (
		mu      sync.Mutex
		result  core.LiveDiscoveryResult
		crawled []string
	)

	// Dispatch spacing is a courtesy toward the backend: at most one new
	// channel task every ChannelDelay, independent of the concurrency bound.
	var limiter *rate.Limiter
	if o.opts.ChannelDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(o.opts.ChannelDelay), 1)
	}

	sem := make(chan struct{}, o.opts.MaxConcurrency)
	var wg sync.WaitGroup

	for _, channel := range channels {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(ch core.ArtistChannel) {
			defer wg.Done()
			defer func() { <-sem }()

			total, upserted, failed, errs, polled := o.processChannel(ctx, ch)

			mu.Lock()
			result.Total += total
			result.Upserted += upserted
			result.Failed += failed
			result.Errors = append(result.Errors, errs...)
			if polled {
				crawled = append(crawled, ch.ChannelHandle)
			}
			mu.Unlock()
		}(channel)
	}
	wg.Wait()

	if err := o.channels.MarkChannelsCrawled(ctx, crawled, time.Now().UTC()); err != nil {
		log.Printf("discovery: mark channels crawled: %v", err)
	}

	if o.metrics != nil {
		o.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}
	log.Printf("discovery: run complete in %s: total=%d upserted=%d failed=%d",
		time.Since(start).Round(time.Millisecond), result.Total, result.Upserted, result.Failed)
	return result, nil
}

// processChannel polls one channel and reconciles every candidate it returns.
// Returned counters feed the run summary; polled reports whether the backend
// call itself succeeded, which is what marks the channel as crawled.
func (o *Orchestrator) processChannel(ctx context.Context, ch core.ArtistChannel) (total, upserted, failed int, errs []string, polled bool) {
	candidates, err := o.backend.Discover(ctx, ch.ChannelHandle)
	if err != nil {
		if o.metrics != nil {
			o.metrics.ChannelsFailed.Inc()
		}
		log.Printf("discovery: channel %s failed: %v", ch.ChannelHandle, err)
		return 0, 0, 1, []string{fmt.Sprintf("%s: %v", ch.ChannelHandle, err)}, false
	}
	if o.metrics != nil {
		o.metrics.ChannelsProcessed.Inc()
		o.metrics.StreamsDiscovered.Add(float64(len(candidates)))
	}

	total = len(candidates)
	for _, cand := range candidates {
		trace := crawltrace.NewTrace(cand.Platform, ch.ChannelHandle, cand.ExternalID, cand.Title)
		ev, err := o.rec.Upsert(ctx, ch.ArtistID, cand)
		if err != nil {
			failed++
			if o.metrics != nil {
				o.metrics.StreamsFailed.Inc()
			}
			errs = append(errs, fmt.Sprintf("%s: %v", ch.ChannelHandle, err))
			trace.IncCounter(crawltrace.StageDropped("upsert_error"))
			trace.LogTrace(nil, "discovery: candidate dropped")
			continue
		}
		upserted++
		trace.IncCounter(crawltrace.StageSaved)
		if o.metrics != nil {
			o.metrics.StreamsUpserted.Inc()
		}
		if o.Notify != nil {
			o.Notify(ev)
		}
	}
	return total, upserted, failed, errs, true
}
