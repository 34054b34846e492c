package discovery

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles Prometheus collectors for discovery runs.
type Metrics struct {
	ChannelsProcessed prometheus.Counter
	ChannelsFailed    prometheus.Counter
	StreamsDiscovered prometheus.Counter
	StreamsUpserted   prometheus.Counter
	StreamsFailed     prometheus.Counter
	RunDuration       prometheus.Histogram
	BreakerState      prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChannelsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamwatch",
			Name:      "discovery_channels_processed_total",
			Help:      "Number of artist channels processed for discovery",
		}),
		ChannelsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamwatch",
			Name:      "discovery_channels_failed_total",
			Help:      "Number of channels that failed during discovery",
		}),
		StreamsDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamwatch",
			Name:      "discovery_streams_discovered_total",
			Help:      "Number of streams discovered from external sources",
		}),
		StreamsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamwatch",
			Name:      "discovery_streams_upserted_total",
			Help:      "Number of streams upserted into streaming events",
		}),
		StreamsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamwatch",
			Name:      "discovery_streams_failed_total",
			Help:      "Number of streams that failed to upsert",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "streamwatch",
			Name:      "discovery_run_duration_seconds",
			Help:      "Duration of live discovery runs",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamwatch",
			Name:      "discovery_breaker_state",
			Help:      "Circuit breaker state for the discovery backend (0 closed, 1 half-open, 2 open)",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ChannelsProcessed, m.ChannelsFailed, m.StreamsDiscovered,
			m.StreamsUpserted, m.StreamsFailed, m.RunDuration, m.BreakerState)
	}
	return m
}
