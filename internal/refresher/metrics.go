package refresher

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles Prometheus collectors for metadata refresh runs.
type Metrics struct {
	EventsUpdated prometheus.Counter
	EventsFailed  prometheus.Counter
	OEmbedErrors  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamwatch",
			Name:      "refresh_events_updated_total",
			Help:      "Number of events whose metadata was refreshed",
		}),
		EventsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamwatch",
			Name:      "refresh_events_failed_total",
			Help:      "Number of events whose metadata refresh failed",
		}),
		OEmbedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamwatch",
			Name:      "oembed_errors_total",
			Help:      "oEmbed lookup failures by classification",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.EventsUpdated, m.EventsFailed, m.OEmbedErrors)
	}
	return m
}
