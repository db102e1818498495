// Package metrics provides Prometheus metrics for the correlation engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wallet_tracker"

// Metrics holds the engine's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	// Ingestion
	EventsIngested *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec

	// Correlation
	GroupsOpened   prometheus.Counter
	GroupsSettled  *prometheus.CounterVec
	GroupsInFlight prometheus.Gauge
	SettleLatency  prometheus.Histogram

	// Verification
	VerifyRounds  prometheus.Counter
	IndexerMisses *prometheus.CounterVec

	// Delivery
	Categories *prometheus.CounterVec
	Deliveries *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Activity events accepted by the correlator, by asset kind",
		}, []string{"kind"}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_dropped_total",
			Help:      "Activity events dropped before correlation, by reason",
		}, []string{"reason"}),
		GroupsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlate",
			Name:      "groups_opened_total",
			Help:      "Correlation groups opened",
		}),
		GroupsSettled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlate",
			Name:      "groups_settled_total",
			Help:      "Correlation groups that reached a terminal state",
		}, []string{"state"}),
		GroupsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "correlate",
			Name:      "groups_in_flight",
			Help:      "Groups currently being verified",
		}),
		SettleLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "correlate",
			Name:      "settle_latency_seconds",
			Help:      "Time from first event to terminal state",
			Buckets:   []float64{2, 5, 10, 20, 30, 60, 120, 300, 600},
		}),
		VerifyRounds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "rounds_total",
			Help:      "Indexer polling rounds",
		}),
		IndexerMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "indexer_misses_total",
			Help:      "Indexer lookups that did not resolve a kind, by reason",
		}, []string{"reason"}),
		Categories: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "transactions_total",
			Help:      "Merged transactions notified, by category",
		}, []string{"category"}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Per-recipient delivery attempts, by result",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) EventIngested(kind string) {
	if m == nil {
		return
	}
	m.EventsIngested.WithLabelValues(kind).Inc()
}

func (m *Metrics) EventDropped(reason string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(reason).Inc()
}

// EventsSkipped counts n webhook activities that never became events.
func (m *Metrics) EventsSkipped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EventsDropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) GroupOpened() {
	if m == nil {
		return
	}
	m.GroupsOpened.Inc()
}

func (m *Metrics) VerifyStarted() {
	if m == nil {
		return
	}
	m.GroupsInFlight.Inc()
}

// GroupSettled records a terminal state and the time since the group opened.
func (m *Metrics) GroupSettled(state string, openedAt time.Time) {
	if m == nil {
		return
	}
	m.GroupsInFlight.Dec()
	m.GroupsSettled.WithLabelValues(state).Inc()
	if !openedAt.IsZero() {
		m.SettleLatency.Observe(time.Since(openedAt).Seconds())
	}
}

func (m *Metrics) ObserveRound() {
	if m == nil {
		return
	}
	m.VerifyRounds.Inc()
}

func (m *Metrics) IndexerMiss(reason string) {
	if m == nil {
		return
	}
	m.IndexerMisses.WithLabelValues(reason).Inc()
}

func (m *Metrics) Notified(category string, delivered, failed int) {
	if m == nil {
		return
	}
	m.Categories.WithLabelValues(category).Inc()
	m.Deliveries.WithLabelValues("delivered").Add(float64(delivered))
	m.Deliveries.WithLabelValues("failed").Add(float64(failed))
}
