// Package metrics exposes the chat core's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "report_chat"

// Push outcomes.
const (
	PushSent     = "sent"
	PushSkipped  = "skipped"
	PushFailed   = "failed"
	PushDisabled = "disabled"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	connections      prometheus.Gauge
	joins            *prometheus.CounterVec
	messages         *prometheus.CounterVec
	persistDuration  prometheus.Histogram
	readReceipts     prometheus.Counter
	typingBroadcasts prometheus.Counter
	staleSignals     *prometheus.CounterVec
	droppedFrames    prometheus.Counter
	push             *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in
// tests to avoid clashing with the global registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ws_connections",
			Help: "Open websocket connections.",
		}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "room_joins_total",
			Help: "Room join attempts by outcome.",
		}, []string{"outcome"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_total",
			Help: "Send attempts by outcome (confirmed, failed, rejected, duplicate).",
		}, []string{"outcome"}),
		persistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "persist_duration_seconds",
			Help:    "Time spent persisting a message.",
			Buckets: prometheus.DefBuckets,
		}),
		readReceipts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "read_receipts_total",
			Help: "message-read broadcasts.",
		}),
		typingBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "typing_broadcasts_total",
			Help: "typing and stop-typing broadcasts.",
		}),
		staleSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stale_signals_total",
			Help: "Dropped signals by kind.",
		}, []string{"kind"}),
		droppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rate_limited_frames_total",
			Help: "Inbound frames dropped by the per-connection limiter.",
		}),
		push: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "push_dispatch_total",
			Help: "Push dispatch decisions by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.connections, m.joins, m.messages, m.persistDuration, m.readReceipts,
		m.typingBroadcasts, m.staleSignals, m.droppedFrames, m.push,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) Join(outcome string) {
	if m != nil {
		m.joins.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Message(outcome string) {
	if m != nil {
		m.messages.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObservePersist(seconds float64) {
	if m != nil {
		m.persistDuration.Observe(seconds)
	}
}

func (m *Metrics) ReadReceipt() {
	if m != nil {
		m.readReceipts.Inc()
	}
}

func (m *Metrics) TypingBroadcast() {
	if m != nil {
		m.typingBroadcasts.Inc()
	}
}

func (m *Metrics) StaleSignal(kind string) {
	if m != nil {
		m.staleSignals.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) FrameDropped() {
	if m != nil {
		m.droppedFrames.Inc()
	}
}

func (m *Metrics) Push(outcome string) {
	if m != nil {
		m.push.WithLabelValues(outcome).Inc()
	}
}
