package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ghostwrite"

// Metrics exports lifecycle counters to prometheus.
type Metrics struct {
	Completions    *prometheus.CounterVec
	Latency        prometheus.Histogram
	AcceptedChars  prometheus.Counter
	ActiveSessions prometheus.Gauge
}

// NewMetrics registers the completion metrics with reg.
// A nil reg uses the default prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Completions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Completion lifecycle events by kind",
		}, []string{"event"}),
		Latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_latency_seconds",
			Help:      "Time from request to received completion",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
		}),
		AcceptedChars: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accepted_chars_total",
			Help:      "Characters inserted by accepted completions",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Open document sessions",
		}),
	}
}

// Observe updates the counters for one event.
func (m *Metrics) Observe(e Event) {
	if m == nil {
		return
	}
	m.Completions.WithLabelValues(string(e.Kind)).Inc()
	switch e.Kind {
	case KindReceived:
		if e.Latency > 0 {
			m.Latency.Observe(e.Latency.Seconds())
		}
	case KindAccepted:
		if e.Chars > 0 {
			m.AcceptedChars.Add(float64(e.Chars))
		}
	}
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m != nil {
		m.ActiveSessions.Dec()
	}
}
