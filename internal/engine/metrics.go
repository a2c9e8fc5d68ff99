package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "eventpush"

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	handled        *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec
	remoteErrors   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "handled_total",
			Help:      "Handle calls by object type, action and outcome.",
		}, []string{"object_type", "action", "outcome"}),

		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Subsystem: "catalog",
			Name:      "request_duration_seconds",
			Help:      "Latency of catalog calls by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		remoteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: "catalog",
			Name:      "errors_total",
			Help:      "Failed catalog calls by operation.",
		}, []string{"operation"}),
	}

	if reg != nil {
		reg.MustRegister(m.handled, m.remoteDuration, m.remoteErrors)
	}
	return m
}

func (m *Metrics) observeResult(r Result) {
	if m == nil {
		return
	}
	m.handled.WithLabelValues(r.ObjectType, string(r.Action), string(r.Outcome)).Inc()
}

func (m *Metrics) observeRemote(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.remoteDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		m.remoteErrors.WithLabelValues(operation).Inc()
	}
}
