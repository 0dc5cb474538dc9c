package apiclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are optional; a nil *Metrics records nothing
type Metrics struct {
	requests   *prometheus.CounterVec
	duration   prometheus.Histogram
	queued     prometheus.Gauge
	broadcasts prometheus.Counter
}

// NewMetrics creates and registers client metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "farmhand",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Completed API calls by outcome classification.",
		}, []string{"kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "farmhand",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Latency of single HTTP attempts.",
			Buckets:   prometheus.DefBuckets,
		}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "farmhand",
			Subsystem: "client",
			Name:      "refresh_queue_length",
			Help:      "Requests waiting on a pending session decision.",
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "farmhand",
			Subsystem: "client",
			Name:      "session_expired_broadcasts_total",
			Help:      "Session-expired events emitted by the client.",
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.queued, m.broadcasts)
	return m
}

func (m *Metrics) observeResult(err error) {
	if m == nil {
		return
	}
	kind := "ok"
	if err != nil {
		kind = string(KindOf(err))
		if kind == "" {
			kind = "internal"
		}
	}
	m.requests.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeAttempt(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) setQueued(n int) {
	if m == nil {
		return
	}
	m.queued.Set(float64(n))
}

func (m *Metrics) incBroadcast() {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
}
