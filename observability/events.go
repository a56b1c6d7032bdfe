package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics tracks the wallet session: bridged events, contract calls,
// boots and contract rebinds. All methods are nil-safe.
type SessionMetrics struct {
	events        *prometheus.CounterVec
	writes        *prometheus.CounterVec
	reads         *prometheus.HistogramVec
	boots         *prometheus.CounterVec
	handlerErrors *prometheus.CounterVec
	rebinds       prometheus.Counter
}

var (
	sessionMetricsOnce sync.Once
	sessionRegistry    *SessionMetrics
)

// Session returns the process-wide session metrics, registering them with the
// default Prometheus registry on first use.
func Session() *SessionMetrics {
	sessionMetricsOnce.Do(func() {
		sessionRegistry = NewSessionMetrics(prometheus.DefaultRegisterer)
	})
	return sessionRegistry
}

// NewSessionMetrics builds a metrics set registered with reg. Tests pass a
// fresh prometheus.NewRegistry().
func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "votesync",
			Name:      "events_total",
			Help:      "Normalized wallet and contract events published by the bridge.",
		}, []string{"kind"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "votesync",
			Name:      "writes_total",
			Help:      "Contract write submissions segmented by method and result.",
		}, []string{"method", "result"}),
		reads: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "votesync",
			Name:      "read_duration_seconds",
			Help:      "Latency of contract reads.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		boots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "votesync",
			Name:      "boot_total",
			Help:      "Session boots segmented by result.",
		}, []string{"result"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "votesync",
			Name:      "handler_errors_total",
			Help:      "Errors caught while applying events or requests to the session.",
		}, []string{"kind"}),
		rebinds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "votesync",
			Name:      "rebinds_total",
			Help:      "Contract bindings established.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.events, m.writes, m.reads, m.boots, m.handlerErrors, m.rebinds)
	}
	return m
}

// RecordEvent counts a published event.
func (m *SessionMetrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(kind)).Inc()
}

// RecordWrite counts a write submission.
func (m *SessionMetrics) RecordWrite(method string, err error) {
	if m == nil {
		return
	}
	result := "submitted"
	if err != nil {
		result = "rejected"
	}
	m.writes.WithLabelValues(normalizeLabel(method), result).Inc()
}

// ObserveRead records the latency of a contract read.
func (m *SessionMetrics) ObserveRead(method string, started time.Time) {
	if m == nil {
		return
	}
	m.reads.WithLabelValues(normalizeLabel(method)).Observe(time.Since(started).Seconds())
}

// RecordBoot counts a boot outcome: "ready", "degraded" or "no_wallet".
func (m *SessionMetrics) RecordBoot(result string) {
	if m == nil {
		return
	}
	m.boots.WithLabelValues(normalizeLabel(result)).Inc()
}

// RecordHandlerError counts an error absorbed by the store.
func (m *SessionMetrics) RecordHandlerError(kind string) {
	if m == nil {
		return
	}
	m.handlerErrors.WithLabelValues(normalizeLabel(kind)).Inc()
}

// RecordRebind counts a contract rebind.
func (m *SessionMetrics) RecordRebind() {
	if m == nil {
		return
	}
	m.rebinds.Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
