// Package observability exposes the application's prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics handles application metrics and monitoring.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	mergeDuration     prometheus.Histogram
	rollbacksTotal    *prometheus.CounterVec
	journalFailures   prometheus.Counter
	activeConnections prometheus.Gauge
}

// NewMetrics registers the application metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		operationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindmap",
			Name:      "operations_total",
			Help:      "Merge outcomes by operation type, outcome and rejection reason.",
		}, []string{"type", "outcome", "reason"}),
		mergeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mindmap",
			Name:      "merge_duration_seconds",
			Help:      "Time spent inside the per-map critical section.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		rollbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindmap",
			Name:      "rollbacks_total",
			Help:      "Rollback outcomes.",
		}, []string{"outcome"}),
		journalFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mindmap",
			Name:      "journal_append_failures_total",
			Help:      "Operation log appends that failed and aborted a merge.",
		}),
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mindmap",
			Name:      "websocket_connections",
			Help:      "Currently registered WebSocket connections.",
		}),
	}
}

// RecordMerge records one merge outcome.
func (m *Metrics) RecordMerge(opType string, accepted bool, reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	if reason == "" {
		reason = "none"
	}
	m.operationsTotal.WithLabelValues(opType, outcome, reason).Inc()
	m.mergeDuration.Observe(elapsed.Seconds())
}

// RecordMergeError records a merge aborted by a storage fault.
func (m *Metrics) RecordMergeError(opType string) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(opType, "error", "storage").Inc()
}

// RecordJournalFailure records a failed journal append.
func (m *Metrics) RecordJournalFailure() {
	if m == nil {
		return
	}
	m.journalFailures.Inc()
}

// RecordRollback records one rollback outcome.
func (m *Metrics) RecordRollback(success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.rollbacksTotal.WithLabelValues(outcome).Inc()
}

// ConnectionOpened increments the connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
}

// ConnectionClosed decrements the connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}
