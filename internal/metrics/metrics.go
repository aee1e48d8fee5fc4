// Package metrics provides Prometheus metrics for the request layer.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "compliancectl"

// Refresh outcomes used as the "result" label
const (
	RefreshRenewed  = "renewed"
	RefreshRejected = "rejected"
	RefreshNoToken  = "no_token"
	RefreshError    = "error"
	RefreshStale    = "already_renewed"
)

// Metrics holds the collectors for one registry
type Metrics struct {
	gatherer prometheus.Gatherer

	// RequestsTotal counts dispatches by method and status code ("error" when no response).
	RequestsTotal *prometheus.CounterVec

	// RetriesTotal counts requests re-sent after a renewal.
	RetriesTotal prometheus.Counter

	// RefreshTotal counts renewal outcomes.
	RefreshTotal *prometheus.CounterVec

	// RefreshCoalescedTotal counts callers that shared another caller's refresh call.
	RefreshCoalescedTotal prometheus.Counter

	// RefreshDuration measures the refresh network call.
	RefreshDuration prometheus.Histogram
}

// New registers the collectors with reg. When reg is nil a private registry
// is used so repeated construction in tests never collides.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP dispatches",
			},
			[]string{"method", "code"},
		),
		RetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "request_retries_total",
				Help:      "Total number of requests re-sent after a session renewal",
			},
		),
		RefreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_refresh_total",
				Help:      "Total number of session renewal attempts by result",
			},
			[]string{"result"},
		),
		RefreshCoalescedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_refresh_coalesced_total",
				Help:      "Total number of renewals that joined an in-flight refresh call",
			},
		),
		RefreshDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_refresh_duration_seconds",
				Help:      "Duration of refresh calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// RecordRequest records one dispatch. code 0 means no response was received.
func (m *Metrics) RecordRequest(method string, code int) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.RequestsTotal.WithLabelValues(method, label).Inc()
}

// RecordRetry records a post-renewal retry.
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// RecordRefresh records a renewal outcome.
func (m *Metrics) RecordRefresh(result string) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(result).Inc()
}

// RecordRefreshCall records the duration of one refresh network call.
func (m *Metrics) RecordRefreshCall(seconds float64) {
	if m == nil {
		return
	}
	m.RefreshDuration.Observe(seconds)
}

// RecordCoalesced records a caller that shared an in-flight refresh.
func (m *Metrics) RecordCoalesced() {
	if m == nil {
		return
	}
	m.RefreshCoalescedTotal.Inc()
}

// WriteTextfile writes every collector to path in the text exposition
// format, for node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
