// Package metrics holds the Prometheus collectors shared by the gateway and
// the session coordinator. A nil *Metrics records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "authsession"

// Gateway request outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeRefreshed = "refreshed"
)

type Metrics struct {
	gatewayRequests *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	gatewayRetries  prometheus.Counter
	refreshes       *prometheus.CounterVec
	events          *prometheus.CounterVec
}

// New registers the collectors with reg. Use prometheus.NewRegistry() in tests
// to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Requests issued through the HTTP gateway",
		}, []string{"method", "outcome"}),

		gatewayDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Gateway request duration including retries and refresh",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		gatewayRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_retries_total",
			Help:      "Retries performed after transient failures",
		}),

		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Access token refresh attempts by result",
		}, []string{"result"}),

		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Session lifecycle events published",
		}, []string{"type"}),
	}
}

func (m *Metrics) ObserveRequest(method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(method, outcome).Inc()
	m.gatewayDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.gatewayRetries.Inc()
}

// ObserveRefresh records one network refresh; coalesced waiters are not counted.
func (m *Metrics) ObserveRefresh(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) IncEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}
