package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-client/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveRequest("GET", metrics.OutcomeSuccess, 10*time.Millisecond)
	m.IncRetry()
	m.IncRetry()
	m.ObserveRefresh(nil)
	m.ObserveRefresh(errors.New("rejected"))
	m.IncEvent("login")

	count, err := testutil.GatherAndCount(reg, "authsession_gateway_retries_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	require.ElementsMatch(t, []string{
		"authsession_gateway_requests_total",
		"authsession_gateway_request_duration_seconds",
		"authsession_gateway_retries_total",
		"authsession_refresh_total",
		"authsession_events_total",
	}, names)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.ObserveRequest("GET", metrics.OutcomeError, time.Second)
		m.IncRetry()
		m.ObserveRefresh(nil)
		m.IncEvent("logout")
	})
}
