package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveDecision("fast", "FinanceCorp", 1)
	m.ObserveDecision("fast", "FinanceCorp", 0.9)
	m.ObserveRouteError("exhausted")
	m.ObserveAttempt("openai", "success", 20*time.Millisecond)
	m.ObserveAttempt("anthropic", "unavailable", time.Millisecond)
	m.SetLiveProviders(2)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Decisions.WithLabelValues("fast", "FinanceCorp")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RouteErrors.WithLabelValues("exhausted")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Attempts.WithLabelValues("anthropic", "unavailable")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.LiveProviders))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveDecision("fast", "x", 1)
	m.ObserveRouteError("x")
	m.ObserveAttempt("p", "success", time.Second)
	m.SetLiveProviders(1)
}
