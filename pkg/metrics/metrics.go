// Package metrics exposes Prometheus collectors for routing decisions and
// provider attempts.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "finroute"

// Metrics groups the router collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Decisions      *prometheus.CounterVec
	DecisionConf   *prometheus.HistogramVec
	RouteErrors    *prometheus.CounterVec
	Attempts       *prometheus.CounterVec
	AttemptLatency *prometheus.HistogramVec
	LiveProviders  prometheus.Gauge
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Routing decisions by method and target",
			},
			[]string{"method", "target"},
		),
		DecisionConf: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fast_confidence",
				Help:      "Pattern matcher confidence per routed query",
				Buckets:   []float64{0, 0.2, 0.4, 0.6, 0.8, 0.9, 1},
			},
			[]string{"method"},
		),
		RouteErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "route_errors_total",
				Help:      "Routing calls that produced no decision",
			},
			[]string{"reason"},
		),
		Attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_attempts_total",
				Help:      "Fallback chain attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		AttemptLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_attempt_seconds",
				Help:      "Latency of a single provider attempt",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		LiveProviders: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_providers",
				Help:      "Providers that passed the liveness probe",
			},
		),
	}
}

// ObserveDecision records a produced decision.
func (m *Metrics) ObserveDecision(method, target string, fastConfidence float64) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(method, target).Inc()
	m.DecisionConf.WithLabelValues(method).Observe(fastConfidence)
}

// ObserveRouteError records a routing call that failed.
func (m *Metrics) ObserveRouteError(reason string) {
	if m == nil {
		return
	}
	m.RouteErrors.WithLabelValues(reason).Inc()
}

// ObserveAttempt records one provider attempt. outcome is "success" or a
// failure kind.
func (m *Metrics) ObserveAttempt(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(provider, outcome).Inc()
	m.AttemptLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// SetLiveProviders records the size of the current chain.
func (m *Metrics) SetLiveProviders(n int) {
	if m == nil {
		return
	}
	m.LiveProviders.Set(float64(n))
}
