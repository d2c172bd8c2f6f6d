// Package metrics holds the Prometheus collectors exported by the gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LoginAttempts counts login decisions by module and outcome
	// (success, failure, error, throttled).
	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portcullis_login_attempts_total",
			Help: "Login attempts",
		},
		[]string{"module", "outcome"},
	)

	// Accesses counts successful calls to the authenticated confirmation endpoint.
	Accesses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "portcullis_access_total",
			Help: "Authenticated accesses",
		},
	)

	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portcullis_upstream_requests_total",
			Help: "Requests sent to the delegated identity upstream",
		},
		[]string{"step", "outcome"},
	)

	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portcullis_upstream_latency_seconds",
			Help:    "Delegated identity upstream latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"step"},
	)

	// SessionRejected counts presented session tokens that were not usable.
	SessionRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portcullis_session_rejected_total",
			Help: "Session tokens that could not be used",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		LoginAttempts,
		Accesses,
		UpstreamRequests,
		UpstreamLatency,
		SessionRejected,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
