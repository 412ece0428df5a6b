package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CircuitState reports the breaker state per upstream service
	// (0 = closed, 1 = open, 2 = half-open).
	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acp_circuit_state",
			Help: "Circuit breaker state per upstream service (0 closed, 1 open, 2 half-open)",
		},
		[]string{"service"},
	)

	// UpstreamRequestsTotal counts upstream calls by outcome.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acp_upstream_requests_total",
			Help: "Total upstream calls by service and outcome",
		},
		[]string{"service", "outcome"},
	)

	// RetriesTotal counts retry attempts after rate-limit responses.
	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acp_retries_total",
			Help: "Total retry attempts per upstream service",
		},
		[]string{"service"},
	)

	// CacheRequestsTotal counts availability cache lookups by result.
	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acp_cache_requests_total",
			Help: "Availability cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)

	// TokenRefreshTotal counts credential refreshes by outcome.
	TokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acp_token_refresh_total",
			Help: "Upstream credential refreshes by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(CircuitState)
	prometheus.MustRegister(UpstreamRequestsTotal)
	prometheus.MustRegister(RetriesTotal)
	prometheus.MustRegister(CacheRequestsTotal)
	prometheus.MustRegister(TokenRefreshTotal)
}
