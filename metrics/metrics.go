package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// ResultSuccess indicates a successful operation
	ResultSuccess = "success"
	// ResultError indicates a failed operation
	ResultError = "error"
)

var (
	// DiscoveryTotal counts OpenID configuration fetches
	DiscoveryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entraguard_discovery_total",
			Help: "Total number of OpenID configuration fetches",
		},
		[]string{"result"}, // result: success, error
	)

	// JWKSFetchTotal counts JWKS document fetches, including refreshes on unknown kids
	JWKSFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entraguard_jwks_fetch_total",
			Help: "Total number of JWKS fetches",
		},
		[]string{"result"}, // result: success, error
	)

	// VerificationsTotal counts bearer token verifications by outcome
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entraguard_verifications_total",
			Help: "Total number of bearer token verifications",
		},
		[]string{"result"}, // result: success or the failure kind
	)

	// VerificationDuration is a histogram for verification latency
	VerificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entraguard_verification_duration_seconds",
			Help:    "Duration of bearer token verification in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	// RejectedClientsTotal counts requests refused by the failure throttle
	RejectedClientsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "entraguard_throttled_requests_total",
			Help: "Total number of requests refused because the client presented too many bad tokens",
		},
	)
)

// ObserveVerification records one verification outcome.
func ObserveVerification(result string, started time.Time) {
	VerificationsTotal.WithLabelValues(result).Inc()
	VerificationDuration.WithLabelValues(result).Observe(time.Since(started).Seconds())
}

// Result maps an error to ResultSuccess or ResultError.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
