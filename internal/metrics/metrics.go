package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels shared by quote and validation metrics.
const (
	OutcomeRoute    = "route"
	OutcomeDeclined = "declined"
	OutcomeFailed   = "failed"
	OutcomeFatal    = "fatal"
	OutcomeTimeout  = "timeout"
)

var (
	// QuotesTotal counts provider task outcomes.
	QuotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridgescope_quotes_total",
			Help: "Total number of provider quote tasks by outcome",
		},
		[]string{"provider", "outcome"},
	)

	// ValidationSeconds tracks how long proving a quote takes.
	ValidationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridgescope_validation_seconds",
			Help:    "Quote replay and validation latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "outcome"},
	)

	// SandboxClaims counts session pool claims.
	SandboxClaims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridgescope_sandbox_claims_total",
			Help: "Total number of sandbox pool claims by result",
		},
		[]string{"result"},
	)

	// ReplayRetries counts transaction replay retries.
	ReplayRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridgescope_replay_retries_total",
			Help: "Total number of transaction replay retries",
		},
		[]string{"provider"},
	)

	// AggregationSeconds tracks end-to-end route selection latency.
	AggregationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridgescope_aggregation_seconds",
			Help:    "Route aggregation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
)
