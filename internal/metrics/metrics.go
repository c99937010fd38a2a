// Package metrics exposes the Prometheus collectors of the marketplace
// service.  Collectors are registered on the default registry at init
// and served by the /metrics route.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Intake
	ListingsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_listings_submitted_total",
			Help: "Listings accepted by the intake normalizer",
		},
		[]string{"channel"},
	)

	IntakeRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_intake_rejected_total",
			Help: "Submissions rejected by the intake normalizer",
		},
		[]string{"channel", "reason"},
	)

	// Approval
	ListingDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_listing_decisions_total",
			Help: "Approval transitions by outcome",
		},
		[]string{"decision", "outcome"},
	)

	ListingsPromoted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_listings_promoted_total",
			Help: "Car listings created by promotion",
		},
		[]string{"source"},
	)

	// Ledger
	LeadsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_leads_recorded_total",
			Help: "Leads appended, by source type",
		},
		[]string{"source_type"},
	)

	TransactionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_transaction_transitions_total",
			Help: "Transaction state transitions",
		},
		[]string{"to"},
	)

	CommissionAmountCents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_commission_amount_cents_total",
			Help: "Commission amounts created and paid, in minor units",
		},
		[]string{"status"},
	)

	// Conditional writes that lost against a concurrent writer.
	ConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_write_conflicts_total",
			Help: "Compare-and-set writes that matched no row",
		},
		[]string{"operation"},
	)

	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	ResponseCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "response_cache_results_total",
			Help: "Response cache lookups by result (hit, miss, bypass)",
		},
		[]string{"result"},
	)

	// Upstream
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Outbound calls by target and result (success, failure, rejected)",
		},
		[]string{"target", "result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// RecordRequest records one served HTTP request.
func RecordRequest(method, endpoint string, status int, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}
