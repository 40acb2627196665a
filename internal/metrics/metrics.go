package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewardedads_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rewardedads_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Mediation metrics
	AdsServedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewardedads_ads_served_total",
			Help: "Total number of ad offers issued, by provider",
		},
		[]string{"provider"},
	)

	AdDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewardedads_denials_total",
			Help: "Total number of denied ad requests, by reason",
		},
		[]string{"reason"},
	)

	ProviderNoFillTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewardedads_provider_no_fill_total",
			Help: "Providers skipped during mediation for lack of fill",
		},
		[]string{"provider"},
	)

	ProviderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewardedads_provider_errors_total",
			Help: "Provider probe/reserve failures absorbed by mediation",
		},
		[]string{"provider"},
	)

	ProviderProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rewardedads_provider_probe_duration_seconds",
			Help:    "Latency of provider availability probes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// Session metrics
	SessionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rewardedads_sessions_open",
			Help: "Number of sessions currently issued or watching",
		},
	)

	SessionsTerminalTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewardedads_sessions_terminal_total",
			Help: "Sessions reaching a terminal state, by outcome",
		},
		[]string{"state"},
	)

	// Ledger metrics
	CreditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewardedads_credits_total",
			Help: "Reward credit attempts, by outcome",
		},
		[]string{"outcome"},
	)

	PointsCreditedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rewardedads_points_credited_total",
			Help: "Total points written to the reward ledger",
		},
	)
)

// Credit outcomes
const (
	CreditOutcomeCredited  = "credited"
	CreditOutcomeDuplicate = "duplicate"
)
