package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// подтверждения платежей: source = chain/admin/http, result = ok/already_confirmed/not_found/error
	Confirmations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xepbot_payment_confirmations_total",
			Help: "Payment confirmation attempts by source and result",
		},
		[]string{"source", "result"},
	)

	RewardsAccrued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xepbot_rewards_accrued_minor_total",
			Help: "Referral rewards accrued, minor units",
		},
	)

	ChainEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xepbot_chain_events_total",
			Help: "Chain events seen by the payment watcher",
		},
		[]string{"source"},
	)

	ChainPollErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xepbot_chain_poll_errors_total",
			Help: "Failed chain polls",
		},
		[]string{"source"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xepbot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xepbot_http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
