package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_mutations_total",
		Help: "Total number of cart mutations",
	}, []string{"op"})

	CartPersistFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_persist_failures_total",
		Help: "Total number of failed cart persistence operations",
	}, []string{"op"})

	OrdersCommittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_orders_committed_total",
		Help: "Total number of orders created through checkout",
	}, []string{"payment_term"})

	OrderCommitFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_order_commit_failures_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	CheckoutValidationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_checkout_validation_failures_total",
		Help: "Total number of checkout payloads rejected by validation",
	})

	VerificationSessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_verification_sessions_started_total",
		Help: "Total number of bank-transfer verification sessions opened",
	})

	VerificationOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_verification_outcomes_total",
		Help: "Terminal outcomes of verification sessions",
	}, []string{"outcome"})

	VerificationTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_verification_ticks_total",
		Help: "Total number of transaction feed checks",
	}, []string{"result"})

	TransactionFeedErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_transaction_feed_errors_total",
		Help: "Total number of transaction feed errors",
	}, []string{"code"})

	TransactionFeedLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_transaction_feed_latency_seconds",
		Help:    "Latency of transaction feed requests",
		Buckets: prometheus.DefBuckets,
	})

	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_backend_request_duration_seconds",
		Help:    "Latency of backend API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	ReconciliationsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_reconciliations_recorded_total",
		Help: "Total number of detected payments recorded for manual reconciliation",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
