package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_confirmed_total",
		Help: "Total number of orders confirmed",
	})

	OrdersCanceledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_canceled_total",
		Help: "Total number of orders canceled",
	}, []string{"reason"})

	SeatsReservedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seats_reserved_total",
		Help: "Total number of seats reserved",
	})

	SeatConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seat_reservation_conflicts_total",
		Help: "Total number of reservation attempts rejected on a seat conflict",
	})

	SeatsReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seats_released_total",
		Help: "Total number of seats released back to AVAILABLE",
	})

	PaymentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Total number of charge attempts, replays included",
	})

	PaymentReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_replays_total",
		Help: "Total number of charges answered from an existing reference",
	})

	PaymentSuccessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_success_total",
		Help: "Total number of successful payments",
	})

	PaymentFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_failed_total",
		Help: "Total number of declined payments",
	})

	PaymentRefundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_refunds_total",
		Help: "Total number of refunds",
	})

	TicketsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_issued_total",
		Help: "Total number of tickets issued",
	})

	CompensationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saga_compensation_failures_total",
		Help: "Total number of compensations that failed and were parked for reconciliation",
	})

	SagasRecoveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sagas_recovered_total",
		Help: "Total number of stalled sagas driven to a terminal step by recovery",
	}, []string{"outcome"})

	SagaStepLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saga_step_latency_seconds",
		Help:    "Latency of individual saga steps",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Total number of notifications delivered",
	}, []string{"channel"})

	NotificationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Total number of notification deliveries that failed (absorbed)",
	}, []string{"channel"})

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
