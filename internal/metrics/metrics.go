// Package metrics holds the process-wide Prometheus collectors exposed on
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "caixa",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests by route pattern and status code.",
}, []string{"method", "route", "status"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "caixa",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route pattern.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route"})

// LoginAttempts is labelled ok, rejected or limited.
var LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "caixa",
	Subsystem: "auth",
	Name:      "login_attempts_total",
	Help:      "Login attempts by outcome.",
}, []string{"result"})

var SalesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "caixa",
	Subsystem: "ledger",
	Name:      "sales_recorded_total",
	Help:      "Sales written, by payment method.",
}, []string{"method"})

var ExpensesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "caixa",
	Subsystem: "ledger",
	Name:      "expenses_recorded_total",
	Help:      "Expenses written.",
})

// ReportsEmitted is labelled by format and trigger (request, schedule, cli).
var ReportsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "caixa",
	Subsystem: "report",
	Name:      "emitted_total",
	Help:      "Closing reports emitted.",
}, []string{"format", "trigger"})

var RevocationsPruned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "caixa",
	Subsystem: "auth",
	Name:      "revocations_pruned_total",
	Help:      "Expired denylist entries removed by the scheduler.",
})
