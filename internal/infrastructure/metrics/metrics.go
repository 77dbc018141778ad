package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by method, route and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barterhub_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks latency per route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "barterhub_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "route"})

	// SettlementsTotal counts settlement attempts by outcome.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barterhub_settlements_total",
		Help: "Settlement attempts by outcome (settled, conflict, unavailable, error)",
	}, []string{"outcome"})

	// SettlementDuration tracks how long a settlement transaction takes.
	SettlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "barterhub_settlement_duration_seconds",
		Help:    "Latency distribution of settlement transactions",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	// SchedulerPassesTotal counts scheduler passes by stage.
	SchedulerPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barterhub_scheduler_passes_total",
		Help: "Scheduler pass executions by stage (escalate, auto_complete, reservation_cleanup)",
	}, []string{"stage"})

	// SchedulerTransitionsTotal counts trades moved by the scheduler.
	SchedulerTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barterhub_scheduler_transitions_total",
		Help: "Trades transitioned by the scheduler, labeled by stage and outcome",
	}, []string{"stage", "outcome"})

	// CycleDetectionDuration tracks barter cycle search latency.
	CycleDetectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "barterhub_cycle_detection_duration_seconds",
		Help:    "Latency distribution of barter cycle searches",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	// CyclesFoundTotal counts barter cycles discovered, labeled by length.
	CyclesFoundTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barterhub_cycles_found_total",
		Help: "Barter cycles discovered, labeled by cycle length",
	}, []string{"length"})

	// SSEClientsConnected reports the current number of SSE subscribers.
	SSEClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "barterhub_sse_clients_connected",
		Help: "Current number of connected SSE clients",
	})
)
