// Package metrics provides Prometheus metrics for agentlink.
//
// Metrics live in a dedicated registry so tests and embedders can scrape
// them without colliding with the global default registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the supervisor and the shim.
const (
	OutcomeReady     = "ready"
	OutcomeTimeout   = "timeout"
	OutcomeSpawn     = "spawn_error"
	OutcomeCancelled = "cancelled"

	OutcomeExited    = "exited"
	OutcomeTruncated = "truncated"
	OutcomeAborted   = "aborted"
	OutcomeFailed    = "failed"
)

var registry = prometheus.NewRegistry()

// --- Supervisor ---
var (
	engineStartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentlink_engine_starts_total",
			Help: "Engine start attempts by outcome",
		},
		[]string{"engine", "outcome"},
	)

	engineStartupSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentlink_engine_startup_seconds",
			Help:    "Time from spawn until the liveness probe succeeded",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"engine"},
	)

	engineProbeAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentlink_engine_probe_attempts_total",
			Help: "Liveness probe requests sent while waiting for readiness",
		},
		[]string{"engine"},
	)

	engineRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentlink_engine_running",
			Help: "Supervised engine processes currently alive",
		},
		[]string{"engine"},
	)
)

// --- Shim ---
var (
	shimExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentlink_shim_executions_total",
			Help: "One-shot engine invocations by outcome",
		},
		[]string{"outcome"},
	)

	shimExecutionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentlink_shim_execution_seconds",
			Help:    "Wall time of one-shot engine invocations",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		},
	)

	shimActiveExecutions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentlink_shim_active_executions",
			Help: "One-shot engine invocations currently running",
		},
	)

	shimSessionsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentlink_shim_sessions_created_total",
			Help: "Sessions created through the shim",
		},
	)
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		engineStartsTotal,
		engineStartupSeconds,
		engineProbeAttemptsTotal,
		engineRunning,
		shimExecutionsTotal,
		shimExecutionSeconds,
		shimActiveExecutions,
		shimSessionsCreatedTotal,
	)
}

// Registry exposes the agentlink registry, mainly for tests.
func Registry() *prometheus.Registry {
	return registry
}

// Handler serves the agentlink registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// RecordEngineStart counts a finished start attempt. startup is only
// observed for successful starts.
func RecordEngineStart(engine, outcome string, startup time.Duration) {
	engineStartsTotal.WithLabelValues(engine, outcome).Inc()
	if outcome == OutcomeReady {
		engineStartupSeconds.WithLabelValues(engine).Observe(startup.Seconds())
	}
}

// RecordProbeAttempt counts one liveness probe request.
func RecordProbeAttempt(engine string) {
	engineProbeAttemptsTotal.WithLabelValues(engine).Inc()
}

// EngineRunning adjusts the live engine gauge by delta (+1 on spawn, -1 on exit).
func EngineRunning(engine string, delta float64) {
	engineRunning.WithLabelValues(engine).Add(delta)
}

// ExecutionStarted marks an invocation as in flight and returns a func
// that records its outcome.
func ExecutionStarted() func(outcome string) {
	start := time.Now()
	shimActiveExecutions.Inc()
	return func(outcome string) {
		shimActiveExecutions.Dec()
		shimExecutionsTotal.WithLabelValues(outcome).Inc()
		shimExecutionSeconds.Observe(time.Since(start).Seconds())
	}
}

// SessionCreated counts a new shim session.
func SessionCreated() {
	shimSessionsCreatedTotal.Inc()
}
