package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "audit_trail"

// Task outcomes recorded by the worker.
const (
	OutcomeSucceeded        = "succeeded"
	OutcomeRetried          = "retried"
	OutcomeDeadLettered     = "dead_lettered"
	OutcomeDropped          = "dropped"
	OutcomeUnknown          = "unknown"
	OutcomeMalformed        = "malformed"
	OutcomePermanentFailure = "permanent_failure"
	OutcomeSettleFailed     = "settle_failed"
	OutcomeDeferred         = "deferred"
)

// PipelineMetrics holds all Prometheus metrics for the API and worker processes.
type PipelineMetrics struct {
	TasksTotal        *prometheus.CounterVec
	HandlerDuration   *prometheus.HistogramVec
	PollErrorsTotal   prometheus.Counter
	EnqueueTotal      *prometheus.CounterVec
	WALActive         prometheus.Gauge
	SearchTotal       *prometheus.CounterVec
	HTTPRequestsTotal *prometheus.CounterVec
	TenantCacheHits   prometheus.Counter
	TenantCacheMisses prometheus.Counter
}

// NewPipelineMetrics initializes the metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in processes and a fresh registry in tests.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)
	return &PipelineMetrics{
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "tasks_total",
			Help:      "Total number of processed queue messages by task type and outcome.",
		}, []string{"task_type", "outcome"}),
		HandlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "handler_duration_seconds",
			Help:      "Duration of task handler executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task_type"}),
		PollErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "poll_errors_total",
			Help:      "Total number of failed queue receive calls.",
		}),
		EnqueueTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "producer",
			Name:      "enqueue_total",
			Help:      "Total number of task enqueue attempts by status.",
		}, []string{"status"}), // status: enqueued, failed, spilled, replayed
		WALActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "producer",
			Name:      "wal_active_gauge",
			Help:      "Indicates if the WAL holds envelopes awaiting replay (1 for active, 0 for inactive).",
		}),
		SearchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "queries_total",
			Help:      "Total number of search queries by status.",
		}, []string{"status"}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		TenantCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "tenant_cache_hits_total",
			Help:      "Total number of tenant lookup cache hits.",
		}),
		TenantCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "tenant_cache_misses_total",
			Help:      "Total number of tenant lookup cache misses.",
		}),
	}
}
