package telemetry

import "github.com/prometheus/client_golang/prometheus"

var QueueLength = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "zoe",
		Subsystem: "scheduler",
		Name:      "queue_length",
		Help:      "Number of executions currently waiting to be scheduled.",
	},
)

var RunningLength = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "zoe",
		Subsystem: "scheduler",
		Name:      "running_length",
		Help:      "Number of executions currently running.",
	},
)

var TerminationThreadsCount = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "zoe",
		Subsystem: "scheduler",
		Name:      "termination_goroutines",
		Help:      "Number of in-flight asynchronous termination goroutines.",
	},
)

var SchedulingRoundDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "zoe",
		Subsystem: "scheduler",
		Name:      "round_duration_seconds",
		Help:      "Duration of a single scheduling loop iteration.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
)

var SpawnFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "zoe",
		Subsystem: "backend",
		Name:      "spawn_failures_total",
		Help:      "Total number of service spawn failures by kind (retry, fatal, elastic).",
	},
	[]string{"kind"},
)

var ServicesSpawnedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "zoe",
		Subsystem: "backend",
		Name:      "services_spawned_total",
		Help:      "Total number of services spawned by service type (essential, elastic).",
	},
	[]string{"type"},
)

var ExecutionsTerminatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "zoe",
		Subsystem: "scheduler",
		Name:      "executions_terminated_total",
		Help:      "Total number of executions terminated by final status.",
	},
	[]string{"status"},
)

var CoreLimitAdjustmentsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "zoe",
		Subsystem: "scheduler",
		Name:      "core_limit_adjustments_total",
		Help:      "Total number of core-limit adjustment passes run.",
	},
)

// All returns all Zoe-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		QueueLength,
		RunningLength,
		TerminationThreadsCount,
		SchedulingRoundDuration,
		SpawnFailuresTotal,
		ServicesSpawnedTotal,
		ExecutionsTerminatedTotal,
		CoreLimitAdjustmentsTotal,
	}
}
