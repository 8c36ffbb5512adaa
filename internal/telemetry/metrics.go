package telemetry

import "github.com/prometheus/client_golang/prometheus"

// PostsDispatchedTotal counts Orchestrator fan-out attempts by platform and outcome.
var PostsDispatchedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "plurcast",
		Subsystem: "orchestrator",
		Name:      "posts_dispatched_total",
		Help:      "Total number of per-platform post dispatch attempts.",
	},
	[]string{"platform", "outcome"},
)

// PostRetriesTotal counts retry attempts issued by the Orchestrator, by platform.
var PostRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "plurcast",
		Subsystem: "orchestrator",
		Name:      "post_retries_total",
		Help:      "Total number of per-platform retry attempts.",
	},
	[]string{"platform"},
)

// DispatchDuration observes wall-clock time of a single adapter.post call.
var DispatchDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "plurcast",
		Subsystem: "orchestrator",
		Name:      "dispatch_duration_seconds",
		Help:      "Duration of a single adapter post call in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
	[]string{"platform"},
)

// RateLimitRejectionsTotal counts check_and_record calls that returned would_exceed.
var RateLimitRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "plurcast",
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "Total number of rate limit checks that returned would_exceed.",
	},
	[]string{"platform"},
)

// DispatcherIterationsTotal counts completed polling-loop iterations.
var DispatcherIterationsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "plurcast",
		Subsystem: "dispatcher",
		Name:      "iterations_total",
		Help:      "Total number of completed dispatcher polling iterations.",
	},
)

// DispatcherQueueDepth reports the number of due/retry-eligible posts seen
// at the start of the most recent iteration, by queue kind.
var DispatcherQueueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "plurcast",
		Subsystem: "dispatcher",
		Name:      "queue_depth",
		Help:      "Number of posts observed in the due/retry queues at the last poll.",
	},
	[]string{"queue"},
)

// All returns every Plurcast metric for registration with a prometheus.Registry.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		PostsDispatchedTotal,
		PostRetriesTotal,
		DispatchDuration,
		RateLimitRejectionsTotal,
		DispatcherIterationsTotal,
		DispatcherQueueDepth,
	}
}

// NewRegistry creates a prometheus.Registry with the given collectors
// (typically telemetry.All()) plus the standard process/Go collectors.
func NewRegistry(collectors ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	for _, c := range collectors {
		reg.MustRegister(c)
	}
	return reg
}
