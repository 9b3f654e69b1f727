// Package metrics defines and registers the custom Prometheus metrics of the
// group request service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default registry on package init through
// promauto and exposed by the /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "group_requests"

// ── Request lifecycle metrics ─────────────────────────────────────────────────

// OperationsTotal counts lifecycle operations handled by the API.
// Labels:
//   - operation: "create", "accept", "reject" or "withdraw"
//   - result: "ok", "duplicate", "not_found", "invalid_transition" or "error"
var OperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Total number of request lifecycle operations, by operation and result.",
	},
	[]string{"operation", "result"},
)

// ── Audit event metrics ───────────────────────────────────────────────────────

// EventsProcessedTotal counts audit events written successfully.
// Label:
//   - cause: what produced the event (e.g. "accept", "cascade")
var EventsProcessedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_processed_total",
		Help:      "Total number of request audit events recorded.",
	},
	[]string{"cause"},
)

// EventsErrorsTotal counts audit events that could not be recorded.
var EventsErrorsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_errors_total",
		Help:      "Total number of request audit events that failed to record.",
	},
)

// EventsQueueDepth tracks the number of events waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var EventsQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "events_queue_depth",
		Help:      "Current number of events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// EventProcessingDuration measures how long recording a single event takes.
// Label:
//   - cause: the event cause, or "error" on failure
var EventProcessingDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "event_processing_duration_seconds",
		Help:      "Duration of audit event processing from dequeue to persistence.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"cause"},
)
