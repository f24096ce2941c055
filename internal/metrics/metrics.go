package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline metrics
	EventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_events_processed_total",
			Help: "Total number of webhook events processed by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	RulesMatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_rules_matched_total",
			Help: "Total number of rule condition matches",
		},
	)

	ActionsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_actions_dispatched_total",
			Help: "Total number of sync actions dispatched by target and status",
		},
		[]string{"target", "status"},
	)

	DuplicatesSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_duplicates_suppressed_total",
			Help: "Total number of rule executions skipped by the deduplication store",
		},
	)

	ProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_processing_duration_seconds",
			Help:    "End-to-end event processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// Queue metrics
	JobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_jobs_enqueued_total",
			Help: "Total number of jobs enqueued by source",
		},
		[]string{"source"},
	)

	JobsRetried = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_jobs_retried_total",
			Help: "Total number of job retry requeues",
		},
	)

	JobsDead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_jobs_dead_total",
			Help: "Total number of jobs parked in a dead-letter stream",
		},
	)
)

func init() {
	prometheus.MustRegister(EventsProcessed)
	prometheus.MustRegister(RulesMatched)
	prometheus.MustRegister(ActionsDispatched)
	prometheus.MustRegister(DuplicatesSuppressed)
	prometheus.MustRegister(ProcessingDuration)
	prometheus.MustRegister(JobsEnqueued)
	prometheus.MustRegister(JobsRetried)
	prometheus.MustRegister(JobsDead)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Snapshot is the admin-API view of pipeline throughput. Prometheus counters
// cannot be read back cheaply, so the same events feed these atomics.
type Snapshot struct {
	Processed            int64   `json:"processed"`
	Matched              int64   `json:"matched"`
	Dispatched           int64   `json:"dispatched"`
	DispatchFailed       int64   `json:"dispatch_failed"`
	DuplicatesSuppressed int64   `json:"duplicates_suppressed"`
	AvgProcessingMs      float64 `json:"avg_processing_ms"`
}

var (
	processed      atomic.Int64
	matched        atomic.Int64
	dispatched     atomic.Int64
	dispatchFailed atomic.Int64
	suppressed     atomic.Int64
	totalMicros    atomic.Int64
)

// RecordProcessed counts one finished Process call, whatever its outcome.
func RecordProcessed(source, outcome string, elapsed time.Duration) {
	EventsProcessed.WithLabelValues(source, outcome).Inc()
	ProcessingDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	processed.Add(1)
	totalMicros.Add(elapsed.Microseconds())
}

func RecordMatch() {
	RulesMatched.Inc()
	matched.Add(1)
}

func RecordDispatch(target string, err error) {
	if err != nil {
		ActionsDispatched.WithLabelValues(target, "error").Inc()
		dispatchFailed.Add(1)
		return
	}
	ActionsDispatched.WithLabelValues(target, "ok").Inc()
	dispatched.Add(1)
}

func RecordSuppressed() {
	DuplicatesSuppressed.Inc()
	suppressed.Add(1)
}

// Current returns the running totals since process start.
func Current() Snapshot {
	s := Snapshot{
		Processed:            processed.Load(),
		Matched:              matched.Load(),
		Dispatched:           dispatched.Load(),
		DispatchFailed:       dispatchFailed.Load(),
		DuplicatesSuppressed: suppressed.Load(),
	}
	if s.Processed > 0 {
		s.AvgProcessingMs = float64(totalMicros.Load()) / float64(s.Processed) / 1000
	}
	return s
}
