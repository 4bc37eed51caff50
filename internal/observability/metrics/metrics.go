package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "hivewatch_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	evaluationTotal        *prometheus.CounterVec
	evaluationLatency      *prometheus.HistogramVec
	measurementsConsidered prometheus.Counter
	alertTransitions       *prometheus.CounterVec
	jobRunsSkipped         *prometheus.CounterVec

	outboxDispatchTotal   *prometheus.CounterVec
	outboxDispatchLatency *prometheus.HistogramVec
	outboxMessages        *prometheus.CounterVec
	publishTotal          *prometheus.CounterVec
)

// Init registers metrics and DB-backed gauges. db may be nil.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		evaluationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_evaluation_total",
				Help: "Total alert evaluation passes by result",
			},
			[]string{"result"},
		)
		evaluationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "alert_evaluation_latency_seconds",
				Help:    "Alert evaluation pass latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		measurementsConsidered = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_measurements_considered_total",
				Help: "Total measurements loaded by alert evaluation",
			},
		)
		alertTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_transitions_total",
				Help: "Total alert event transitions by type",
			},
			[]string{"type"},
		)
		jobRunsSkipped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "job_runs_skipped_total",
				Help: "Scheduled runs skipped because the previous run was still in flight",
			},
			[]string{"job"},
		)

		outboxDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Total outbox dispatch ticks by result",
			},
			[]string{"result"},
		)
		outboxDispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_dispatch_latency_seconds",
				Help:    "Outbox dispatch tick latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_messages_total",
				Help: "Outbox messages handled by outcome (processed, retried, abandoned)",
			},
			[]string{"outcome"},
		)
		publishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_publish_total",
				Help: "Publish attempts by message type and result",
			},
			[]string{"type", "result"},
		)

		prometheus.MustRegister(
			evaluationTotal,
			evaluationLatency,
			measurementsConsidered,
			alertTransitions,
			jobRunsSkipped,
			outboxDispatchTotal,
			outboxDispatchLatency,
			outboxMessages,
			publishTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveEvaluation records an evaluation pass.
func ObserveEvaluation(result string, duration time.Duration, measurements int) {
	if result == "" {
		result = resultSuccess
	}
	if evaluationTotal != nil {
		evaluationTotal.WithLabelValues(result).Inc()
	}
	if evaluationLatency != nil {
		evaluationLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if measurementsConsidered != nil && measurements > 0 {
		measurementsConsidered.Add(float64(measurements))
	}
}

// IncAlertTransition increments alert lifecycle counters.
func IncAlertTransition(transition string) {
	if transition == "" {
		transition = "unknown"
	}
	if alertTransitions != nil {
		alertTransitions.WithLabelValues(transition).Inc()
	}
}

// IncJobSkipped counts a scheduled run dropped by the single-flight guard.
func IncJobSkipped(job string) {
	if job == "" {
		job = "unknown"
	}
	if jobRunsSkipped != nil {
		jobRunsSkipped.WithLabelValues(job).Inc()
	}
}

// ObserveOutboxDispatch records one dispatch tick.
func ObserveOutboxDispatch(result string, duration time.Duration, processed, retried, abandoned int) {
	if result == "" {
		result = resultSuccess
	}
	if outboxDispatchTotal != nil {
		outboxDispatchTotal.WithLabelValues(result).Inc()
	}
	if outboxDispatchLatency != nil {
		outboxDispatchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if outboxMessages == nil {
		return
	}
	if processed > 0 {
		outboxMessages.WithLabelValues("processed").Add(float64(processed))
	}
	if retried > 0 {
		outboxMessages.WithLabelValues("retried").Add(float64(retried))
	}
	if abandoned > 0 {
		outboxMessages.WithLabelValues("abandoned").Add(float64(abandoned))
	}
}

// ObservePublish records a single publish attempt.
func ObservePublish(msgType, result string) {
	if msgType == "" {
		msgType = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if publishTotal != nil {
		publishTotal.WithLabelValues(msgType, result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
