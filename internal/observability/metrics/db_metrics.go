package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func registerDBMetrics(db *sql.DB, logger *zap.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "outbox_pending",
			Help: "Outbox messages waiting for delivery",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM outbox_messages WHERE processed_at IS NULL")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "outbox_abandoned",
			Help: "Outbox messages given up after exhausting retries",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM outbox_messages WHERE processed_at IS NOT NULL AND status = 'Failed'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "alert_events_open",
			Help: "Alert events without an end time",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM alert_events WHERE end_time IS NULL")
		},
	))
}

func queryCount(db *sql.DB, logger *zap.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Warn("metrics query failed", zap.Error(err))
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
