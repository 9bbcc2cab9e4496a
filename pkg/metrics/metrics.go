package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the service
type Metrics struct {
	OperationCounter  *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	VerificationPolls prometheus.Histogram
	DBConnPoolStats   *prometheus.GaugeVec
}

// NewMetrics creates a new metrics instance
func NewMetrics(serviceName string) *Metrics {
	return &Metrics{
		OperationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "geohunt",
				Subsystem: serviceName,
				Name:      "operations_total",
				Help:      "Total number of core operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "geohunt",
				Subsystem: serviceName,
				Name:      "operation_duration_seconds",
				Help:      "Operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		VerificationPolls: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "geohunt",
				Subsystem: serviceName,
				Name:      "verification_poll_attempts",
				Help:      "Poll attempts needed per proof verification job",
				Buckets:   []float64{1, 2, 3, 5, 10, 20, 30},
			},
		),
		DBConnPoolStats: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "geohunt",
				Subsystem: serviceName,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"stat"}, // stat can be: open, in_use, idle, wait_count, etc.
		),
	}
}

// ObserveOperation records one completed operation. Safe on a nil receiver so
// services can run without metrics wired.
func (m *Metrics) ObserveOperation(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.OperationCounter.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObservePollAttempts records how many polls a verification job needed.
func (m *Metrics) ObservePollAttempts(attempts int) {
	if m == nil {
		return
	}
	m.VerificationPolls.Observe(float64(attempts))
}

// RecordDBPoolStats records database connection pool statistics
func (m *Metrics) RecordDBPoolStats(open, inUse, idle int, waitCount int64, waitDuration time.Duration) {
	if m == nil {
		return
	}
	m.DBConnPoolStats.WithLabelValues("open").Set(float64(open))
	m.DBConnPoolStats.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnPoolStats.WithLabelValues("idle").Set(float64(idle))
	m.DBConnPoolStats.WithLabelValues("wait_count").Set(float64(waitCount))
	m.DBConnPoolStats.WithLabelValues("wait_duration_ms").Set(float64(waitDuration.Milliseconds()))
}
