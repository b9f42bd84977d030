package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the engine module.
// Tracks lifecycle counters, the execute critical path, and the live
// registry/pool gauges.
type Metrics struct {
	EntriesSubmitted prometheus.Counter
	Confirmations    prometheus.Counter
	Revocations      prometheus.Counter
	EntriesExecuted  prometheus.Counter
	ExecutionsFailed prometheus.Counter
	Deposits         prometheus.Counter
	Rejections       *prometheus.CounterVec
	ExecuteDuration  prometheus.Histogram
	MembersGauge     prometheus.Gauge
	QuorumGauge      prometheus.Gauge
	PoolGauge        prometheus.Gauge
}

// New creates a Metrics instance with all engine metrics registered.
func New() *Metrics {
	return &Metrics{
		EntriesSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "covault_entries_submitted_total",
			Help: "Total number of ledger entries submitted",
		}),
		Confirmations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "covault_confirmations_total",
			Help: "Total number of confirmations recorded",
		}),
		Revocations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "covault_revocations_total",
			Help: "Total number of confirmations revoked",
		}),
		EntriesExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "covault_entries_executed_total",
			Help: "Total number of entries executed successfully",
		}),
		ExecutionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "covault_executions_failed_total",
			Help: "Total number of executions where the external action failed",
		}),
		Deposits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "covault_deposits_total",
			Help: "Total number of deposits received",
		}),
		Rejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "covault_rejections_total",
			Help: "Total number of rejected operations by domain error code",
		}, []string{"code"}),
		ExecuteDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "covault_execute_duration_seconds",
			Help:    "Duration of execute operations including the external call",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		MembersGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "covault_members",
			Help: "Current number of registered owners",
		}),
		QuorumGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "covault_quorum",
			Help: "Current confirmation threshold",
		}),
		PoolGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "covault_pool_balance",
			Help: "Current pooled balance",
		}),
	}
}

// ObserveExecute records the duration of an execute operation.
// Call with time.Now() from the start of the operation.
func (m *Metrics) ObserveExecute(start time.Time) {
	m.ExecuteDuration.Observe(time.Since(start).Seconds())
}

// IncrementRejection records a rejected operation by code.
func (m *Metrics) IncrementRejection(code string) {
	m.Rejections.WithLabelValues(code).Inc()
}
