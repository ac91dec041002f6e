package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RecoveryMetrics records batch recovery activity.
type RecoveryMetrics struct {
	batchDuration *prometheus.HistogramVec
	outcomes      *prometheus.CounterVec
}

// NewRecoveryMetrics registers the recovery metrics on the provided registerer.
func NewRecoveryMetrics(reg prometheus.Registerer) *RecoveryMetrics {
	if reg == nil {
		return &RecoveryMetrics{}
	}
	batchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recovery_batch_duration_seconds",
		Help:    "Duration of recovery batch runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recovery_outcomes_total",
		Help: "Recovery attempt outcomes by result.",
	}, []string{"outcome"})
	reg.MustRegister(batchDuration, outcomes)
	return &RecoveryMetrics{
		batchDuration: batchDuration,
		outcomes:      outcomes,
	}
}

// ObserveBatch records the duration for the named batch operation.
func (m *RecoveryMetrics) ObserveBatch(operation string, duration time.Duration) {
	if m == nil || m.batchDuration == nil {
		return
	}
	m.batchDuration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncOutcome increments the counter for the given per-item outcome.
func (m *RecoveryMetrics) IncOutcome(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
