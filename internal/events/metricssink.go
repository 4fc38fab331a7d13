package events

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink updates Prometheus instruments from incoming events. Every
// method is nil-safe so a zero-value or partially-constructed sink never
// panics the caller.
type MetricsSink struct {
	once sync.Once

	processedTotal    *prometheus.CounterVec
	failedTotal       *prometheus.CounterVec
	processingSeconds *prometheus.HistogramVec
	byStage           *prometheus.GaugeVec

	stageMu     sync.Mutex
	stageCounts map[string]float64
}

// NewMetricsSink constructs the instruments under the given namespace and
// registers them on reg (a fresh registry when reg is nil). Registration is
// not idempotent across sinks: a second sink on the same registry panics.
func NewMetricsSink(reg *prometheus.Registry, namespace string) *MetricsSink {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &MetricsSink{stageCounts: make(map[string]float64)}
	m.once.Do(func() {
		m.processedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_processed_total",
			Help:      "Count of issues processed, by repository and result",
		}, []string{"repository", "result"})

		m.failedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_failed_total",
			Help:      "Count of issues that failed, by repository and stage",
		}, []string{"repository", "stage"})

		m.processingSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_duration_seconds",
			Help:      "End-to-end issue processing duration",
			Buckets:   prometheus.ExponentialBucketsRange(1, 3600, 12),
		}, []string{"repository"})

		m.byStage = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "issues_by_stage",
			Help:      "Current count of issues in each stage",
		}, []string{"stage"})

		reg.MustRegister(m.processedTotal, m.failedTotal, m.processingSeconds, m.byStage)
	})
	return m
}

// Emit interprets the event:
//   - state_transition adjusts the stage gauge: -1 for from_stage, +1 for
//     to_stage, clamped at zero.
//   - completion increments processed(success) and observes duration.
//   - error/timeout increment failed, keyed by details.stage.
func (m *MetricsSink) Emit(e Event) {
	if m == nil {
		return
	}
	switch e.Type {
	case TypeStateTransition:
		if from, ok := e.Details["from_stage"].(string); ok && from != "" {
			m.adjustStage(from, -1)
		}
		if to, ok := e.Details["to_stage"].(string); ok && to != "" {
			m.adjustStage(to, 1)
		}
	case TypeCompletion:
		if m.processedTotal != nil {
			m.processedTotal.WithLabelValues(e.Repository, "success").Inc()
		}
		if d, ok := e.Details["duration_seconds"].(float64); ok && m.processingSeconds != nil {
			m.processingSeconds.WithLabelValues(e.Repository).Observe(d)
		}
	case TypeError, TypeTimeout:
		if m.failedTotal != nil {
			stageName, _ := e.Details["stage"].(string)
			m.failedTotal.WithLabelValues(e.Repository, stageName).Inc()
		}
	}
}

// adjustStage applies delta to the named stage's gauge, clamped at zero.
// The running count is tracked outside Prometheus because a Gauge cannot
// be read back atomically before a Set.
func (m *MetricsSink) adjustStage(stageName string, delta float64) {
	if m.byStage == nil {
		return
	}
	m.stageMu.Lock()
	next := m.stageCounts[stageName] + delta
	if next < 0 {
		next = 0
	}
	m.stageCounts[stageName] = next
	m.stageMu.Unlock()

	m.byStage.WithLabelValues(stageName).Set(next)
}
