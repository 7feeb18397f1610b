package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StoreMetrics tracks checkpoint and relational store health.
type StoreMetrics struct {
	checkpointWrites *prometheus.CounterVec
	checkpointErrors *prometheus.CounterVec
	persisted        *prometheus.CounterVec
	activeTickets    prometheus.Gauge
}

var (
	defaultStoreMetrics     *StoreMetrics
	defaultStoreMetricsOnce sync.Once
)

// NewStoreMetrics returns the process-wide recorder on the default registry.
func NewStoreMetrics() *StoreMetrics {
	defaultStoreMetricsOnce.Do(func() {
		defaultStoreMetrics = newStoreMetrics(prometheus.DefaultRegisterer)
	})
	return defaultStoreMetrics
}

// NewStoreMetricsWithRegisterer allows tests to provide a dedicated registry.
func NewStoreMetricsWithRegisterer(reg prometheus.Registerer) *StoreMetrics {
	return newStoreMetrics(reg)
}

func newStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &StoreMetrics{
		checkpointWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "checkpoint",
			Name:      "writes_total",
			Help:      "Checkpoint writes by workflow node",
		}, []string{"node"}),
		checkpointErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "checkpoint",
			Name:      "errors_total",
			Help:      "Checkpoint store failures by operation",
		}, []string{"op"}),
		persisted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "persistence",
			Name:      "outcomes_total",
			Help:      "Persistence boundary outcomes",
		}, []string{"outcome"}),
		activeTickets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "triage",
			Subsystem: "resolution",
			Name:      "active_tickets_last_scan",
			Help:      "Activated tickets found by the most recent customer scan",
		}),
	}
}

// RecordCheckpointWrite counts a checkpoint written after node.
func (m *StoreMetrics) RecordCheckpointWrite(node string) {
	if m == nil || m.checkpointWrites == nil {
		return
	}
	m.checkpointWrites.WithLabelValues(node).Inc()
}

// RecordCheckpointError counts a failed checkpoint operation.
func (m *StoreMetrics) RecordCheckpointError(op string) {
	if m == nil || m.checkpointErrors == nil {
		return
	}
	m.checkpointErrors.WithLabelValues(op).Inc()
}

// RecordPersistence counts one persistence boundary outcome
// (closed, activated, skipped, failed).
func (m *StoreMetrics) RecordPersistence(outcome string) {
	if m == nil || m.persisted == nil {
		return
	}
	m.persisted.WithLabelValues(outcome).Inc()
}

// RecordActiveTickets sets the size of the latest activated-ticket scan.
func (m *StoreMetrics) RecordActiveTickets(n int) {
	if m == nil || m.activeTickets == nil {
		return
	}
	m.activeTickets.Set(float64(n))
}
