package engine

import (
	"sync/atomic"
	"time"
)

// Metrics is a snapshot of engine counters.
type Metrics struct {
	Invocations   int64 `json:"invocations"`
	Errors        int64 `json:"errors"`
	Cancelled     int64 `json:"cancelled"`
	SkippedBlocks int64 `json:"skipped_blocks"`
	ExecutionNs   int64 `json:"execution_ns"`
}

// MetricsCollector receives engine events.
type MetricsCollector interface {
	RecordInvocation(d time.Duration)
	RecordError()
	RecordCancelled()
	RecordSkipped()
	GetMetrics() Metrics
	Reset()
}

// DefaultMetricsCollector is a thread-safe implementation of MetricsCollector.
type DefaultMetricsCollector struct {
	invocations atomic.Int64
	errors      atomic.Int64
	cancelled   atomic.Int64
	skipped     atomic.Int64
	executionNs atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *DefaultMetricsCollector {
	return &DefaultMetricsCollector{}
}

// RecordInvocation records a successful invocation and its execution time.
func (m *DefaultMetricsCollector) RecordInvocation(d time.Duration) {
	m.invocations.Add(1)
	m.executionNs.Add(int64(d))
}

// RecordError records a failed invocation.
func (m *DefaultMetricsCollector) RecordError() {
	m.errors.Add(1)
}

// RecordCancelled records an invocation whose body cancelled execution.
func (m *DefaultMetricsCollector) RecordCancelled() {
	m.cancelled.Add(1)
}

// RecordSkipped records a chain block skipped by its condition.
func (m *DefaultMetricsCollector) RecordSkipped() {
	m.skipped.Add(1)
}

// GetMetrics returns the current metrics.
func (m *DefaultMetricsCollector) GetMetrics() Metrics {
	return Metrics{
		Invocations:   m.invocations.Load(),
		Errors:        m.errors.Load(),
		Cancelled:     m.cancelled.Load(),
		SkippedBlocks: m.skipped.Load(),
		ExecutionNs:   m.executionNs.Load(),
	}
}

// Reset resets all metrics.
func (m *DefaultMetricsCollector) Reset() {
	m.invocations.Store(0)
	m.errors.Store(0)
	m.cancelled.Store(0)
	m.skipped.Store(0)
	m.executionNs.Store(0)
}

// AverageExecutionTime returns the average execution time per invocation.
func (m *DefaultMetricsCollector) AverageExecutionTime() time.Duration {
	n := m.invocations.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(m.executionNs.Load() / n)
}

// ErrorRate returns the error rate as a percentage.
func (m *DefaultMetricsCollector) ErrorRate() float64 {
	ok := m.invocations.Load()
	errors := m.errors.Load()
	total := ok + errors
	if total == 0 {
		return 0
	}
	return float64(errors) / float64(total) * 100
}

var _ MetricsCollector = (*DefaultMetricsCollector)(nil)

// NoOpMetricsCollector is a metrics collector that does nothing.
type NoOpMetricsCollector struct{}

func (m *NoOpMetricsCollector) RecordInvocation(time.Duration) {}
func (m *NoOpMetricsCollector) RecordError()                   {}
func (m *NoOpMetricsCollector) RecordCancelled()               {}
func (m *NoOpMetricsCollector) RecordSkipped()                 {}
func (m *NoOpMetricsCollector) GetMetrics() Metrics            { return Metrics{} }
func (m *NoOpMetricsCollector) Reset()                         {}

var _ MetricsCollector = (*NoOpMetricsCollector)(nil)
