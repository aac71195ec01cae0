package mocks

import (
	"sync"
	"time"
)

// MockMetricsCollector is a mock implementation of iostate.MetricsCollector for testing
type MockMetricsCollector struct {
	mu                   sync.RWMutex
	FlushLatencies       []time.Duration
	ApplyLatencies       []time.Duration
	FlushFailedCount     int
	ApplyFailedCount     int
	StaleCompletionCount int
	AbortedRequestCount  int
}

// NewMockMetricsCollector creates a new mock metrics collector
func NewMockMetricsCollector() *MockMetricsCollector {
	return &MockMetricsCollector{
		FlushLatencies: make([]time.Duration, 0),
		ApplyLatencies: make([]time.Duration, 0),
	}
}

func (m *MockMetricsCollector) RecordFlushCompleted(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FlushLatencies = append(m.FlushLatencies, latency)
}

func (m *MockMetricsCollector) RecordApplyCompleted(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ApplyLatencies = append(m.ApplyLatencies, latency)
}

func (m *MockMetricsCollector) RecordFlushFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FlushFailedCount++
}

func (m *MockMetricsCollector) RecordApplyFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ApplyFailedCount++
}

func (m *MockMetricsCollector) RecordStaleCompletion() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StaleCompletionCount++
}

func (m *MockMetricsCollector) RecordAbortedRequest() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AbortedRequestCount++
}

// Counts returns a consistent snapshot of the failure/stale/aborted counters.
func (m *MockMetricsCollector) Counts() (flushFailed, applyFailed, stale, aborted int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.FlushFailedCount, m.ApplyFailedCount, m.StaleCompletionCount, m.AbortedRequestCount
}

// CompletedCounts returns how many successful flush and apply completions were recorded.
func (m *MockMetricsCollector) CompletedCounts() (flushes, applies int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.FlushLatencies), len(m.ApplyLatencies)
}

// Reset clears all recorded metrics
func (m *MockMetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FlushLatencies = make([]time.Duration, 0)
	m.ApplyLatencies = make([]time.Duration, 0)
	m.FlushFailedCount = 0
	m.ApplyFailedCount = 0
	m.StaleCompletionCount = 0
	m.AbortedRequestCount = 0
}
