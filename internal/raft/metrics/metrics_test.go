package metrics

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	assert.NotNil(t, m)
	assert.NotNil(t, m.flushLatencies)
	assert.NotNil(t, m.applyLatencies)
	assert.False(t, m.startTime.IsZero())
}

func TestMetrics_RecordFlushCompleted(t *testing.T) {
	m := NewMetrics()

	t.Run("records single latency", func(t *testing.T) {
		m.RecordFlushCompleted(100 * time.Millisecond)

		assert.Equal(t, uint64(1), m.flushCompleted.Load())
		m.mu.RLock()
		assert.Len(t, m.flushLatencies, 1)
		assert.Equal(t, 100*time.Millisecond, m.flushLatencies[0])
		m.mu.RUnlock()
	})

	t.Run("records multiple latencies", func(t *testing.T) {
		m.RecordFlushCompleted(50 * time.Millisecond)
		m.RecordFlushCompleted(150 * time.Millisecond)

		assert.Equal(t, uint64(3), m.flushCompleted.Load())
		m.mu.RLock()
		assert.Len(t, m.flushLatencies, 3) // Including previous test
		m.mu.RUnlock()
	})
}

func TestMetrics_RecordApplyCompleted(t *testing.T) {
	m := NewMetrics()

	m.RecordApplyCompleted(200 * time.Millisecond)
	m.RecordApplyCompleted(150 * time.Millisecond)

	assert.Equal(t, uint64(2), m.applyCompleted.Load())
	m.mu.RLock()
	assert.Len(t, m.applyLatencies, 2)
	assert.Equal(t, 200*time.Millisecond, m.applyLatencies[0])
	m.mu.RUnlock()
}

func TestMetrics_RecordFailures(t *testing.T) {
	m := NewMetrics()

	assert.Equal(t, uint64(0), m.flushFailed.Load())
	assert.Equal(t, uint64(0), m.applyFailed.Load())

	m.RecordFlushFailed()
	m.RecordApplyFailed()
	m.RecordApplyFailed()

	assert.Equal(t, uint64(1), m.flushFailed.Load())
	assert.Equal(t, uint64(2), m.applyFailed.Load())
}

func TestMetrics_RecordStaleCompletion(t *testing.T) {
	m := NewMetrics()

	assert.Equal(t, uint64(0), m.staleCompletions.Load())

	m.RecordStaleCompletion()
	assert.Equal(t, uint64(1), m.staleCompletions.Load())
}

func TestMetrics_RecordAbortedRequest(t *testing.T) {
	m := NewMetrics()

	m.RecordAbortedRequest()
	m.RecordAbortedRequest()
	assert.Equal(t, uint64(2), m.abortedRequests.Load())
}

func TestMetrics_GetFlushThroughput(t *testing.T) {
	m := NewMetrics()

	t.Run("returns 0 for no completions", func(t *testing.T) {
		throughput := m.GetFlushThroughput()
		assert.Equal(t, 0.0, throughput)
	})

	t.Run("calculates throughput", func(t *testing.T) {
		// Set start time to 1 second ago
		m.startTime = time.Now().Add(-1 * time.Second)

		m.RecordFlushCompleted(time.Millisecond)
		m.RecordFlushCompleted(time.Millisecond)

		throughput := m.GetFlushThroughput()
		assert.Greater(t, throughput, 0.0)
		assert.LessOrEqual(t, throughput, 3.0) // Should be ~2 flushes/sec
	})
}

func TestMetrics_GetFlushLatencyStats(t *testing.T) {
	m := NewMetrics()

	t.Run("returns empty stats for no latencies", func(t *testing.T) {
		stats := m.GetFlushLatencyStats()
		assert.Equal(t, 0, stats.Count)
	})

	t.Run("calculates statistics", func(t *testing.T) {
		m.RecordFlushCompleted(100 * time.Millisecond)
		m.RecordFlushCompleted(200 * time.Millisecond)
		m.RecordFlushCompleted(300 * time.Millisecond)

		stats := m.GetFlushLatencyStats()
		assert.Equal(t, 3, stats.Count)
		assert.InDelta(t, 200.0, stats.Mean, 1.0)
		assert.InDelta(t, 200.0, stats.P50, 1.0)
		assert.InDelta(t, 100.0, stats.Min, 1.0)
		assert.InDelta(t, 300.0, stats.Max, 1.0)
		assert.Greater(t, stats.StdDev, 0.0)
	})

	t.Run("calculates percentiles", func(t *testing.T) {
		m2 := NewMetrics()
		// Add 100 samples
		for i := 1; i <= 100; i++ {
			m2.RecordFlushCompleted(time.Duration(i) * time.Millisecond)
		}

		stats := m2.GetFlushLatencyStats()
		assert.InDelta(t, 50.0, stats.P50, 5.0)
		assert.InDelta(t, 95.0, stats.P95, 5.0)
		assert.InDelta(t, 99.0, stats.P99, 5.0)
	})
}

func TestMetrics_GetApplyLatencyStats(t *testing.T) {
	m := NewMetrics()

	m.RecordApplyCompleted(10 * time.Millisecond)
	m.RecordApplyCompleted(30 * time.Millisecond)

	stats := m.GetApplyLatencyStats()
	assert.Equal(t, 2, stats.Count)
	assert.InDelta(t, 10.0, stats.Min, 1.0)
	assert.InDelta(t, 30.0, stats.Max, 1.0)
	assert.InDelta(t, 20.0, stats.Mean, 1.0)
}

func TestMetrics_GetReport(t *testing.T) {
	m := NewMetrics()

	m.RecordFlushCompleted(100 * time.Millisecond)
	m.RecordFlushCompleted(200 * time.Millisecond)
	m.RecordApplyCompleted(50 * time.Millisecond)
	m.RecordFlushFailed()
	m.RecordStaleCompletion()
	m.RecordAbortedRequest()

	report := m.GetReport()

	assert.Equal(t, uint64(2), report.FlushCompleted)
	assert.Equal(t, uint64(1), report.ApplyCompleted)
	assert.Equal(t, uint64(1), report.FlushFailed)
	assert.Equal(t, uint64(0), report.ApplyFailed)
	assert.Equal(t, uint64(1), report.StaleCompletions)
	assert.Equal(t, uint64(1), report.AbortedRequests)
	assert.Equal(t, 2, report.FlushLatency.Count)
	assert.Equal(t, 1, report.ApplyLatency.Count)
	assert.Greater(t, report.Duration, 0.0)
}

func TestReport_JSON(t *testing.T) {
	m := NewMetrics()
	m.RecordFlushCompleted(100 * time.Millisecond)
	m.RecordStaleCompletion()

	report := m.GetReport()
	data, err := report.JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(1), decoded["flush_completed"])
	assert.Equal(t, float64(1), decoded["stale_completions"])
	assert.Contains(t, decoded, "flush_latency")
}

func TestMetrics_Reset(t *testing.T) {
	m := NewMetrics()

	// Add data
	m.RecordFlushCompleted(100 * time.Millisecond)
	m.RecordApplyCompleted(100 * time.Millisecond)
	m.RecordFlushFailed()
	m.RecordApplyFailed()
	m.RecordStaleCompletion()
	m.RecordAbortedRequest()

	// Reset
	m.Reset()

	// Verify everything is cleared
	assert.Equal(t, uint64(0), m.flushCompleted.Load())
	assert.Equal(t, uint64(0), m.applyCompleted.Load())
	assert.Equal(t, uint64(0), m.flushFailed.Load())
	assert.Equal(t, uint64(0), m.applyFailed.Load())
	assert.Equal(t, uint64(0), m.staleCompletions.Load())
	assert.Equal(t, uint64(0), m.abortedRequests.Load())

	m.mu.RLock()
	assert.Len(t, m.flushLatencies, 0)
	assert.Len(t, m.applyLatencies, 0)
	m.mu.RUnlock()

	// Start time should be updated
	assert.False(t, m.startTime.IsZero())
}

func TestMetrics_Concurrency(t *testing.T) {
	m := NewMetrics()

	t.Run("handles concurrent updates", func(t *testing.T) {
		var wg sync.WaitGroup
		iterations := 1000

		// Concurrent latency recordings
		for i := 0; i < iterations; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.RecordFlushCompleted(100 * time.Millisecond)
			}()
		}

		// Concurrent counter increments
		for i := 0; i < iterations; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.RecordApplyCompleted(50 * time.Millisecond)
			}()

			wg.Add(1)
			go func() {
				defer wg.Done()
				m.RecordStaleCompletion()
			}()

			wg.Add(1)
			go func() {
				defer wg.Done()
				m.RecordAbortedRequest()
			}()
		}

		wg.Wait()

		assert.Equal(t, uint64(iterations), m.flushCompleted.Load())
		assert.Equal(t, uint64(iterations), m.applyCompleted.Load())
		assert.Equal(t, uint64(iterations), m.staleCompletions.Load())
		assert.Equal(t, uint64(iterations), m.abortedRequests.Load())

		m.mu.RLock()
		assert.Len(t, m.flushLatencies, iterations)
		m.mu.RUnlock()
	})

	t.Run("handles concurrent reads and writes", func(t *testing.T) {
		var wg sync.WaitGroup

		// Concurrent writers
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.RecordFlushCompleted(100 * time.Millisecond)
				m.RecordFlushFailed()
			}()
		}

		// Concurrent readers
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.GetFlushLatencyStats()
				m.GetFlushThroughput()
				m.GetReport()
			}()
		}

		wg.Wait()
	})
}
