package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects performance metrics for the asynchronous IO layer: flush and apply latencies
// (submission to completion), terminal outcomes, and the completions discarded by the
// epoch-staleness filter. It implements iostate.MetricsCollector.
type Metrics struct {
	mu sync.RWMutex

	// Latencies from request submission to completion delivery
	flushLatencies []time.Duration
	applyLatencies []time.Duration

	// Terminal outcome counters
	flushCompleted   atomic.Uint64
	applyCompleted   atomic.Uint64
	flushFailed      atomic.Uint64
	applyFailed      atomic.Uint64
	staleCompletions atomic.Uint64
	abortedRequests  atomic.Uint64

	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		flushLatencies: make([]time.Duration, 0, 10000), // Pre-allocate for performance
		applyLatencies: make([]time.Duration, 0, 10000),
		startTime:      time.Now(),
	}
}

// RecordFlushCompleted records a successfully completed flush and its latency
func (m *Metrics) RecordFlushCompleted(latency time.Duration) {
	m.flushCompleted.Add(1)
	m.mu.Lock()
	m.flushLatencies = append(m.flushLatencies, latency)
	m.mu.Unlock()
}

// RecordApplyCompleted records a successfully completed apply batch and its latency
func (m *Metrics) RecordApplyCompleted(latency time.Duration) {
	m.applyCompleted.Add(1)
	m.mu.Lock()
	m.applyLatencies = append(m.applyLatencies, latency)
	m.mu.Unlock()
}

// RecordFlushFailed increments the failed-flush counter
func (m *Metrics) RecordFlushFailed() {
	m.flushFailed.Add(1)
}

// RecordApplyFailed increments the failed-apply counter
func (m *Metrics) RecordApplyFailed() {
	m.applyFailed.Add(1)
}

// RecordStaleCompletion counts a completion discarded by the epoch-staleness filter
func (m *Metrics) RecordStaleCompletion() {
	m.staleCompletions.Add(1)
}

// RecordAbortedRequest counts an outstanding request resolved as aborted during shutdown
func (m *Metrics) RecordAbortedRequest() {
	m.abortedRequests.Add(1)
}

// LatencyStats contains percentile statistics for latencies
type LatencyStats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min_ms"`
	Max    float64 `json:"max_ms"`
	Mean   float64 `json:"mean_ms"`
	P50    float64 `json:"p50_ms"`
	P95    float64 `json:"p95_ms"`
	P99    float64 `json:"p99_ms"`
	StdDev float64 `json:"stddev_ms"`
}

// GetFlushLatencyStats computes percentile statistics from recorded flush latencies
func (m *Metrics) GetFlushLatencyStats() LatencyStats {
	m.mu.RLock()
	latencies := make([]time.Duration, len(m.flushLatencies))
	copy(latencies, m.flushLatencies)
	m.mu.RUnlock()

	return computeStats(latencies)
}

// GetApplyLatencyStats computes percentile statistics from recorded apply latencies
func (m *Metrics) GetApplyLatencyStats() LatencyStats {
	m.mu.RLock()
	latencies := make([]time.Duration, len(m.applyLatencies))
	copy(latencies, m.applyLatencies)
	m.mu.RUnlock()

	return computeStats(latencies)
}

func computeStats(latencies []time.Duration) LatencyStats {
	if len(latencies) == 0 {
		return LatencyStats{}
	}

	// Sort for percentile calculation
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	// Convert to milliseconds
	latenciesMs := make([]float64, len(latencies))
	var sum float64
	for i, lat := range latencies {
		ms := float64(lat.Microseconds()) / 1000.0
		latenciesMs[i] = ms
		sum += ms
	}

	mean := sum / float64(len(latenciesMs))

	// Calculate standard deviation
	var variance float64
	for _, lat := range latenciesMs {
		diff := lat - mean
		variance += diff * diff
	}
	stddev := math.Sqrt(variance / float64(len(latenciesMs)))

	return LatencyStats{
		Count:  len(latencies),
		Min:    latenciesMs[0],
		Max:    latenciesMs[len(latenciesMs)-1],
		Mean:   mean,
		P50:    percentile(latenciesMs, 50),
		P95:    percentile(latenciesMs, 95),
		P99:    percentile(latenciesMs, 99),
		StdDev: stddev,
	}
}

// percentile calculates the nth percentile from sorted data
func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	// Linear interpolation
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// GetFlushThroughput returns completed flushes per second since startup
func (m *Metrics) GetFlushThroughput() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.flushCompleted.Load()) / elapsed
}

// Report contains all collected metrics
type Report struct {
	Duration  float64   `json:"duration_seconds"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// Outcome counters
	FlushCompleted   uint64 `json:"flush_completed"`
	ApplyCompleted   uint64 `json:"apply_completed"`
	FlushFailed      uint64 `json:"flush_failed"`
	ApplyFailed      uint64 `json:"apply_failed"`
	StaleCompletions uint64 `json:"stale_completions"`
	AbortedRequests  uint64 `json:"aborted_requests"`

	// Throughput and latency
	FlushThroughput float64      `json:"flush_throughput_per_sec"`
	FlushLatency    LatencyStats `json:"flush_latency"`
	ApplyLatency    LatencyStats `json:"apply_latency"`
}

// GetReport generates a performance report for the IO layer
func (m *Metrics) GetReport() Report {
	endTime := time.Now()

	return Report{
		Duration:         endTime.Sub(m.startTime).Seconds(),
		StartTime:        m.startTime,
		EndTime:          endTime,
		FlushCompleted:   m.flushCompleted.Load(),
		ApplyCompleted:   m.applyCompleted.Load(),
		FlushFailed:      m.flushFailed.Load(),
		ApplyFailed:      m.applyFailed.Load(),
		StaleCompletions: m.staleCompletions.Load(),
		AbortedRequests:  m.abortedRequests.Load(),
		FlushThroughput:  m.GetFlushThroughput(),
		FlushLatency:     m.GetFlushLatencyStats(),
		ApplyLatency:     m.GetApplyLatencyStats(),
	}
}

// JSON renders the report as indented JSON
func (r *Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}

// Reset clears all collected metrics (useful for running multiple tests)
func (m *Metrics) Reset() {
	m.mu.Lock()
	m.flushLatencies = make([]time.Duration, 0, 10000)
	m.applyLatencies = make([]time.Duration, 0, 10000)
	m.mu.Unlock()

	m.flushCompleted.Store(0)
	m.applyCompleted.Store(0)
	m.flushFailed.Store(0)
	m.applyFailed.Store(0)
	m.staleCompletions.Store(0)
	m.abortedRequests.Store(0)
	m.startTime = time.Now()
}
