package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight scanner counters.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	cyclesTotal      atomic.Uint64
	cycleFaults      atomic.Uint64
	fetchErrors      atomic.Uint64
	evaluationFaults atomic.Uint64
	opportunities    atomic.Uint64
	skippedPairs     atomic.Uint64
	sinkErrors       atomic.Uint64

	// Latency tracking
	latencySumNs  atomic.Int64
	latencyCount  atomic.Uint64
	lastLatencyNs atomic.Int64

	// Gauges
	streamClients atomic.Int32
	lastCycleUnix atomic.Int64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordCycle records a finished cycle with its duration.
func (m *Metrics) RecordCycle(d time.Duration) {
	m.cyclesTotal.Add(1)
	m.latencySumNs.Add(int64(d))
	m.latencyCount.Add(1)
	m.lastLatencyNs.Store(int64(d))
	m.lastCycleUnix.Store(time.Now().Unix())
}

// RecordCycleFault records a recovered cycle panic.
func (m *Metrics) RecordCycleFault() {
	m.cycleFaults.Add(1)
}

// RecordFetchErrors adds n venue or asset fetch failures.
func (m *Metrics) RecordFetchErrors(n int) {
	m.fetchErrors.Add(uint64(n))
}

// RecordEvaluationFaults adds n pair evaluation faults.
func (m *Metrics) RecordEvaluationFaults(n int) {
	m.evaluationFaults.Add(uint64(n))
}

// RecordOpportunities adds n detected opportunities.
func (m *Metrics) RecordOpportunities(n int) {
	m.opportunities.Add(uint64(n))
}

// RecordSkippedPairs adds n pairs skipped for a missing quote.
func (m *Metrics) RecordSkippedPairs(n int) {
	m.skippedPairs.Add(uint64(n))
}

// RecordSinkError records a failed sink write.
func (m *Metrics) RecordSinkError() {
	m.sinkErrors.Add(1)
}

// IncrementStreamClients increments connected stream clients by 1.
func (m *Metrics) IncrementStreamClients() {
	m.streamClients.Add(1)
}

// DecrementStreamClients decrements connected stream clients by 1.
func (m *Metrics) DecrementStreamClients() {
	m.streamClients.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	CyclesTotal      uint64
	CycleFaults      uint64
	FetchErrors      uint64
	EvaluationFaults uint64
	Opportunities    uint64
	SkippedPairs     uint64
	SinkErrors       uint64
	AvgLatencyNs     int64
	LastLatencyNs    int64
	StreamClients    int32
	LastCycleUnix    int64
	Timestamp        time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		CyclesTotal:      m.cyclesTotal.Load(),
		CycleFaults:      m.cycleFaults.Load(),
		FetchErrors:      m.fetchErrors.Load(),
		EvaluationFaults: m.evaluationFaults.Load(),
		Opportunities:    m.opportunities.Load(),
		SkippedPairs:     m.skippedPairs.Load(),
		SinkErrors:       m.sinkErrors.Load(),
		AvgLatencyNs:     avgLatency,
		LastLatencyNs:    m.lastLatencyNs.Load(),
		StreamClients:    m.streamClients.Load(),
		LastCycleUnix:    m.lastCycleUnix.Load(),
		Timestamp:        time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.cyclesTotal.Store(0)
	m.cycleFaults.Store(0)
	m.fetchErrors.Store(0)
	m.evaluationFaults.Store(0)
	m.opportunities.Store(0)
	m.skippedPairs.Store(0)
	m.sinkErrors.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.lastLatencyNs.Store(0)
	m.streamClients.Store(0)
	m.lastCycleUnix.Store(0)
}
