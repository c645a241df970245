package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// maxLatencySamples bounds the per-operation latency window
const maxLatencySamples = 1000

// Metrics tracks gateway traffic and store activity for the console
type Metrics struct {
	mu         sync.RWMutex
	operations map[string]*operationStats

	searchesSuperseded int64
	startTime          time.Time
}

type operationStats struct {
	calls     int64
	failures  int64
	lastError string
	lastCall  time.Time
	latencies []time.Duration
}

// OperationSnapshot is a point-in-time view of one gateway operation
type OperationSnapshot struct {
	Operation  string        `json:"operation"`
	Calls      int64         `json:"calls"`
	Failures   int64         `json:"failures"`
	LastError  string        `json:"lastError,omitempty"`
	LastCall   time.Time     `json:"lastCall"`
	AvgLatency time.Duration `json:"avgLatency"`
	P95Latency time.Duration `json:"p95Latency"`
	MaxLatency time.Duration `json:"maxLatency"`
}

// Snapshot is a point-in-time view of all metrics
type Snapshot struct {
	Operations         []OperationSnapshot `json:"operations"`
	TotalCalls         int64               `json:"totalCalls"`
	TotalFailures      int64               `json:"totalFailures"`
	SearchesSuperseded int64               `json:"searchesSuperseded"`
	Uptime             time.Duration       `json:"uptime"`
}

// NewMetrics creates an empty collector
func NewMetrics() *Metrics {
	return &Metrics{
		operations: make(map[string]*operationStats),
		startTime:  time.Now(),
	}
}

// RecordCall records the outcome and latency of one gateway request
func (m *Metrics) RecordCall(operation string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	op, ok := m.operations[operation]
	if !ok {
		op = &operationStats{}
		m.operations[operation] = op
	}

	op.calls++
	op.lastCall = time.Now()
	if err != nil {
		op.failures++
		op.lastError = err.Error()
	}

	op.latencies = append(op.latencies, duration)
	if len(op.latencies) > maxLatencySamples {
		op.latencies = op.latencies[1:]
	}
}

// RecordSearchSuperseded counts a debounced search dropped before it fired
func (m *Metrics) RecordSearchSuperseded() {
	atomic.AddInt64(&m.searchesSuperseded, 1)
}

// Operation returns the snapshot of a single operation
func (m *Metrics) Operation(operation string) (OperationSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	op, ok := m.operations[operation]
	if !ok {
		return OperationSnapshot{Operation: operation}, false
	}
	return op.snapshot(operation), true
}

// Snapshot returns all operation stats sorted by operation name
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		Operations:         make([]OperationSnapshot, 0, len(m.operations)),
		SearchesSuperseded: atomic.LoadInt64(&m.searchesSuperseded),
		Uptime:             time.Since(m.startTime),
	}
	for name, op := range m.operations {
		s.Operations = append(s.Operations, op.snapshot(name))
		s.TotalCalls += op.calls
		s.TotalFailures += op.failures
	}
	sort.Slice(s.Operations, func(i, j int) bool {
		return s.Operations[i].Operation < s.Operations[j].Operation
	})
	return s
}

// Reset clears all counters
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.operations = make(map[string]*operationStats)
	atomic.StoreInt64(&m.searchesSuperseded, 0)
	m.startTime = time.Now()
}

func (op *operationStats) snapshot(name string) OperationSnapshot {
	avg, p95, peak := latencyStats(op.latencies)
	return OperationSnapshot{
		Operation:  name,
		Calls:      op.calls,
		Failures:   op.failures,
		LastError:  op.lastError,
		LastCall:   op.lastCall,
		AvgLatency: avg,
		P95Latency: p95,
		MaxLatency: peak,
	}
}

// latencyStats computes mean, nearest-rank p95 and max over a sample window
func latencyStats(samples []time.Duration) (avg, p95, peak time.Duration) {
	if len(samples) == 0 {
		return 0, 0, 0
	}

	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	avg = sum / time.Duration(len(sorted))

	rank := (95*len(sorted) + 99) / 100
	p95 = sorted[rank-1]
	peak = sorted[len(sorted)-1]
	return avg, p95, peak
}
