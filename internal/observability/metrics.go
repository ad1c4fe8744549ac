package observability

import (
	"sync"
	"time"
)

// Metrics keeps in-process request counters. Good enough for the health
// endpoint; an exporter can wrap it later if operations need one.
type Metrics struct {
	mu           sync.Mutex
	requests     int64
	failures     int64
	totalLatency time.Duration
	errorsByCode map[string]int64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Requests     int64            `json:"requests"`
	Failures     int64            `json:"failures"`
	AvgLatencyMs float64          `json:"avg_latency_ms"`
	ErrorsByCode map[string]int64 `json:"errors_by_code,omitempty"`
}

// NewMetrics initializes the counter maps.
func NewMetrics() *Metrics {
	return &Metrics{errorsByCode: make(map[string]int64)}
}

// RecordRequest counts one served request with its latency.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	m.totalLatency += duration
	if status >= 500 {
		m.failures++
	}
}

// RecordError counts one domain error by its taxonomy code.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorsByCode[code]++
}

// Snapshot copies the counters for reporting.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := MetricsSnapshot{
		Requests: m.requests,
		Failures: m.failures,
	}
	if m.requests > 0 {
		snapshot.AvgLatencyMs = float64(m.totalLatency.Milliseconds()) / float64(m.requests)
	}
	if len(m.errorsByCode) > 0 {
		snapshot.ErrorsByCode = make(map[string]int64, len(m.errorsByCode))
		for code, count := range m.errorsByCode {
			snapshot.ErrorsByCode[code] = count
		}
	}
	return snapshot
}
