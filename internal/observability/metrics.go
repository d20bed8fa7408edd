package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu              sync.Mutex
	requestCount    map[string]int64
	requestDuration map[string]time.Duration
	errorCount      map[string]int64
	operationCount  map[string]int64
	droppedEvents   int64
	started         time.Time
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	UptimeSeconds   int64            `json:"uptime_seconds"`
	Requests        map[string]int64 `json:"requests"`
	AvgLatencyMs    map[string]int64 `json:"avg_latency_ms"`
	Errors          map[string]int64 `json:"errors"`
	Operations      map[string]int64 `json:"operations"`
	DroppedEvents   int64            `json:"dropped_events"`
	OperationsTotal int64            `json:"operations_total"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]int64),
		requestDuration: make(map[string]time.Duration),
		errorCount:      make(map[string]int64),
		operationCount:  make(map[string]int64),
		started:         time.Now(),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestDuration[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordOperation counts an engine operation by outcome code ("ok" on success).
func (m *Metrics) RecordOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operationCount[operation+"|"+outcome]++
}

// RecordDroppedEvent counts a realtime event that a slow client missed.
func (m *Metrics) RecordDroppedEvent() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.droppedEvents++
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		UptimeSeconds: int64(time.Since(m.started).Seconds()),
		Requests:      copyCounts(m.requestCount),
		AvgLatencyMs:  make(map[string]int64, len(m.requestDuration)),
		Errors:        copyCounts(m.errorCount),
		Operations:    copyCounts(m.operationCount),
		DroppedEvents: m.droppedEvents,
	}
	for key, total := range m.requestDuration {
		if n := m.requestCount[key]; n > 0 {
			snap.AvgLatencyMs[key] = total.Milliseconds() / n
		}
	}
	for _, n := range m.operationCount {
		snap.OperationsTotal += n
	}
	return snap
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
