package observability

import (
	"testing"
	"time"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/api/staff/call-next", "POST", 200, 10*time.Millisecond)
	m.RecordRequest("/api/staff/call-next", "POST", 200, 30*time.Millisecond)
	m.RecordError("/api/student/join", "POST", "QUEUE_FULL")
	m.RecordOperation("join_queue", "ok")
	m.RecordOperation("join_queue", "QUEUE_FULL")
	m.RecordDroppedEvent()

	snap := m.Snapshot()
	key := "/api/staff/call-next|POST|200"
	if snap.Requests[key] != 2 {
		t.Fatalf("requests = %d", snap.Requests[key])
	}
	if snap.AvgLatencyMs[key] != 20 {
		t.Fatalf("avg latency = %d", snap.AvgLatencyMs[key])
	}
	if snap.Errors["/api/student/join|POST|QUEUE_FULL"] != 1 {
		t.Fatalf("errors = %v", snap.Errors)
	}
	if snap.OperationsTotal != 2 || snap.Operations["join_queue|ok"] != 1 {
		t.Fatalf("operations = %v", snap.Operations)
	}
	if snap.DroppedEvents != 1 {
		t.Fatalf("dropped = %d", snap.DroppedEvents)
	}

	// snapshots are copies
	snap.Requests[key] = 99
	if m.Snapshot().Requests[key] != 2 {
		t.Fatalf("snapshot aliased internal map")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordError("/", "GET", "X")
	m.RecordOperation("op", "ok")
	m.RecordDroppedEvent()
}
