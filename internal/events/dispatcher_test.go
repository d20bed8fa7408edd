package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/campusflow/campus-queue/internal/domain"
)

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, Event) error { return f.err }

func TestDispatcherFansOut(t *testing.T) {
	first, second := &Recorder{}, &Recorder{}
	boom := errors.New("sink down")
	d := NewDispatcher(zap.NewNop(), first, failingSink{boom}, second)

	var handled []EventType
	d.Subscribe(EventTicketYourTurn, func(_ context.Context, e Event) error {
		handled = append(handled, e.Type)
		return errors.New("ignored")
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketYourTurn, Scope: UserScope("u1")})
	if !errors.Is(err, boom) {
		t.Fatalf("expected sink error to surface, got %v", err)
	}
	if len(first.Events()) != 1 || len(second.Events()) != 1 {
		t.Fatalf("every sink should receive the event")
	}
	if len(handled) != 1 {
		t.Fatalf("handler calls = %d", len(handled))
	}

	_ = d.Publish(context.Background(), Event{Type: EventTicketJoined, Scope: DepartmentScope("d1")})
	if len(handled) != 1 {
		t.Fatalf("handler must only see its event type")
	}
}

func TestScopes(t *testing.T) {
	if got := DepartmentScope("d1"); got != "department:d1" {
		t.Fatalf("department scope = %q", got)
	}
	if got := IdentityScope(domain.GuestIdentity("tok")); got != "identity:guest:tok" {
		t.Fatalf("guest scope = %q", got)
	}
	if UserScope("u1") != IdentityScope(domain.UserIdentity("u1")) {
		t.Fatalf("user scope mismatch")
	}
	if !UserScope("u1").IsIdentity() || DepartmentScope("d").IsIdentity() {
		t.Fatalf("IsIdentity misclassifies scopes")
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	_ = r.Publish(context.Background(), Event{Type: EventTicketCalled})
	_ = r.Publish(context.Background(), Event{Type: EventTicketCompleted})
	_ = r.Publish(context.Background(), Event{Type: EventTicketCalled})
	if n := len(r.OfType(EventTicketCalled)); n != 2 {
		t.Fatalf("OfType = %d", n)
	}
	r.Reset()
	if len(r.Events()) != 0 {
		t.Fatalf("reset should clear events")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	sent := Event{
		ID:        "e1",
		Type:      EventQueueCrowdUpdated,
		Scope:     DepartmentScope("d1"),
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Payload:   CrowdPayload{DepartmentID: "d1", QueueLength: 4, EstimatedWaitMinutes: 12, Level: "YELLOW"},
	}
	data, err := encodeEnvelope(sent)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != sent.ID || got.Type != sent.Type || got.Scope != sent.Scope || !got.Timestamp.Equal(sent.Timestamp) {
		t.Fatalf("header mismatch: %+v", got)
	}
	var payload CrowdPayload
	if err := json.Unmarshal(got.Payload.(json.RawMessage), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload != sent.Payload.(CrowdPayload) {
		t.Fatalf("payload mismatch: %+v", payload)
	}

	if _, err := decodeEnvelope([]byte(`{"id":"x"}`)); err == nil {
		t.Fatalf("expected error for envelope without type")
	}
}
