package worker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/events"
)

func TestNotificationWorkerDeliversIdentityEvents(t *testing.T) {
	recorder := &events.Recorder{}
	w := NewNotificationWorker(recorder, 4, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	_ = w.Publish(ctx, events.Event{Type: events.EventTicketJoined, Scope: events.DepartmentScope("d-1")})
	_ = w.Publish(ctx, events.Event{Type: events.EventTicketYourTurn, Scope: events.IdentityScope(domain.GuestIdentity("g-1"))})

	deadline := time.Now().Add(2 * time.Second)
	for len(recorder.Events()) < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	got := recorder.Events()
	if len(got) != 1 || got[0].Type != events.EventTicketYourTurn {
		t.Fatalf("delivered = %+v", got)
	}
}

func TestNotificationWorkerDropsWhenFull(t *testing.T) {
	recorder := &events.Recorder{}
	w := NewNotificationWorker(recorder, 1, zap.NewNop())
	scope := events.UserScope("u-1")

	for i := 0; i < 3; i++ {
		if err := w.Publish(context.Background(), events.Event{Type: events.EventTicketServed, Scope: scope}); err != nil {
			t.Fatalf("publish must not fail: %v", err)
		}
	}
	if len(w.queue) != 1 {
		t.Fatalf("queued = %d, want 1", len(w.queue))
	}
}
