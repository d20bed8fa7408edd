package service

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/campusflow/campus-queue/internal/config"
	"github.com/campusflow/campus-queue/internal/domain"
	"github.com/campusflow/campus-queue/internal/events"
)

func TestNotificationServiceNotifiesRequesters(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	dispatcher := events.NewDispatcher(logger)
	svc := NewNotificationService(dispatcher, logger, config.NotificationConfig{WebhookURL: "https://hooks.campus.test/queue"})
	svc.RegisterHandlers()

	ctx := context.Background()
	requester := events.IdentityScope(domain.GuestIdentity("g-1"))
	publish := func(eventType events.EventType, scope events.Scope) {
		if err := dispatcher.Publish(ctx, events.Event{Type: eventType, Scope: scope}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	publish(events.EventTicketYourTurn, requester)
	publish(events.EventTicketServed, requester)
	publish(events.EventEmergencyApproved, events.DepartmentScope("d-1"))
	publish(events.EventTicketJoined, requester)

	if n := logs.FilterMessage("YourTurn").Len(); n != 1 {
		t.Fatalf("your-turn notifications = %d", n)
	}
	if n := logs.FilterMessage("Served").Len(); n != 1 {
		t.Fatalf("served notifications = %d", n)
	}
	if n := logs.FilterMessage("EmergencyReviewed").Len(); n != 0 {
		t.Fatalf("department-scoped reviews must not notify, got %d", n)
	}
	if n := logs.FilterMessage("sendWebhookNotificationStub").Len(); n != 2 {
		t.Fatalf("webhook stub calls = %d", n)
	}
}
