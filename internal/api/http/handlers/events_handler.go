package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/campusflow/campus-queue/internal/auth"
	"github.com/campusflow/campus-queue/internal/events"
	"github.com/campusflow/campus-queue/internal/realtime"
)

// EventsHandler streams realtime events over Server-Sent Events.
type EventsHandler struct {
	hub       *realtime.Hub
	heartbeat time.Duration
}

// NewEventsHandler constructs handler.
func NewEventsHandler(hub *realtime.Hub, heartbeat time.Duration) *EventsHandler {
	return &EventsHandler{hub: hub, heartbeat: heartbeat}
}

// Stream GET /api/events?departmentId=. Identified callers also receive
// events addressed to them.
func (h *EventsHandler) Stream(c *fiber.Ctx) error {
	var scopes []events.Scope
	if departmentID := departmentQuery(c); departmentID != "" {
		scopes = append(scopes, events.DepartmentScope(departmentID))
	}
	if actor, ok := auth.ActorFromContext(c); ok {
		scopes = append(scopes, events.IdentityScope(actor.Identity))
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	client := h.hub.Subscribe(scopes...)
	// The stream outlives the handler; it ends on write failure or Hub.Close.
	c.Context().SetBodyStreamWriter(h.hub.StreamTo(context.Background(), client, h.heartbeat))
	return nil
}
