package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusflow/campus-queue/internal/config"
	"github.com/campusflow/campus-queue/internal/events"
	"github.com/campusflow/campus-queue/internal/observability"
	"github.com/campusflow/campus-queue/internal/store"
	apperrors "github.com/campusflow/campus-queue/pkg/util"
)

// Dependencies bundles what the engine services share.
type Dependencies struct {
	Store       store.Store
	Users       store.UserStore
	Broadcaster events.Broadcaster
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Queue       config.QueueConfig
	Crowd       config.CrowdConfig
	Clock       func() time.Time
}

type engine struct {
	store       store.Store
	broadcaster events.Broadcaster
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

func newEngine(deps Dependencies) engine {
	e := engine{
		store:       deps.Store,
		broadcaster: deps.Broadcaster,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		now:         deps.Clock,
	}
	if e.broadcaster == nil {
		e.broadcaster = events.Nop{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	return e
}

// outbox collects events raised inside a unit of work. They are published only
// after the unit commits.
type outbox struct {
	events []events.Event
}

func (o *outbox) add(eventType events.EventType, scope events.Scope, payload any) {
	o.events = append(o.events, events.Event{Type: eventType, Scope: scope, Payload: payload})
}

func (e engine) flush(ctx context.Context, o *outbox) {
	for _, event := range o.events {
		e.publish(ctx, event)
	}
	o.events = nil
}

func (e engine) publish(ctx context.Context, event events.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	if err := e.broadcaster.Publish(ctx, event); err != nil {
		e.logger.Warn("event publish failed",
			zap.String("event_type", string(event.Type)),
			zap.String("scope", string(event.Scope)),
			zap.Error(err))
	}
}

// finish maps err onto the public error catalogue and counts the outcome.
func (e engine) finish(operation string, err error) error {
	if err == nil {
		e.metrics.RecordOperation(operation, "ok")
		return nil
	}
	mapped := mapError(err)
	code := apperrors.CodeOf(mapped)
	e.metrics.RecordOperation(operation, code)
	if code == "INTERNAL_ERROR" {
		e.logger.Error(operation+" failed", zap.Error(err))
	} else {
		e.logger.Debug(operation+" rejected", zap.String("code", code), zap.Error(err))
	}
	return mapped
}
