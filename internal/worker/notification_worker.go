package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/campusflow/campus-queue/internal/events"
)

// NotificationWorker moves notification delivery off the request path. It is
// a Broadcaster sink that queues events and replays them into the
// notification dispatcher from Run.
type NotificationWorker struct {
	target events.Broadcaster
	queue  chan events.Event
	logger *zap.Logger
}

var _ events.Broadcaster = (*NotificationWorker)(nil)

// NewNotificationWorker builds a worker delivering into target.
func NewNotificationWorker(target events.Broadcaster, buffer int, logger *zap.Logger) *NotificationWorker {
	if buffer <= 0 {
		buffer = 64
	}
	return &NotificationWorker{target: target, queue: make(chan events.Event, buffer), logger: logger}
}

// Publish enqueues identity-scoped events. It never blocks; a full queue
// drops the event.
func (w *NotificationWorker) Publish(_ context.Context, event events.Event) error {
	if !event.Scope.IsIdentity() {
		return nil
	}
	select {
	case w.queue <- event:
	default:
		w.logger.Warn("notification queue full; dropping event", zap.String("event_type", string(event.Type)))
	}
	return nil
}

// Run drains the queue until ctx ends.
func (w *NotificationWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-w.queue:
			if err := w.target.Publish(ctx, event); err != nil {
				w.logger.Warn("notification delivery failed", zap.String("event_type", string(event.Type)), zap.Error(err))
			}
		}
	}
}
