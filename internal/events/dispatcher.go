package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Broadcaster delivers an event to whoever is subscribed to its scope.
// Delivery is best effort; callers never roll back on a publish error.
type Broadcaster interface {
	Publish(ctx context.Context, event Event) error
}

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher fans an event out to sinks (hub, relay) and to in-process
// handlers registered per event type.
type Dispatcher interface {
	Broadcaster
	Subscribe(eventType EventType, handler EventHandler)
}

type fanoutDispatcher struct {
	logger    *zap.Logger
	sinks     []Broadcaster
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

// NewDispatcher creates a dispatcher publishing to every sink in order.
func NewDispatcher(logger *zap.Logger, sinks ...Broadcaster) Dispatcher {
	return &fanoutDispatcher{
		logger:    logger,
		sinks:     sinks,
		listeners: make(map[EventType][]EventHandler),
	}
}

// Publish synchronously delivers to sinks and handlers. A failing sink does
// not stop the others; the joined error is returned for logging.
func (d *fanoutDispatcher) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range d.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}

	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			d.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a handler for the given event type.
func (d *fanoutDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

// Nop discards every event.
type Nop struct{}

// Publish implements Broadcaster.
func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Broadcaster.
func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(eventType EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
