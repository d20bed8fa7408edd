// Package realtime keeps the in-process registry of connected SSE clients.
package realtime

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusflow/campus-queue/internal/events"
)

// DropCounter is notified when a slow client misses an event.
type DropCounter interface {
	RecordDroppedEvent()
}

// Client is one subscriber. Its channel is closed by Unsubscribe.
type Client struct {
	ID     string
	scopes map[events.Scope]struct{}
	send   chan events.Event
	closed atomic.Bool
}

// Events yields delivered events until the client is unsubscribed.
func (c *Client) Events() <-chan events.Event {
	return c.send
}

// Hub delivers each event to the clients subscribed to its scope. Delivery
// never blocks: a client with a full buffer misses the event.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	buffer  int
	logger  *zap.Logger
	drops   DropCounter
}

var _ events.Broadcaster = (*Hub)(nil)

// NewHub creates a hub giving every client a channel of the given size.
func NewHub(buffer int, logger *zap.Logger, drops DropCounter) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		clients: make(map[string]*Client),
		buffer:  buffer,
		logger:  logger,
		drops:   drops,
	}
}

// Subscribe registers a client for the given scopes.
func (h *Hub) Subscribe(scopes ...events.Scope) *Client {
	client := &Client{
		ID:     uuid.NewString(),
		scopes: make(map[events.Scope]struct{}, len(scopes)),
		send:   make(chan events.Event, h.buffer),
	}
	for _, s := range scopes {
		client.scopes[s] = struct{}{}
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	h.logger.Debug("realtime client connected", zap.String("client_id", client.ID), zap.Int("scopes", len(scopes)))
	return client
}

// Unsubscribe removes the client and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	if client.closed.CompareAndSwap(false, true) {
		close(client.send)
	}
	h.logger.Debug("realtime client disconnected", zap.String("client_id", client.ID))
}

// Publish implements events.Broadcaster.
func (h *Hub) Publish(_ context.Context, event events.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if _, ok := client.scopes[event.Scope]; !ok {
			continue
		}
		select {
		case client.send <- event:
		default:
			h.logger.Warn("realtime client buffer full; dropping event",
				zap.String("client_id", client.ID),
				zap.String("event_type", string(event.Type)))
			if h.drops != nil {
				h.drops.RecordDroppedEvent()
			}
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unsubscribes every client, ending their streams.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		delete(h.clients, id)
		if client.closed.CompareAndSwap(false, true) {
			close(client.send)
		}
	}
}
