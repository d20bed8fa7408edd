package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campusflow/campus-queue/internal/events"
)

// WriteEvent writes one SSE frame and flushes it.
func WriteEvent(w *bufio.Writer, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", event.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return err
	}
	return w.Flush()
}

func writeComment(w *bufio.Writer, comment string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", comment); err != nil {
		return err
	}
	return w.Flush()
}

// StreamTo returns a body stream writer pumping the client's events until the
// connection breaks, the client is unsubscribed or ctx ends. The client is
// always unsubscribed on return.
func (h *Hub) StreamTo(ctx context.Context, client *Client, heartbeat time.Duration) func(w *bufio.Writer) {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return func(w *bufio.Writer) {
		defer h.Unsubscribe(client)

		hello := fmt.Sprintf("{\"client_id\":%q}", client.ID)
		if _, err := fmt.Fprintf(w, "event: connected\ndata: %s\n\n", hello); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := writeComment(w, "heartbeat"); err != nil {
					h.logger.Debug("realtime client gone", zap.String("client_id", client.ID), zap.Error(err))
					return
				}
			case event, ok := <-client.Events():
				if !ok {
					return
				}
				if err := WriteEvent(w, event); err != nil {
					h.logger.Debug("realtime client gone", zap.String("client_id", client.ID), zap.Error(err))
					return
				}
			}
		}
	}
}
