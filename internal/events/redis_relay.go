package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRelay shares events between API instances over one Pub/Sub channel.
// Publish only writes to Redis; Run feeds every received event, including
// this instance's own, into the local broadcaster. Pub/Sub keeps no history,
// so a subscriber that is down misses events.
type RedisRelay struct {
	client  *redis.Client
	channel string
	local   Broadcaster
	logger  *zap.Logger
}

// NewRedisRelay builds a relay delivering into local.
func NewRedisRelay(client *redis.Client, channel string, local Broadcaster, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, local: local, logger: logger}
}

// Publish implements Broadcaster.
func (r *RedisRelay) Publish(ctx context.Context, event Event) error {
	data, err := encodeEnvelope(event)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("relay publish %s: %w", event.Type, err)
	}
	return nil
}

// Run subscribes to the channel until ctx ends.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
	}
	r.logger.Info("event relay subscribed", zap.String("channel", r.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			event, err := decodeEnvelope([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn("dropping malformed relay message", zap.Error(err))
				continue
			}
			if err := r.local.Publish(ctx, event); err != nil {
				r.logger.Warn("local delivery failed", zap.String("event_type", string(event.Type)), zap.Error(err))
			}
		}
	}
}

type envelope struct {
	Event
	Payload json.RawMessage `json:"payload"`
}

func encodeEnvelope(event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event.Type, err)
	}
	return json.Marshal(envelope{Event: event, Payload: payload})
}

func decodeEnvelope(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, err
	}
	if env.Type == "" || env.Scope == "" {
		return Event{}, fmt.Errorf("relay message missing type or scope")
	}
	event := env.Event
	event.Payload = env.Payload
	return event, nil
}
