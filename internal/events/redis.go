package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gigflow/backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Channel carries every event. Project filtering happens in each
// instance's Hub, so one channel is all Relay needs.
const Channel = "gigflow:events"

// RedisBroadcaster publishes events to Redis pub/sub so every API instance
// can feed its own Hub.
type RedisBroadcaster struct {
	rdb *redis.Client
}

func NewRedisBroadcaster(rdb *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to marshal event")
		return
	}
	if err := b.rdb.Publish(ctx, Channel, data).Err(); err != nil {
		logger.Warn().Err(err).Str("type", string(event.Type)).Msg("Failed to broadcast event")
	}
}

// Relay forwards events from the shared channel into pub until ctx is done.
func (b *RedisBroadcaster) Relay(ctx context.Context, pub Publisher) error {
	sub := b.rdb.Subscribe(ctx, Channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", Channel, err)
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Warn().Err(err).Msg("Dropping malformed event")
				continue
			}
			pub.Publish(ctx, event)
		}
	}
}
