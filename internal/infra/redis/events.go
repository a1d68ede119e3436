package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

// EventPublisher publishes orchestration events on a pub/sub channel.
type EventPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewEventPublisher(client *Client, channel string) *EventPublisher {
	if channel == "" {
		channel = DefaultConfig().EventChannel
	}
	return &EventPublisher{rdb: client.rdb, channel: channel}
}

func (p *EventPublisher) Emit(ctx context.Context, event *domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close is a no-op; the shared client is closed by its owner.
func (p *EventPublisher) Close() error {
	return nil
}
