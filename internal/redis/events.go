package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// EventsChannel is the pub/sub channel ride contract events are published on.
const EventsChannel = "ride-contract:events"

// EventPublisher publishes serialized events over Redis pub/sub.
type EventPublisher struct {
	client  *redis.Client
	channel string
}

// NewEventPublisher creates a publisher on EventsChannel.
func NewEventPublisher(client *redis.Client) *EventPublisher {
	return &EventPublisher{client: client, channel: EventsChannel}
}

// Publish sends payload to every subscriber of the events channel.
func (p *EventPublisher) Publish(ctx context.Context, payload []byte) error {
	return p.client.Publish(ctx, p.channel, payload).Err()
}
