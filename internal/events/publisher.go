package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// RedisPublisher publishes room lifecycle events over Redis pub/sub.
// Delivery is fire-and-forget; there are no durable subscribers.
type RedisPublisher struct {
	client   *redis.Client
	resolver ChannelResolver
}

func NewRedisPublisher(client *redis.Client, resolver ChannelResolver) *RedisPublisher {
	if resolver == nil {
		resolver = NewTenantRoomResolver()
	}
	return &RedisPublisher{client: client, resolver: resolver}
}

func (p *RedisPublisher) Publish(ctx context.Context, env Envelope) error {
	channels := p.resolver.ResolveChannels(env)
	if len(channels) == 0 {
		return nil
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	for _, channel := range channels {
		if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", channel, err)
		}
	}
	return nil
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Envelope) error { return nil }
