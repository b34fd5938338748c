// Package redisbus implements ledger.EventBus on top of Redis Pub/Sub.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/lifebank/internal/ledger"
)

// Bus publishes events to Redis Pub/Sub channels named "lifebank:<a>:<b>"
// for topic ("a", "b"), mirroring env.events().publish((symbol_a, symbol_b), data).
type Bus struct {
	client *redis.Client
}

// Envelope is the wire format on the Pub/Sub channel. EventID lets
// subscribers dedupe redeliveries; Pub/Sub itself is fire-and-forget.
type Envelope struct {
	EventID uuid.UUID `json:"event_id"`
	Topic   [2]string `json:"topic"`
	Payload any       `json:"payload"`
}

// New wraps an existing redis.Client.
func New(client *redis.Client) *Bus {
	return &Bus{client: client}
}

// Publish implements ledger.EventBus.
func (b *Bus) Publish(ctx context.Context, topic [2]string, payload any) error {
	channel := fmt.Sprintf("lifebank:%s:%s", topic[0], topic[1])
	data, err := json.Marshal(Envelope{
		EventID: uuid.New(),
		Topic:   topic,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("redisbus: marshal payload for %s: %w", channel, err)
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redisbus: publish %s: %w", channel, err)
	}
	return nil
}

var _ ledger.EventBus = (*Bus)(nil)
