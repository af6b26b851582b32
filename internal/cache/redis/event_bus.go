package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/infrabond/core/internal/domain"
)

// EventChannel is the Pub/Sub channel all domain events are published to.
// Per-project consumers subscribe to EventChannel + ":project:<id>".
const EventChannel = "infrabond:events"

// eventStream is the durable stream mirror, trimmed via XADD MAXLEN ~.
const eventStream = "infrabond:events:stream"

const streamMaxLen int64 = 10000

// EventBus implements domain.EventBus using Redis Pub/Sub for fan-out and
// a capped Redis Stream for consumers that need catch-up reads.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Publish serializes the event to JSON and sends it to the global channel,
// the per-project channel when scoped, and the stream mirror.
func (b *EventBus) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", ev.ID, err)
	}

	if err := b.rdb.Publish(ctx, EventChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish event %s: %w", ev.ID, err)
	}
	if ev.ProjectID != "" {
		ch := EventChannel + ":project:" + ev.ProjectID
		if err := b.rdb.Publish(ctx, ch, payload).Err(); err != nil {
			return fmt.Errorf("redis: publish event %s to %s: %w", ev.ID, ch, err)
		}
	}

	args := &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append event %s: %w", ev.ID, err)
	}
	return nil
}

// Subscribe creates a Pub/Sub subscription on an event channel and returns
// a read-only channel of decoded events. The subscription closes with the
// context; the returned channel is closed at that point as well.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan domain.Event, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = b.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = b.rdb.Subscribe(ctx, channel)
	}

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan domain.Event, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern returns true when the Redis channel includes glob-style
// wildcards, in which case PSubscribe must be used instead of Subscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)
