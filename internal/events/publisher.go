package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Publisher emits real-time events over Redis pub/sub, falling back to the
// in-process bus when Redis is unavailable. Delivery is best-effort,
// at-most-once per connected listener; there is no persistence or replay.
type Publisher struct {
	client *redis.Client
	bus    *Bus
	logger *zerolog.Logger
}

func NewPublisher(client *redis.Client, bus *Bus, logger *zerolog.Logger) *Publisher {
	return &Publisher{client: client, bus: bus, logger: logger}
}

// Emit serializes the payload and publishes it to the topic. A Redis failure
// downgrades to the in-process bus instead of surfacing an error to callers.
func (p *Publisher) Emit(ctx context.Context, topic, event string, payload any) error {
	ev, err := NewEvent(topic, event, payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	if p.client != nil {
		raw, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		if err := p.client.Publish(ctx, topic, raw).Err(); err == nil {
			return nil
		} else {
			p.logger.Warn().Err(err).Str("topic", topic).Str("event", event).
				Msg("redis publish failed, falling back to local bus")
		}
	}

	if p.bus != nil {
		p.bus.Publish(ev)
	}
	return nil
}
