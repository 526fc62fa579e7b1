package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kleo-app/kleo/internal/domain/shared"
)

// EventMessage is the wire shape of a published domain event.
type EventMessage struct {
	Type        shared.EventType       `json:"type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

// NewEventMessage flattens an event for the wire.
func NewEventMessage(event shared.Event) EventMessage {
	return EventMessage{
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt().UTC(),
		Payload:     event.Payload(),
	}
}

// EventPublisher publishes domain events to pubsub:<event type>.
type EventPublisher struct {
	cache *Cache
}

// NewEventPublisher creates an EventPublisher.
func NewEventPublisher(cache *Cache) *EventPublisher {
	return &EventPublisher{cache: cache}
}

// Publish implements shared.EventPublisher.
func (p *EventPublisher) Publish(ctx context.Context, event shared.Event) error {
	channel := PubSubChannel(string(event.EventType()))
	if err := p.cache.Publish(ctx, channel, NewEventMessage(event)); err != nil {
		return fmt.Errorf("publish %s: %w", event.EventType(), err)
	}
	return nil
}
