package services

import (
	"context"
	"log"
	"time"

	"github.com/streamhub/apiserver/internal/events"
	"github.com/streamhub/apiserver/types"
)

// EventPublisher emits platform events best-effort: publish failures
// are logged and never surface into the request that triggered them.
// A nil publisher (or one over a nil bus) is a no-op, so the auth core
// runs fine without a broker.
type EventPublisher struct {
	bus *events.Bus
}

func NewEventPublisher(bus *events.Bus) *EventPublisher {
	return &EventPublisher{bus: bus}
}

// UserRegistered announces a new account.
func (p *EventPublisher) UserRegistered(ctx context.Context, user types.User) {
	p.publish(ctx, events.TopicUserRegistered, events.UserRegistered{
		UserID:     user.ID,
		Username:   user.Username,
		OccurredAt: time.Now(),
	})
}

// ChannelSubscribed announces a new subscription edge.
func (p *EventPublisher) ChannelSubscribed(ctx context.Context, sub types.Subscription) {
	p.publish(ctx, events.TopicChannelSubscribed, events.ChannelSubscribed{
		SubscriberID: sub.SubscriberID,
		ChannelID:    sub.ChannelID,
		OccurredAt:   time.Now(),
	})
}

func (p *EventPublisher) publish(ctx context.Context, topic string, event any) {
	if p == nil || p.bus == nil {
		return
	}
	if _, err := p.bus.Publish(ctx, topic, event); err != nil {
		log.Printf("events: publish %s: %v", topic, err)
	}
}
