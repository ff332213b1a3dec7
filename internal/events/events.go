package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/streamhub/apiserver/config"
)

// Topics carrying platform events. Consumers (the notifier command,
// future fan-out workers) subscribe by topic name.
const (
	TopicUserRegistered    = "user.registered"
	TopicChannelSubscribed = "channel.subscribed"
)

// UserRegistered is published after a successful registration.
type UserRegistered struct {
	UserID     int       `json:"user_id"`
	Username   string    `json:"username"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ChannelSubscribed is published after a subscriber follows a channel.
type ChannelSubscribed struct {
	SubscriberID int       `json:"subscriber_id"`
	ChannelID    int       `json:"channel_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// Bus wraps a backend with a typed, JSON-encoding API.
type Bus struct {
	backend Backend
}

// NewBus constructs the backend named by config. An empty backend name
// returns (nil, nil): event publishing is optional.
func NewBus(ctx context.Context, cfg config.MQConfig) (*Bus, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		backend, err := NewRabbitMQBackend(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return &Bus{backend: backend}, nil
	case "pubsub":
		backend, err := NewPubSubBackend(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return &Bus{backend: backend}, nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

// Publish JSON-encodes the event and sends it to the named topic.
func (b *Bus) Publish(ctx context.Context, topic string, event any) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return b.backend.Publish(ctx, topic, data, map[string]string{"topic": topic})
}

// Subscribe consumes messages from the named topic.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return b.backend.Subscribe(ctx, topic, handler)
}

// Close closes the underlying backend.
func (b *Bus) Close() error {
	return b.backend.Close()
}
