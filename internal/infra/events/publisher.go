// Package events publishes session lifecycle notifications through watermill.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"live-quiz-service/internal/domain"
)

// DefaultTopic receives every lifecycle event.
const DefaultTopic = "quiz.session.lifecycle"

// Config selects the transport. With no brokers the publisher stays in process.
type Config struct {
	KafkaBrokers []string
	Topic        string
	Logger       *slog.Logger
}

// Publisher implements app.LifecyclePublisher on top of any watermill publisher.
type Publisher struct {
	publisher message.Publisher
	topic     string
	log       *slog.Logger
}

// New builds a Kafka publisher when brokers are configured and an in-process
// go channel otherwise. The returned subscriber is non-nil only for the go channel.
func New(cfg Config) (*Publisher, message.Subscriber, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	logger := watermill.NewSlogLogger(cfg.Logger)

	if len(cfg.KafkaBrokers) == 0 {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		return NewPublisher(ch, cfg.Topic, cfg.Logger), ch, nil
	}

	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	return NewPublisher(pub, cfg.Topic, cfg.Logger), nil, nil
}

func NewPublisher(pub message.Publisher, topic string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{publisher: pub, topic: topic, log: log}
}

// Publish sends ev as a JSON message keyed by its event id.
func (p *Publisher) Publish(ctx context.Context, ev domain.LifecycleEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal lifecycle event: %w", err)
	}
	msg := message.NewMessage(ev.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", string(ev.Kind))
	msg.Metadata.Set("pin", ev.PIN)
	msg.Metadata.Set("session_id", ev.SessionID)
	msg.Metadata.Set("timestamp", ev.At.UTC().Format(time.RFC3339))

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	p.log.Debug("lifecycle event published", "event_id", ev.ID, "kind", ev.Kind, "topic", p.topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.publisher.Close()
}

// Decode parses a lifecycle event published by Publisher.
func Decode(msg *message.Message) (domain.LifecycleEvent, error) {
	var ev domain.LifecycleEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return domain.LifecycleEvent{}, fmt.Errorf("decode lifecycle event: %w", err)
	}
	return ev, nil
}

// LogConsumer drains sub and logs each lifecycle event until ctx is done.
func LogConsumer(ctx context.Context, sub message.Subscriber, topic string, log *slog.Logger) error {
	if topic == "" {
		topic = DefaultTopic
	}
	msgs, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	for msg := range msgs {
		ev, err := Decode(msg)
		if err != nil {
			log.Warn("drop lifecycle message", "uuid", msg.UUID, "error", err)
			msg.Ack()
			continue
		}
		log.Info("session lifecycle", "kind", ev.Kind, "pin", ev.PIN, "session_id", ev.SessionID)
		msg.Ack()
	}
	return nil
}
