package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Skotchmaster/tachyon_hub/pkg/logging"
)

const (
	TopicUploaders = "uploader_events"

	writeTimeout = 5 * time.Second
	maxAttempts  = 3
)

const (
	UploaderCreated = "uploader_created"
	UploaderBanned  = "uploader_banned"
	StatusChanged   = "uploader_status_changed"
	SessionRevoked  = "session_revoked"
)

type Event struct {
	Type       string    `json:"type"`
	DiscordUID string    `json:"discord_uid"`
	UploaderID string    `json:"uploader_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
	Close() error
}

type Producer struct {
	writer *kafka.Writer
}

// NewProducer returns an async writer: Publish only enqueues, and delivery failures are
// logged from the completion callback.
func NewProducer(brokers []string) *Producer {
	l := logging.FromContext(context.Background()).With("svc", "events.kafka")
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           writeTimeout,
		MaxAttempts:            maxAttempts,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(msgs []kafka.Message, err error) {
			if err == nil {
				return
			}
			for _, m := range msgs {
				l.Warn("event_dropped", "topic", m.Topic, "key", string(m.Key), "error", err)
			}
		},
	}}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write to %s failed: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Nop drops every event. Used when KAFKA_BROKERS is empty.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, any) error { return nil }

func (Nop) Close() error { return nil }

// New returns a kafka producer, or Nop when no brokers are configured.
func New(brokers []string) Publisher {
	var clean []string
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			clean = append(clean, b)
		}
	}
	if len(clean) == 0 {
		return Nop{}
	}
	return NewProducer(clean)
}

// Emit publishes e on the uploader topic keyed by discord id. It does not wait for the broker.
func Emit(ctx context.Context, p Publisher, e Event) error {
	if p == nil {
		return nil
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return p.Publish(ctx, TopicUploaders, e.DiscordUID, e)
}
