package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/vitos/copy_follower/internal/domain"
)

const OutcomeEventType = "follower.outcome"

// publishBatchTimeout bounds how long a synchronous publish waits for a
// batch to fill before it is flushed.
const publishBatchTimeout = 10 * time.Millisecond

// OutcomeEvent is the message value published for every processed plan.
type OutcomeEvent struct {
	EventID    string         `json:"eventId"`
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurredAt"`
	Outcome    domain.Outcome `json:"outcome"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes outcomes keyed by agent and symbol, so a
// partition sees one pair's outcomes in order.
type KafkaPublisher struct {
	writer messageWriter
	Topic  string
	now    func() time.Time
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		BatchSize:              1,
		BatchTimeout:           publishBatchTimeout,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: writer, Topic: topic, now: time.Now}
}

func (p *KafkaPublisher) Publish(ctx context.Context, o domain.Outcome) error {
	msg, err := p.message(o)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) message(o domain.Outcome) (kafka.Message, error) {
	value, err := json.Marshal(OutcomeEvent{
		EventID:    uuid.NewString(),
		Type:       OutcomeEventType,
		OccurredAt: p.now().UTC(),
		Outcome:    o,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal outcome event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(o.Agent + "|" + o.Symbol),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(OutcomeEventType)},
			{Key: "status", Value: []byte(o.Status)},
		},
	}, nil
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
