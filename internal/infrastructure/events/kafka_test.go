package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/copy_follower/internal/domain"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	at := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	p := &KafkaPublisher{writer: w, Topic: "follower.outcomes", now: func() time.Time { return at }}

	out := domain.Outcome{
		PlanID: "gpt-5_BTCUSDT_1", Agent: "gpt-5", Symbol: "BTCUSDT", Action: domain.ActionEnter,
		SourceOrderID: "abc123", Status: domain.StatusExecuted, Quantity: 0.04,
	}
	require.NoError(t, p.Publish(context.Background(), out))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "gpt-5|BTCUSDT", string(msg.Key))
	assert.Equal(t, "EXECUTED", string(msg.Headers[1].Value))

	var ev OutcomeEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, OutcomeEventType, ev.Type)
	assert.NotEmpty(t, ev.EventID)
	assert.True(t, at.Equal(ev.OccurredAt))
	assert.Equal(t, "abc123", ev.Outcome.SourceOrderID)
	assert.Equal(t, 0.04, ev.Outcome.Quantity)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker down")}, now: time.Now}
	err := p.Publish(context.Background(), domain.Outcome{Status: domain.StatusFailed})
	assert.ErrorContains(t, err, "broker down")
}

func TestNewKafkaPublisher_FlushesEachOutcome(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "follower.outcomes")
	defer p.Close()

	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, 1, w.BatchSize)
	assert.LessOrEqual(t, w.BatchTimeout, 50*time.Millisecond)
	assert.Equal(t, "follower.outcomes", w.Topic)
}
