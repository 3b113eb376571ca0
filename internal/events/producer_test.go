package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	topic, key string
	event      any
}

func (r *recorder) Publish(_ context.Context, topic, key string, event any) error {
	r.topic, r.key, r.event = topic, key, event
	return nil
}

func (r *recorder) Close() error { return nil }

func TestNew_NoBrokersIsNop(t *testing.T) {
	t.Parallel()

	p := New([]string{"", "  "})
	_, ok := p.(Nop)
	assert.True(t, ok)
	assert.NoError(t, p.Publish(context.Background(), TopicUploaders, "k", Event{}))
	assert.NoError(t, p.Close())
}

func TestNew_WithBrokers(t *testing.T) {
	t.Parallel()

	p := New([]string{"kafka:9092"})
	_, ok := p.(*Producer)
	assert.True(t, ok)
	require.NoError(t, p.Close())
}

func TestEmit_StampsAndKeys(t *testing.T) {
	t.Parallel()

	r := &recorder{}
	require.NoError(t, Emit(context.Background(), r, Event{Type: UploaderBanned, DiscordUID: "42"}))

	assert.Equal(t, TopicUploaders, r.topic)
	assert.Equal(t, "42", r.key)
	e, ok := r.event.(Event)
	require.True(t, ok)
	assert.False(t, e.At.IsZero())
	assert.Equal(t, UploaderBanned, e.Type)
}

func TestEmit_NilPublisher(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Emit(context.Background(), nil, Event{Type: UploaderCreated}))
}

func TestProducer_PublishDoesNotWaitForBroker(t *testing.T) {
	t.Parallel()

	p := NewProducer([]string{"127.0.0.1:1"})
	t.Cleanup(func() { _ = p.Close() })

	start := time.Now()
	err := Emit(context.Background(), p, Event{Type: UploaderCreated, DiscordUID: "42"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
