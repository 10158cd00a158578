package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Go-routine-4595/sensorhub/model"
)

type fakeChannel struct {
	key  string
	msgs []amqp.Publishing
	err  error
}

func (f *fakeChannel) Publish(_, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.key = key
	f.msgs = append(f.msgs, msg)
	return nil
}

func TestBroadcast(t *testing.T) {
	r := NewRabbitMQ(RabbitMQConfig{QueueName: "events"}, zerolog.New(io.Discard))
	ch := &fakeChannel{}
	r.ch = ch

	ev := model.LiveEvent{ID: "light_1", Type: model.Light, Value: 450, Timestamp: time.UnixMilli(1)}
	require.NoError(t, r.Broadcast(ev))

	require.Len(t, ch.msgs, 1)
	assert.Equal(t, "events", ch.key)
	assert.Equal(t, "application/json", ch.msgs[0].ContentType)

	var got model.LiveEvent
	require.NoError(t, json.Unmarshal(ch.msgs[0].Body, &got))
	assert.Equal(t, "light_1", got.ID)
	assert.Equal(t, 450.0, got.Value)
}

func TestBroadcast_NotStarted(t *testing.T) {
	r := NewRabbitMQ(RabbitMQConfig{}, zerolog.New(io.Discard))
	assert.Equal(t, "sensor-events", r.QueueName)
	assert.Error(t, r.Broadcast(model.LiveEvent{ID: "x"}))
}

func TestBroadcast_GivesUpWhenStopped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRabbitMQ(RabbitMQConfig{ConnectionString: "amqp://127.0.0.1:1/"}, zerolog.New(io.Discard))
	r.ctx = ctx
	r.retry = time.Millisecond
	r.ch = &fakeChannel{err: errors.New("channel closed")}

	err := r.Broadcast(model.LiveEvent{ID: "x"})
	assert.ErrorContains(t, err, "channel closed")
}
