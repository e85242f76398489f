package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedPublish struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	published []recordedPublish
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, recordedPublish{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	publisher := newPublisherWithChannel(ch, "courtbooking.events")
	at := time.Date(2024, time.March, 4, 19, 5, 0, 0, time.UTC)

	err := publisher.Publish(context.Background(), KeyOrderPaid, at, map[string]any{"order_id": "order-1", "total": 150000})
	require.NoError(t, err)

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, "courtbooking.events", got.exchange)
	assert.Equal(t, KeyOrderPaid, got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)

	var envelope struct {
		Type       string         `json:"type"`
		OccurredAt time.Time      `json:"occurred_at"`
		Payload    map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(got.msg.Body, &envelope))
	assert.Equal(t, KeyOrderPaid, envelope.Type)
	assert.True(t, at.Equal(envelope.OccurredAt))
	assert.Equal(t, "order-1", envelope.Payload["order_id"])
	assert.EqualValues(t, 150000, envelope.Payload["total"])

	require.NoError(t, publisher.Close())
	assert.True(t, ch.closed)
}

func TestPublisher_PublishError(t *testing.T) {
	boom := errors.New("channel closed")
	publisher := newPublisherWithChannel(&fakeChannel{err: boom}, "x")

	err := publisher.Publish(context.Background(), KeyPaymentFailed, time.Now(), struct{}{})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), KeyPaymentFailed)
}
