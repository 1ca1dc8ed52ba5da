package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-quiz-service/internal/domain"
)

func TestPublishDeliversJSONWithMetadata(t *testing.T) {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 4}, watermill.NopLogger{})
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msgs, err := ch.Subscribe(ctx, "topic")
	require.NoError(t, err)

	pub := NewPublisher(ch, "topic", nil)
	ev := domain.LifecycleEvent{
		ID:        "evt-1",
		Kind:      domain.LifecycleStarted,
		SessionID: "s-1",
		PIN:       "123456",
		At:        time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.Publish(ctx, ev))

	select {
	case msg := <-msgs:
		msg.Ack()
		assert.Equal(t, "evt-1", msg.UUID)
		assert.Equal(t, "session.started", msg.Metadata.Get("event_type"))
		assert.Equal(t, "123456", msg.Metadata.Get("pin"))
		got, err := Decode(msg)
		require.NoError(t, err)
		assert.Equal(t, ev.SessionID, got.SessionID)
		assert.True(t, ev.At.Equal(got.At))
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

func TestNewWithoutBrokersUsesGoChannel(t *testing.T) {
	pub, sub, err := New(Config{})
	require.NoError(t, err)
	require.NotNil(t, sub)
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msgs, err := sub.Subscribe(ctx, DefaultTopic)
	require.NoError(t, err)

	require.NoError(t, pub.Publish(ctx, domain.LifecycleEvent{ID: "evt-2", Kind: domain.LifecycleCreated}))
	select {
	case msg := <-msgs:
		msg.Ack()
		assert.Equal(t, "session.created", msg.Metadata.Get("event_type"))
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}
