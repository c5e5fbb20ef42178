package service

import (
	"context"
	"testing"
	"time"

	"gardener-chat-be/internal/pkg/logger"
	"gardener-chat-be/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumerRelaysEvents(t *testing.T) {
	bus := events.NewGoChannelPublisher(events.NewGoChannel(), "chat_events")
	relay := &recordingPublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, NewConsumerService(bus, relay, logger.NewNopLogger()).Consume(ctx))

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, bus.Publish(ctx, events.SessionEvent(events.ChatSessionClosed, "s1", "alice", events.CloseReasonExpired, at)))

	assert.Eventually(t, func() bool { return len(relay.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	got := relay.snapshot()[0]
	assert.Equal(t, events.ChatSessionClosed, got.EventType())
	assert.Equal(t, "s1", got.Payload()["session_id"])
	assert.Equal(t, "expired", got.Payload()["reason"])
	assert.True(t, at.Equal(got.Timestamp()))
}
