package service

import (
	"context"
	"testing"
	"time"

	"gardener-chat-be/internal/pkg/logger"
	"gardener-chat-be/internal/repository/memory"
	"gardener-chat-be/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closerSpy struct {
	closed []string
}

func (c *closerSpy) CloseSession(sessionID string) {
	c.closed = append(c.closed, sessionID)
}

func TestReaperSweep(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	hb := memory.NewHeartbeatRepository()
	sessions := memory.NewSessionRepositoryWithClock(hb, func() time.Time { return base })

	stale, _, err := sessions.GetOrCreate("alice", "stale")
	require.NoError(t, err)
	fresh, _, err := sessions.GetOrCreate("bob", "fresh")
	require.NoError(t, err)
	sessions.Heartbeat("fresh", base.Add(2*time.Second))

	pub := &recordingPublisher{}
	closer := &closerSpy{}
	reaper := NewReaperService(sessions, hb, logger.NewNopLogger(), ReaperOptions{
		Timeout:   60 * time.Second,
		Publisher: pub,
		Closer:    closer,
	})

	// stale is 61s silent, fresh only 59s.
	removed := reaper.Sweep(base.Add(61 * time.Second))

	assert.Equal(t, 1, removed)
	assert.False(t, sessions.Contains(stale))
	assert.True(t, sessions.Contains(fresh))
	assert.Equal(t, []string{"stale"}, closer.closed)

	evts := pub.snapshot()
	require.Len(t, evts, 1)
	assert.Equal(t, events.ChatSessionClosed, evts[0].EventType())
	assert.Equal(t, events.CloseReasonExpired, evts[0].Payload()["reason"])
	assert.Equal(t, "stale", evts[0].Payload()["session_id"])

	assert.Zero(t, reaper.Sweep(base.Add(61*time.Second)))
}

func TestReaperKeepsSessionAtExactTimeout(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	hb := memory.NewHeartbeatRepository()
	sessions := memory.NewSessionRepositoryWithClock(hb, func() time.Time { return base })
	_, _, err := sessions.GetOrCreate("alice", "s1")
	require.NoError(t, err)

	reaper := NewReaperService(sessions, hb, logger.NewNopLogger(), ReaperOptions{Timeout: time.Minute})

	assert.Zero(t, reaper.Sweep(base.Add(time.Minute)))
	assert.Equal(t, 1, sessions.Count())
}

func TestReaperStartStop(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	hb := memory.NewHeartbeatRepository()
	sessions := memory.NewSessionRepositoryWithClock(hb, func() time.Time { return base })
	_, _, err := sessions.GetOrCreate("alice", "s1")
	require.NoError(t, err)

	reaper := NewReaperService(sessions, hb, logger.NewNopLogger(), ReaperOptions{
		Interval: 5 * time.Millisecond,
		Timeout:  time.Minute,
		Clock:    func() time.Time { return base.Add(2 * time.Minute) },
	})
	reaper.Start(context.Background())
	defer reaper.Stop()

	assert.Eventually(t, func() bool { return sessions.Count() == 0 }, time.Second, 5*time.Millisecond)
	reaper.Stop()
}
