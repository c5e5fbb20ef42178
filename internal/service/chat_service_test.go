package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gardener-chat-be/internal/pkg/logger"
	"gardener-chat-be/internal/repository/memory"
	"gardener-chat-be/pkg/events"
	"gardener-chat-be/pkg/store"
	"gardener-chat-be/pkg/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAI struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (f *fakeAI) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.reply(prompt)
}

type recordingTransport struct {
	mu     sync.Mutex
	sent   map[string][]store.Envelope
	failAt int // fail the n-th send (1-based), 0 never
	sends  int
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{sent: make(map[string][]store.Envelope)}
}

func (r *recordingTransport) Send(sessionID string, env store.Envelope) error {
	r.mu.Lock()
	r.sends++
	if r.failAt > 0 && r.sends == r.failAt {
		r.mu.Unlock()
		return errors.New("connection reset")
	}
	r.sent[sessionID] = append(r.sent[sessionID], env)
	r.mu.Unlock()
	return nil
}

func (r *recordingTransport) envelopes(sessionID string) []store.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]store.Envelope(nil), r.sent[sessionID]...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) snapshot() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

type fixture struct {
	sessions  *memory.SessionRepository
	transport *recordingTransport
	publisher *recordingPublisher
	svc       IChatService
}

func newFixture(t *testing.T, ai AIResponder, poolSize int) *fixture {
	t.Helper()
	pool, err := worker.NewPool(poolSize, 64, nil)
	require.NoError(t, err)

	f := &fixture{
		sessions:  memory.NewSessionRepository(memory.NewHeartbeatRepository()),
		transport: newRecordingTransport(),
		publisher: &recordingPublisher{},
	}
	f.svc, err = NewChatService(f.sessions, ai, f.transport, pool, logger.NewNopLogger(), ChatServiceOptions{Publisher: f.publisher})
	require.NoError(t, err)
	return f
}

func chatEnvelope(t *testing.T, content string, ctx *store.ConversationContext) store.Envelope {
	t.Helper()
	raw, err := json.Marshal(store.ChatPayload{Message: store.Message{Content: content}, Context: ctx})
	require.NoError(t, err)
	return store.Envelope{Type: store.EnvelopeMessage, Payload: raw, Timestamp: time.Now().UnixMilli()}
}

func decode[T any](t *testing.T, env store.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Payload, &v))
	return v
}

func TestChatRoundTrip(t *testing.T) {
	ai := &fakeAI{reply: func(string) (string, error) { return "I've noticed that walks bring you peace.", nil }}
	f := newFixture(t, ai, 2)
	sess, _, err := f.sessions.GetOrCreate("alice", "s1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Submit("s1", chatEnvelope(t, "Hello", nil)))
	f.svc.Close()

	out := f.transport.envelopes("s1")
	require.Len(t, out, 4)

	assert.Equal(t, store.EnvelopeTyping, out[0].Type)
	assert.True(t, decode[store.TypingPayload](t, out[0]).IsTyping)
	assert.Equal(t, "alice", decode[store.TypingPayload](t, out[0]).UserID)

	assert.Equal(t, store.EnvelopeMessage, out[1].Type)
	reply := decode[store.Message](t, out[1])
	assert.Equal(t, "I've noticed that walks bring you peace.", reply.Content)
	assert.Equal(t, store.SenderAssistant, reply.Sender)
	assert.Equal(t, store.MessageInsight, reply.Type)
	assert.Equal(t, reply.ID, out[1].MessageID)

	assert.Equal(t, store.EnvelopeTyping, out[2].Type)
	assert.False(t, decode[store.TypingPayload](t, out[2]).IsTyping)

	assert.Equal(t, store.EnvelopeSuggestions, out[3].Type)
	assert.Len(t, decode[store.SuggestionsPayload](t, out[3]).Suggestions, 4)

	history := sess.History()
	require.Len(t, history, 2)
	assert.Equal(t, "Hello", history[0].Content)
	assert.Equal(t, store.SenderUser, history[0].Sender)
	assert.NotEmpty(t, history[0].ID)
	assert.Equal(t, store.SenderAssistant, history[1].Sender)
	assert.False(t, sess.IsTyping())

	require.Len(t, ai.prompts, 1)
	assert.True(t, strings.HasSuffix(ai.prompts[0], "\n\nUser: Hello\n\nAssistant:"))
}

func TestChatAIFailureSendsApology(t *testing.T) {
	ai := &fakeAI{reply: func(string) (string, error) { return "", store.ErrAIGeneration }}
	f := newFixture(t, ai, 2)
	sess, _, err := f.sessions.GetOrCreate("alice", "s1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Submit("s1", chatEnvelope(t, "Hello", nil)))
	f.svc.Close()

	out := f.transport.envelopes("s1")
	require.Len(t, out, 3)
	assert.True(t, decode[store.TypingPayload](t, out[0]).IsTyping)
	assert.Equal(t, apologyText, decode[store.Message](t, out[1]).Content)
	assert.False(t, decode[store.TypingPayload](t, out[2]).IsTyping)

	history := sess.History()
	require.Len(t, history, 1)
	assert.Equal(t, "Hello", history[0].Content)
	assert.False(t, sess.IsTyping())
}

func TestChatAIPanicSendsApologyAndKeepsSession(t *testing.T) {
	var calls int32
	ai := &fakeAI{reply: func(string) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("responder blew up")
		}
		return "Try a short walk.", nil
	}}
	f := newFixture(t, ai, 2)
	sess, _, err := f.sessions.GetOrCreate("alice", "s1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Submit("s1", chatEnvelope(t, "first", nil)))
	require.Eventually(t, func() bool { return len(f.transport.envelopes("s1")) == 3 }, time.Second, time.Millisecond)
	require.NoError(t, f.svc.Submit("s1", chatEnvelope(t, "second", nil)))
	f.svc.Close()

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	out := f.transport.envelopes("s1")
	require.Len(t, out, 7)
	assert.Equal(t, apologyText, decode[store.Message](t, out[1]).Content)
	assert.False(t, decode[store.TypingPayload](t, out[2]).IsTyping)
	assert.Equal(t, "Try a short walk.", decode[store.Message](t, out[4]).Content)
	assert.Equal(t, store.EnvelopeSuggestions, out[6].Type)

	assert.False(t, sess.IsTyping())
	history := sess.History()
	require.Len(t, history, 3)
	assert.Equal(t, "first", history[0].Content)
	assert.Equal(t, "second", history[1].Content)
}

func TestChatMergesContextIntoPrompt(t *testing.T) {
	ai := &fakeAI{reply: func(string) (string, error) { return "Take it slow today.", nil }}
	f := newFixture(t, ai, 1)
	sess, _, err := f.sessions.GetOrCreate("alice", "s1")
	require.NoError(t, err)

	mood := "sad"
	ctx := &store.ConversationContext{
		CurrentMood:    &mood,
		RecentMemories: []store.Memory{{UserText: "a rainy walk"}},
	}
	require.NoError(t, f.svc.Submit("s1", chatEnvelope(t, "rough day", ctx)))
	f.svc.Close()

	assert.Equal(t, "sad", sess.Context().Mood())
	require.Len(t, ai.prompts, 1)
	assert.Contains(t, ai.prompts[0], "sad")
	assert.Contains(t, ai.prompts[0], "a rainy walk")

	out := f.transport.envelopes("s1")
	require.Len(t, out, 4)
	assert.Equal(t, "Can you help me find some positive memories?",
		decode[store.SuggestionsPayload](t, out[3]).Suggestions[0])
}

func TestChatPreservesOrderPerSession(t *testing.T) {
	// Earlier messages take longer, so a racing implementation would reorder replies.
	ai := &fakeAI{reply: func(prompt string) (string, error) {
		idx := strings.LastIndex(prompt, "User: msg-")
		var n int
		fmt.Sscanf(prompt[idx:], "User: msg-%d", &n)
		time.Sleep(time.Duration(10-n) * 3 * time.Millisecond)
		return fmt.Sprintf("reply-%d", n), nil
	}}
	f := newFixture(t, ai, 8)
	_, _, err := f.sessions.GetOrCreate("alice", "s1")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, f.svc.Submit("s1", chatEnvelope(t, fmt.Sprintf("msg-%d", i), nil)))
	}
	f.svc.Close()

	var replies []string
	for _, env := range f.transport.envelopes("s1") {
		if env.Type == store.EnvelopeMessage {
			replies = append(replies, decode[store.Message](t, env).Content)
		}
	}
	require.Len(t, replies, 10)
	for i, r := range replies {
		assert.Equal(t, fmt.Sprintf("reply-%d", i), r)
	}
}

func TestChatSessionsRunInParallel(t *testing.T) {
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)
	ai := &fakeAI{reply: func(string) (string, error) {
		started.Done()
		<-release
		return "ok", nil
	}}
	f := newFixture(t, ai, 2)
	for _, id := range []string{"s1", "s2"} {
		_, _, err := f.sessions.GetOrCreate("user-"+id, id)
		require.NoError(t, err)
		require.NoError(t, f.svc.Submit(id, chatEnvelope(t, "hi", nil)))
	}

	waited := make(chan struct{})
	go func() { started.Wait(); close(waited) }()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("sessions did not run concurrently")
	}
	close(release)
	f.svc.Close()
}

func TestTypingVisibleWhileGenerating(t *testing.T) {
	var sess *store.Session
	seen := make(chan bool, 1)
	ai := &fakeAI{reply: func(string) (string, error) {
		seen <- sess.IsTyping()
		return "", errors.New("boom")
	}}
	f := newFixture(t, ai, 1)
	var err error
	sess, _, err = f.sessions.GetOrCreate("alice", "s1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Submit("s1", chatEnvelope(t, "hi", nil)))
	f.svc.Close()

	assert.True(t, <-seen)
	assert.False(t, sess.IsTyping())
}

func TestSubmitNonChatEnvelopes(t *testing.T) {
	ai := &fakeAI{reply: func(string) (string, error) { return "unused", nil }}

	tests := []struct {
		name     string
		env      store.Envelope
		wantType store.EnvelopeType
		wantSent int
	}{
		{name: "heartbeat echo", env: store.Envelope{Type: store.EnvelopeHeartbeat}, wantType: store.EnvelopeHeartbeat, wantSent: 1},
		{name: "suggestions request", env: store.Envelope{Type: store.EnvelopeSuggestions}, wantType: store.EnvelopeSuggestions, wantSent: 1},
		{name: "typing is absorbed", env: store.Envelope{Type: store.EnvelopeTyping}, wantSent: 0},
		{name: "unknown type dropped", env: store.Envelope{Type: store.EnvelopeUnknown}, wantSent: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, ai, 1)
			sess, _, err := f.sessions.GetOrCreate("alice", "s1")
			require.NoError(t, err)
			before := sess.LastActivity()
			time.Sleep(2 * time.Millisecond)

			require.NoError(t, f.svc.Submit("s1", tt.env))
			f.svc.Close()

			out := f.transport.envelopes("s1")
			require.Len(t, out, tt.wantSent)
			if tt.wantSent > 0 {
				assert.Equal(t, tt.wantType, out[0].Type)
			}
			assert.True(t, sess.LastActivity().After(before))
			assert.Empty(t, sess.History())
		})
	}
}

func TestSubmitUnknownSession(t *testing.T) {
	f := newFixture(t, &fakeAI{reply: func(string) (string, error) { return "", nil }}, 1)
	err := f.svc.Submit("missing", store.Envelope{Type: store.EnvelopeHeartbeat})
	assert.True(t, errors.Is(err, store.ErrSessionNotFound))
	f.svc.Close()
}

func TestTransportFailureRemovesSession(t *testing.T) {
	ai := &fakeAI{reply: func(string) (string, error) { return "hello", nil }}
	f := newFixture(t, ai, 1)
	f.transport.failAt = 1
	sess, _, err := f.sessions.GetOrCreate("alice", "s1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Submit("s1", chatEnvelope(t, "one", nil)))
	f.svc.Close()

	assert.False(t, f.sessions.Contains(sess))
	assert.False(t, sess.IsTyping())

	evts := f.publisher.snapshot()
	require.Len(t, evts, 1)
	assert.Equal(t, events.ChatSessionClosed, evts[0].EventType())
	assert.Equal(t, events.CloseReasonTransport, evts[0].Payload()["reason"])
}

func TestOutputDiscardedAfterRemoval(t *testing.T) {
	var sessions *memory.SessionRepository
	ai := &fakeAI{reply: func(string) (string, error) {
		sessions.Remove("s1")
		return "too late", nil
	}}
	f := newFixture(t, ai, 1)
	sessions = f.sessions

	_, _, err := f.sessions.GetOrCreate("alice", "s1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Submit("s1", chatEnvelope(t, "hi", nil)))
	f.svc.Close()

	out := f.transport.envelopes("s1")
	require.Len(t, out, 1)
	assert.Equal(t, store.EnvelopeTyping, out[0].Type)
}

func TestGreetIsNotRecorded(t *testing.T) {
	f := newFixture(t, &fakeAI{reply: func(string) (string, error) { return "", nil }}, 1)
	sess, _, err := f.sessions.GetOrCreate("alice", "s1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Greet(sess))
	f.svc.Close()

	out := f.transport.envelopes("s1")
	require.Len(t, out, 1)
	assert.Equal(t, welcomeText, decode[store.Message](t, out[0]).Content)
	assert.Empty(t, sess.History())
}
