package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gardener-chat-be/internal/pkg/logger"
	"gardener-chat-be/pkg/events"
	"gardener-chat-be/pkg/prompt"
	"gardener-chat-be/pkg/store"
	"gardener-chat-be/pkg/suggestion"
	"gardener-chat-be/pkg/worker"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	chatModule = "Dispatcher"

	welcomeText = "Hello! I'm your Gardener's Assistant. I'm here to help you tend to your digital garden of memories. How are you feeling today?"
	apologyText = "I apologize, but I encountered an error while processing your message."
)

// AIResponder produces the assistant reply for a fully assembled prompt.
type AIResponder interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Transport delivers an envelope to the connection behind sessionID.
type Transport interface {
	Send(sessionID string, env store.Envelope) error
}

// SessionStore is the part of the session table the coordinator needs.
type SessionStore interface {
	Find(sessionID string) (*store.Session, bool)
	Contains(sess *store.Session) bool
	Heartbeat(sessionID string, now time.Time) bool
	RemoveSession(sess *store.Session) bool
	All() []*store.Session
}

// TranscriptArchive keeps a durable copy of tracked messages. Optional.
type TranscriptArchive interface {
	Archive(ctx context.Context, sess *store.Session, msg store.Message) error
}

type IChatService interface {
	Submit(sessionID string, env store.Envelope) error
	Greet(sess *store.Session) error
	Close()
}

// sessionQueue holds the chat envelopes of one session waiting for their turn.
// At most one drain task per queue is in flight, which keeps replies in submission order.
type sessionQueue struct {
	pending []store.Envelope
	active  bool
	closed  bool
}

type ChatServiceOptions struct {
	Archive   TranscriptArchive
	Publisher events.Publisher
	Closer    SessionCloser
	Clock     func() time.Time
}

type chatService struct {
	sessions  SessionStore
	ai        AIResponder
	transport Transport
	pool      *worker.Pool
	logger    logger.ILogger
	archive   TranscriptArchive
	publisher events.Publisher
	closer    SessionCloser
	now       func() time.Time

	mu     sync.Mutex
	queues map[*store.Session]*sessionQueue

	tracer     trace.Tracer
	envelopes  metric.Int64Counter
	aiFailures metric.Int64Counter
}

func NewChatService(
	sessions SessionStore,
	ai AIResponder,
	transport Transport,
	pool *worker.Pool,
	log logger.ILogger,
	opts ChatServiceOptions,
) (IChatService, error) {
	if sessions == nil || ai == nil || transport == nil || pool == nil {
		return nil, fmt.Errorf("%w: chat service requires sessions, ai, transport and pool", store.ErrConfiguration)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	meter := otel.Meter("gardener-chat-be/chat")
	envelopes, err := meter.Int64Counter("chat.envelopes", metric.WithDescription("Inbound envelopes by type"))
	if err != nil {
		return nil, err
	}
	aiFailures, err := meter.Int64Counter("chat.ai.failures", metric.WithDescription("AI responder failures"))
	if err != nil {
		return nil, err
	}

	return &chatService{
		sessions:   sessions,
		ai:         ai,
		transport:  transport,
		pool:       pool,
		logger:     log,
		archive:    opts.Archive,
		publisher:  opts.Publisher,
		closer:     opts.Closer,
		now:        opts.Clock,
		queues:     make(map[*store.Session]*sessionQueue),
		tracer:     otel.Tracer("gardener-chat-be/chat"),
		envelopes:  envelopes,
		aiFailures: aiFailures,
	}, nil
}

// Submit accepts an inbound envelope. Chat messages are queued per session, everything
// else is handed to the pool right away. Per-envelope problems are logged, not returned;
// an error means the session is gone or the envelope could not be scheduled.
func (s *chatService) Submit(sessionID string, env store.Envelope) error {
	sess, ok := s.sessions.Find(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrSessionNotFound, sessionID)
	}

	now := s.now()
	sess.Touch(now)
	s.sessions.Heartbeat(sess.ID, now)
	s.envelopes.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", env.Type.String())))

	switch env.Type {
	case store.EnvelopeMessage:
		return s.enqueueChat(sess, env)
	case store.EnvelopeHeartbeat:
		return s.submitTask(sess, func(ctx context.Context) error {
			return s.emit(sess, store.NewHeartbeatEnvelope(s.now()))
		})
	case store.EnvelopeSuggestions:
		return s.submitTask(sess, func(ctx context.Context) error {
			return s.emit(sess, store.NewSuggestionsEnvelope(suggestion.Suggest(sess.Context().Mood()), s.now()))
		})
	case store.EnvelopeTyping:
		// The client's typing indicator is informational; lastActivity was refreshed above.
		return nil
	default:
		s.logger.Warn(chatModule, "Unknown envelope type dropped", map[string]interface{}{
			"session_id": sess.ID,
			"message_id": env.MessageID,
			"error":      store.ErrUnknownEnvelopeType.Error(),
		})
		return nil
	}
}

// Greet sends the welcome message. It is not recorded in the history.
func (s *chatService) Greet(sess *store.Session) error {
	return s.submitTask(sess, func(ctx context.Context) error {
		now := s.now()
		welcome := store.Message{
			ID:        store.NewMessageID(now),
			Content:   welcomeText,
			Sender:    store.SenderAssistant,
			Timestamp: now.UnixMilli(),
			Type:      store.MessageText,
		}
		return s.emit(sess, store.NewMessageEnvelope(welcome, now))
	})
}

// Close waits for queued and running work, then stops the workers.
func (s *chatService) Close() {
	s.pool.Close()
}

func (s *chatService) submitTask(sess *store.Session, fn func(ctx context.Context) error) error {
	return s.pool.Submit(context.Background(), func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			s.teardown(sess, err)
		}
	})
}

func (s *chatService) enqueueChat(sess *store.Session, env store.Envelope) error {
	s.mu.Lock()
	q, ok := s.queues[sess]
	if !ok {
		q = &sessionQueue{}
		s.queues[sess] = q
	}
	if q.closed {
		s.mu.Unlock()
		return nil
	}
	q.pending = append(q.pending, env)
	if q.active {
		s.mu.Unlock()
		return nil
	}
	q.active = true
	s.mu.Unlock()

	err := s.pool.Submit(context.Background(), func(ctx context.Context) {
		s.drain(ctx, sess, q)
	})
	if err != nil {
		s.mu.Lock()
		q.active = false
		q.pending = nil
		delete(s.queues, sess)
		s.mu.Unlock()
		return fmt.Errorf("schedule chat message: %w", err)
	}
	return nil
}

// drain processes the session's chat envelopes one at a time until the queue is empty.
// The queue is released on every exit, including a panic unwinding through the loop.
func (s *chatService) drain(ctx context.Context, sess *store.Session, q *sessionQueue) {
	released := false
	defer func() {
		if !released {
			s.mu.Lock()
			s.releaseLocked(sess, q)
			s.mu.Unlock()
		}
	}()

	for {
		s.mu.Lock()
		if q.closed || len(q.pending) == 0 {
			s.releaseLocked(sess, q)
			released = true
			s.mu.Unlock()
			return
		}
		env := q.pending[0]
		q.pending = q.pending[1:]
		s.mu.Unlock()

		if err := s.runChat(ctx, sess, env); err != nil {
			s.teardown(sess, err)
			return
		}
	}
}

func (s *chatService) releaseLocked(sess *store.Session, q *sessionQueue) {
	q.active = false
	q.pending = nil
	if s.queues[sess] == q {
		delete(s.queues, sess)
	}
}

// generate builds the prompt and calls the responder. A panic on this path is reported
// as a generation failure.
func (s *chatService) generate(ctx context.Context, sess *store.Session, content string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			reply = ""
			err = fmt.Errorf("%w: panic: %v", store.ErrAIGeneration, r)
		}
	}()
	return s.ai.Generate(ctx, prompt.NewContextualBuilder(sess, content).Build())
}

// runChat executes one chat pipeline. Only transport failures are returned; AI failures
// become an apology and the session carries on.
func (s *chatService) runChat(ctx context.Context, sess *store.Session, env store.Envelope) error {
	payload, err := env.ChatPayload()
	if err != nil {
		s.logger.Warn(chatModule, "Malformed chat payload dropped", map[string]interface{}{"session_id": sess.ID, "error": err.Error()})
		return nil
	}
	if strings.TrimSpace(payload.Message.Content) == "" {
		s.logger.Warn(chatModule, "Empty chat message dropped", map[string]interface{}{"session_id": sess.ID})
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "chat.pipeline", trace.WithAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("user.id", sess.UserID),
	))
	defer span.End()

	now := s.now()
	userMsg := normalizeUserMessage(payload.Message, now)
	sess.MergeContext(payload.Context)
	sess.AppendMessage(userMsg)
	sess.Touch(now)
	s.archiveMessage(ctx, sess, userMsg)

	sess.SetTyping(true)
	// The flag must never outlive this cycle, whatever happens below.
	defer sess.SetTyping(false)

	if err := s.emit(sess, store.NewTypingEnvelope(sess.UserID, true, s.now())); err != nil {
		return err
	}

	reply, aiErr := s.generate(ctx, sess, userMsg.Content)

	var sendErr error
	if aiErr != nil {
		s.aiFailures.Add(ctx, 1)
		span.SetStatus(codes.Error, "ai generation failed")
		span.RecordError(aiErr)
		s.logger.Warn(chatModule, "AI generation failed, sending apology", map[string]interface{}{"session_id": sess.ID, "error": aiErr.Error()})
		sendErr = s.emit(sess, store.NewMessageEnvelope(s.assistantMessage(apologyText, store.MessageText), s.now()))
	} else {
		reply = strings.TrimSpace(reply)
		assistant := s.assistantMessage(reply, prompt.Classify(reply))
		sess.AppendMessage(assistant)
		s.archiveMessage(ctx, sess, assistant)
		sendErr = s.emit(sess, store.NewMessageEnvelope(assistant, s.now()))
	}

	sess.SetTyping(false)
	if sendErr != nil {
		return sendErr
	}
	if err := s.emit(sess, store.NewTypingEnvelope(sess.UserID, false, s.now())); err != nil {
		return err
	}

	if aiErr != nil {
		return nil
	}
	return s.emit(sess, store.NewSuggestionsEnvelope(suggestion.Suggest(sess.Context().Mood()), s.now()))
}

func (s *chatService) assistantMessage(content string, kind store.MessageType) store.Message {
	now := s.now()
	return store.Message{
		ID:        store.NewMessageID(now),
		Content:   content,
		Sender:    store.SenderAssistant,
		Timestamp: now.UnixMilli(),
		Type:      kind,
		Metadata:  map[string]interface{}{},
	}
}

// normalizeUserMessage fills what a client may leave out and pins the sender.
func normalizeUserMessage(msg store.Message, now time.Time) store.Message {
	if msg.ID == "" {
		msg.ID = store.NewMessageID(now)
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = now.UnixMilli()
	}
	if msg.Type == "" {
		msg.Type = store.MessageText
	}
	msg.Sender = store.SenderUser
	return msg
}

// emit sends env unless the session has been removed meanwhile, in which case the
// output is discarded.
func (s *chatService) emit(sess *store.Session, env store.Envelope) error {
	if !s.sessions.Contains(sess) {
		s.logger.Debug(chatModule, "Discarding output for removed session", map[string]interface{}{"session_id": sess.ID, "type": env.Type.String()})
		return nil
	}
	if err := s.transport.Send(sess.ID, env); err != nil {
		if errors.Is(err, store.ErrTransportSend) {
			return err
		}
		return fmt.Errorf("%w: %v", store.ErrTransportSend, err)
	}
	return nil
}

func (s *chatService) archiveMessage(ctx context.Context, sess *store.Session, msg store.Message) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Archive(ctx, sess, msg); err != nil {
		s.logger.Warn(chatModule, "Failed to archive message", map[string]interface{}{"session_id": sess.ID, "message_id": msg.ID, "error": err.Error()})
	}
}

// teardown drops a session whose transport failed. Pending chat messages are discarded.
func (s *chatService) teardown(sess *store.Session, cause error) {
	s.mu.Lock()
	if q, ok := s.queues[sess]; ok {
		q.closed = true
		q.pending = nil
		delete(s.queues, sess)
	}
	s.mu.Unlock()

	if !s.sessions.RemoveSession(sess) {
		return
	}
	s.logger.Error(chatModule, "Transport failed, session removed", map[string]interface{}{"session_id": sess.ID, "user_id": sess.UserID, "error": cause.Error()})
	publishSessionEvent(s.publisher, s.logger, events.ChatSessionClosed, sess, events.CloseReasonTransport, s.now())
	if s.closer != nil {
		s.closer.CloseSession(sess.ID)
	}
}

func publishSessionEvent(pub events.Publisher, log logger.ILogger, eventType string, sess *store.Session, reason string, at time.Time) {
	if pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pub.Publish(ctx, events.SessionEvent(eventType, sess.ID, sess.UserID, reason, at)); err != nil {
		log.Warn(chatModule, "Failed to publish session event", map[string]interface{}{"type": eventType, "session_id": sess.ID, "error": err.Error()})
	}
}
