package handler

import (
	"context"
	"errors"
	"time"

	"gardener-chat-be/internal/pkg/logger"
	"gardener-chat-be/internal/pkg/serverutils"
	"gardener-chat-be/internal/service"
	internalWS "gardener-chat-be/internal/websocket"
	"gardener-chat-be/pkg/auth"
	"gardener-chat-be/pkg/events"
	"gardener-chat-be/pkg/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const handlerModule = "ChatHandler"

// ChatSessions is the session table as seen by the HTTP surface.
type ChatSessions interface {
	GetOrCreate(userID, sessionID string) (*store.Session, bool, error)
	Find(sessionID string) (*store.Session, bool)
	FindByUser(userID string) (*store.Session, bool)
	RemoveSession(sess *store.Session) bool
	Count() int
}

// TranscriptReader serves archived history for sessions no longer held in memory.
type TranscriptReader interface {
	Transcript(ctx context.Context, userID, sessionID string, limit int) ([]store.Message, error)
}

type ChatHandler struct {
	sessions   ChatSessions
	archive    TranscriptReader
	chat       service.IChatService
	hub        *internalWS.Hub
	verifier   auth.AuthVerifier
	publisher  events.Publisher
	logger     logger.ILogger
	sendBuffer int
}

func NewChatHandler(
	sessions ChatSessions,
	chat service.IChatService,
	hub *internalWS.Hub,
	verifier auth.AuthVerifier,
	pub events.Publisher,
	log logger.ILogger,
	sendBuffer int,
) *ChatHandler {
	return &ChatHandler{
		sessions:   sessions,
		chat:       chat,
		hub:        hub,
		verifier:   verifier,
		publisher:  pub,
		logger:     log,
		sendBuffer: sendBuffer,
	}
}

// ServeWs authenticates the handshake, binds or resumes a session and upgrades.
func (h *ChatHandler) ServeWs(c *fiber.Ctx) error {
	userID, err := h.verifier.Verify(serverutils.BearerToken(c))
	if err != nil {
		h.logger.Warn(handlerModule, "Invalid Token in WS Handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	sessionID := c.Query("sessionId")
	if sessionID == "" {
		sessionID = store.NewSessionID(time.Now())
	}

	sess, created, err := h.sessions.GetOrCreate(userID, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionOwnership) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Session belongs to another user"})
		}
		return err
	}
	if created {
		h.publish(events.ChatSessionCreated, sess, "")
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info(handlerModule, "Starting WebSocket session", map[string]interface{}{"session_id": sess.ID, "user_id": sess.UserID, "resumed": !created})
		greet := func() {
			if err := h.chat.Greet(sess); err != nil {
				h.logger.Warn(handlerModule, "Failed to queue welcome message", map[string]interface{}{"session_id": sess.ID, "error": err.Error()})
			}
		}

		internalWS.ServeWs(h.hub, conn, sess, h.chat, h.logger, h.sendBuffer, greet, func(graceful bool) {
			// An abrupt drop keeps the session for resumption until its heartbeat expires.
			if graceful && h.sessions.RemoveSession(sess) {
				h.publish(events.ChatSessionClosed, sess, events.CloseReasonDisconnect)
			}
		})
		h.logger.Info(handlerModule, "WebSocket session ended", map[string]interface{}{"session_id": sess.ID})
	})(c)
}

// GetStatus reports the caller's id and the number of live sessions.
func (h *ChatHandler) GetStatus(c *fiber.Ctx) error {
	userID, ok := serverutils.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	return c.JSON(fiber.Map{
		"userId":             userID,
		"activeSessionCount": h.sessions.Count(),
		"timestamp":          time.Now().UnixMilli(),
	})
}

// WithArchive enables the archived history fallback.
func (h *ChatHandler) WithArchive(archive TranscriptReader) *ChatHandler {
	h.archive = archive
	return h
}

// GetHistory returns the history of the caller's session, or an empty list.
func (h *ChatHandler) GetHistory(c *fiber.Ctx) error {
	userID, ok := serverutils.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var (
		sess  *store.Session
		found bool
	)
	if sessionID := c.Query("sessionId"); sessionID != "" {
		sess, found = h.sessions.Find(sessionID)
		if found && sess.UserID != userID {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Session belongs to another user"})
		}
	} else {
		sess, found = h.sessions.FindByUser(userID)
	}

	history := []store.Message{}
	switch {
	case found:
		history = sess.History()
	case h.archive != nil && c.Query("sessionId") != "":
		archived, err := h.archive.Transcript(c.UserContext(), userID, c.Query("sessionId"), store.MaxHistory)
		if err != nil {
			h.logger.Warn(handlerModule, "Failed to load archived history", map[string]interface{}{"session_id": c.Query("sessionId"), "error": err.Error()})
		} else if len(archived) > 0 {
			history = archived
		}
	}
	return c.JSON(fiber.Map{"history": history})
}

func (h *ChatHandler) publish(eventType string, sess *store.Session, reason string) {
	if h.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.publisher.Publish(ctx, events.SessionEvent(eventType, sess.ID, sess.UserID, reason, time.Now())); err != nil {
		h.logger.Warn(handlerModule, "Failed to publish session event", map[string]interface{}{"type": eventType, "error": err.Error()})
	}
}

// RegisterRoutes registers the chat routes.
func (h *ChatHandler) RegisterRoutes(router fiber.Router) {
	chat := router.Group("/chat")
	chat.Get("/ws", h.ServeWs)

	authed := serverutils.JwtMiddleware(h.verifier)
	chat.Get("/status", authed, h.GetStatus)
	chat.Get("/history", authed, h.GetHistory)
}
