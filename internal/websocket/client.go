package websocket

import (
	"errors"
	"sync"
	"time"

	"gardener-chat-be/internal/pkg/logger"
	"gardener-chat-be/pkg/store"
	"gardener-chat-be/pkg/worker"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Dispatcher receives every envelope read from a socket.
type Dispatcher interface {
	Submit(sessionID string, env store.Envelope) error
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	SessionID string
	UserID    string

	// Buffered channel of outbound frames.
	Send chan []byte

	dispatcher Dispatcher
	logger     logger.ILogger
	sendOnce   sync.Once
}

func (c *Client) closeSend() {
	c.sendOnce.Do(func() { close(c.Send) })
}

// readPump decodes inbound frames and hands them to the dispatcher. It reports whether
// the peer ended the conversation with a normal close frame.
func (c *Client) readPump() (graceful bool) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn(hubModule, "Unexpected close", map[string]interface{}{"session_id": c.SessionID, "error": err.Error()})
			}
			return websocket.IsCloseError(err, websocket.CloseNormalClosure)
		}
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))

		if !c.handleFrame(data) {
			return false
		}
	}
}

// handleFrame dispatches one inbound frame and reports whether reading should continue.
func (c *Client) handleFrame(data []byte) bool {
	env, err := store.DecodeEnvelope(data)
	if err != nil {
		c.logger.Warn(hubModule, "Malformed frame dropped", map[string]interface{}{"session_id": c.SessionID, "error": err.Error()})
		return true
	}
	err = c.dispatcher.Submit(c.SessionID, env)
	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrSessionNotFound):
		return false
	case errors.Is(err, worker.ErrPoolClosed):
		c.logger.Info(hubModule, "Dispatcher shutting down, closing read side", map[string]interface{}{"session_id": c.SessionID})
		return false
	default:
		c.logger.Error(hubModule, "Failed to submit envelope", map[string]interface{}{"session_id": c.SessionID, "error": err.Error()})
		return true
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One envelope per frame; clients parse each frame as a single JSON document.
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn(hubModule, "Write failed", map[string]interface{}{"session_id": c.SessionID, "error": err.Error()})
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
