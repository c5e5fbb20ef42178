package websocket

import (
	"gardener-chat-be/internal/pkg/logger"
	"gardener-chat-be/pkg/store"

	"github.com/gofiber/websocket/v2"
)

// ServeWs binds the connection to sess and blocks until the socket closes.
// onOpen runs after the client is attached to the hub. onClose runs once the read
// side is done and is told whether the peer closed normally.
func ServeWs(hub *Hub, c *websocket.Conn, sess *store.Session, dispatcher Dispatcher, log logger.ILogger, sendBuffer int, onOpen func(), onClose func(graceful bool)) {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	client := &Client{
		Hub:        hub,
		Conn:       c,
		SessionID:  sess.ID,
		UserID:     sess.UserID,
		Send:       make(chan []byte, sendBuffer),
		dispatcher: dispatcher,
		logger:     log,
	}
	hub.Register(client)

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	if onOpen != nil {
		onOpen()
	}
	graceful := client.readPump()

	if onClose != nil {
		onClose(graceful)
	}
}
