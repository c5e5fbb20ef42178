package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"gardener-chat-be/internal/pkg/logger"
	"gardener-chat-be/pkg/store"

	"github.com/redis/go-redis/v9"
)

const (
	hubModule    = "Hub"
	redisChannel = "chat_events"
)

// Hub owns the live connections, one per session id, and implements the outbound transport.
type Hub struct {
	// Registered clients map: SessionID -> Client
	clients map[string]*Client

	register   chan registration
	unregister chan *Client
	done       chan struct{}
	closeOnce  sync.Once

	// Guards clients. Channel sends to a client happen under the read lock so a
	// concurrent detach cannot close the channel underneath them.
	mu sync.RWMutex

	// Redis connection for cross-instance delivery, nil when running alone
	rdb    *redis.Client
	cancel context.CancelFunc

	logger logger.ILogger
}

// registration is acknowledged once the client is attached and can receive.
type registration struct {
	client *Client
	ack    chan struct{}
}

type clusterMessage struct {
	TargetSessionID string          `json:"target_session_id"`
	Message         json.RawMessage `json:"message"`
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan registration),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		rdb:        rdb,
		logger:     log,
	}
}

func (h *Hub) Run() {
	if h.rdb != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case reg := <-h.register:
			h.attach(reg.client)
			close(reg.ack)
		case client := <-h.unregister:
			h.detach(client)
		case <-h.done:
			return
		}
	}
}

// Close disconnects every client and stops the loop.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		if h.cancel != nil {
			h.cancel()
		}
		h.mu.Lock()
		for id, client := range h.clients {
			client.closeSend()
			delete(h.clients, id)
		}
		h.mu.Unlock()
	})
}

func (h *Hub) attach(client *Client) {
	h.mu.Lock()
	if prev, ok := h.clients[client.SessionID]; ok && prev != client {
		// A resumed session takes over; the old connection is dropped.
		prev.closeSend()
	}
	h.clients[client.SessionID] = client
	h.mu.Unlock()
	h.logger.Info(hubModule, "Client registered", map[string]interface{}{"session_id": client.SessionID, "user_id": client.UserID})
}

func (h *Hub) detach(client *Client) {
	h.mu.Lock()
	if current, ok := h.clients[client.SessionID]; ok && current == client {
		delete(h.clients, client.SessionID)
		h.logger.Info(hubModule, "Client unregistered", map[string]interface{}{"session_id": client.SessionID})
	}
	client.closeSend()
	h.mu.Unlock()
}

// Register blocks until the client is attached, so sends issued after it returns reach the socket.
func (h *Hub) Register(client *Client) {
	reg := registration{client: client, ack: make(chan struct{})}
	select {
	case h.register <- reg:
	case <-h.done:
		client.closeSend()
		return
	}
	select {
	case <-reg.ack:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// CloseSession drops the connection bound to sessionID, if it is held here.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.RLock()
	client, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if ok {
		h.Unregister(client)
	}
}

// ActiveConnections returns the number of sockets held by this instance.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send delivers env to the session's socket. A session with no socket anywhere is a
// no-op; a socket that cannot keep up is reported as store.ErrTransportSend.
func (h *Hub) Send(sessionID string, env store.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: encode envelope: %v", store.ErrTransportSend, err)
	}

	delivered, err := h.deliverLocal(sessionID, data)
	if err != nil || delivered {
		return err
	}

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{TargetSessionID: sessionID, Message: data})
		if err := h.rdb.Publish(context.Background(), redisChannel, payload).Err(); err != nil {
			return fmt.Errorf("%w: publish to %s: %v", store.ErrTransportSend, redisChannel, err)
		}
	}
	return nil
}

func (h *Hub) deliverLocal(sessionID string, data []byte) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[sessionID]
	if !ok {
		return false, nil
	}
	select {
	case client.Send <- data:
		return true, nil
	default:
		h.logger.Warn(hubModule, "Client Send buffer full", map[string]interface{}{"session_id": sessionID})
		return true, fmt.Errorf("%w: send buffer full for session %s", store.ErrTransportSend, sessionID)
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		var msg *redis.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			msg = m
		}

		var payload clusterMessage
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			h.logger.Warn(hubModule, "Redis msg parse error", map[string]interface{}{"error": err.Error()})
			continue
		}
		if _, err := h.deliverLocal(payload.TargetSessionID, payload.Message); err != nil {
			h.CloseSession(payload.TargetSessionID)
		}
	}
}
