package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"gardener-chat-be/pkg/auth"
	"gardener-chat-be/pkg/store"

	"github.com/fasthttp/websocket"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

// chatprobe connects to a running server, sends one message and a heartbeat, and
// prints every envelope it gets back until the suggestions for the reply arrive.
func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", "localhost:8080", "server host:port")
	user := flag.String("user", "probe-user", "user id to sign a token for when -token is empty")
	token := flag.String("token", "", "bearer token (signed with JWT_SECRET when empty)")
	sessionID := flag.String("session", "", "session id to resume")
	text := flag.String("message", "Hello", "message to send")
	mood := flag.String("mood", "", "current mood to attach")
	wait := flag.Duration("wait", 45*time.Second, "how long to wait for the reply")
	flag.Parse()

	if *token == "" {
		signed, err := auth.IssueToken(os.Getenv("JWT_SECRET"), *user, nil)
		if err != nil {
			color.Red("Failed to sign token: %v", err)
			os.Exit(1)
		}
		*token = signed
	}

	q := url.Values{"token": {*token}}
	if *sessionID != "" {
		q.Set("sessionId", *sessionID)
	}
	target := url.URL{Scheme: "ws", Host: *addr, Path: "/api/chat/ws", RawQuery: q.Encode()}

	color.Cyan("Connecting to %s", target.Host+target.Path)
	conn, resp, err := websocket.DefaultDialer.Dial(target.String(), nil)
	if err != nil {
		if resp != nil {
			color.Red("Handshake failed: %s", resp.Status)
		} else {
			color.Red("Dial failed: %v", err)
		}
		os.Exit(1)
	}
	defer conn.Close()

	now := time.Now()
	payload := store.ChatPayload{Message: store.Message{Content: *text, Sender: store.SenderUser, Timestamp: now.UnixMilli(), Type: store.MessageText}}
	if *mood != "" {
		payload.Context = &store.ConversationContext{CurrentMood: mood}
	}
	raw, _ := json.Marshal(payload)
	send(conn, store.Envelope{Type: store.EnvelopeMessage, Payload: raw, Timestamp: now.UnixMilli()})
	send(conn, store.NewHeartbeatEnvelope(now))

	conn.SetReadDeadline(time.Now().Add(*wait))
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			color.Red("Read: %v", err)
			os.Exit(1)
		}
		env, err := store.DecodeEnvelope(frame)
		if err != nil {
			color.Red("Bad frame: %s", frame)
			continue
		}
		printEnvelope(env)
		if env.Type == store.EnvelopeSuggestions {
			break
		}
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	color.Cyan("Done")
}

func send(conn *websocket.Conn, env store.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		color.Red("Encode: %v", err)
		os.Exit(1)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		color.Red("Write: %v", err)
		os.Exit(1)
	}
	color.White("-> %s", env.Type)
}

func printEnvelope(env store.Envelope) {
	switch env.Type {
	case store.EnvelopeMessage:
		var msg store.Message
		_ = json.Unmarshal(env.Payload, &msg)
		color.Green("<- message [%s] %s", msg.Type, msg.Content)
	case store.EnvelopeTyping:
		var p store.TypingPayload
		_ = json.Unmarshal(env.Payload, &p)
		color.Yellow("<- typing %v", p.IsTyping)
	case store.EnvelopeSuggestions:
		var p store.SuggestionsPayload
		_ = json.Unmarshal(env.Payload, &p)
		color.Magenta("<- suggestions")
		for _, s := range p.Suggestions {
			fmt.Printf("   - %s\n", s)
		}
	case store.EnvelopeHeartbeat:
		color.Blue("<- heartbeat")
	default:
		color.Red("<- unknown %s", env.Payload)
	}
}
