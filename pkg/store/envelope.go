package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnvelopeType is the tag of an Envelope payload.
type EnvelopeType int

const (
	EnvelopeUnknown EnvelopeType = iota
	EnvelopeMessage
	EnvelopeTyping
	EnvelopeSuggestions
	EnvelopeHeartbeat
)

var envelopeTypeNames = map[EnvelopeType]string{
	EnvelopeMessage:     "message",
	EnvelopeTyping:      "typing",
	EnvelopeSuggestions: "suggestions",
	EnvelopeHeartbeat:   "heartbeat",
}

// ParseEnvelopeType maps a wire name to its tag. Unrecognized names yield EnvelopeUnknown.
func ParseEnvelopeType(name string) EnvelopeType {
	for t, n := range envelopeTypeNames {
		if n == name {
			return t
		}
	}
	return EnvelopeUnknown
}

func (t EnvelopeType) String() string {
	if n, ok := envelopeTypeNames[t]; ok {
		return n
	}
	return "unknown"
}

func (t EnvelopeType) MarshalJSON() ([]byte, error) {
	if t == EnvelopeUnknown {
		return nil, fmt.Errorf("marshal envelope: %w", ErrUnknownEnvelopeType)
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON never fails on an unrecognized name so the dispatcher can log and drop it.
func (t *EnvelopeType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	*t = ParseEnvelopeType(name)
	return nil
}

// Envelope is the unit exchanged with the client over the transport.
type Envelope struct {
	Type      EnvelopeType    `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
	MessageID string          `json:"messageId,omitempty"`
}

// ChatPayload is the inbound payload of a message envelope.
type ChatPayload struct {
	Message Message              `json:"message"`
	Context *ConversationContext `json:"context,omitempty"`
}

type TypingPayload struct {
	IsTyping bool   `json:"isTyping"`
	UserID   string `json:"userId"`
}

type SuggestionsPayload struct {
	Suggestions []string `json:"suggestions"`
}

type HeartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// DecodeEnvelope parses a raw frame. The type tag is not checked here.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// ChatPayload decodes the payload of a message envelope.
func (e Envelope) ChatPayload() (ChatPayload, error) {
	var p ChatPayload
	if len(e.Payload) == 0 {
		return p, fmt.Errorf("message envelope without payload")
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("decode chat payload: %w", err)
	}
	return p, nil
}

func newEnvelope(t EnvelopeType, payload interface{}, now time.Time) Envelope {
	// Payload types here are plain structs, Marshal cannot fail on them.
	raw, _ := json.Marshal(payload)
	return Envelope{
		Type:      t,
		Payload:   raw,
		Timestamp: now.UnixMilli(),
		MessageID: NewMessageID(now),
	}
}

// NewMessageEnvelope wraps an outbound assistant message.
func NewMessageEnvelope(msg Message, now time.Time) Envelope {
	env := newEnvelope(EnvelopeMessage, msg, now)
	env.MessageID = msg.ID
	return env
}

func NewTypingEnvelope(userID string, typing bool, now time.Time) Envelope {
	return newEnvelope(EnvelopeTyping, TypingPayload{IsTyping: typing, UserID: userID}, now)
}

func NewSuggestionsEnvelope(suggestions []string, now time.Time) Envelope {
	return newEnvelope(EnvelopeSuggestions, SuggestionsPayload{Suggestions: suggestions}, now)
}

func NewHeartbeatEnvelope(now time.Time) Envelope {
	return newEnvelope(EnvelopeHeartbeat, HeartbeatPayload{Timestamp: now.UnixMilli()}, now)
}

// NewSessionID returns an id of the form session_<millis>_<8 hex>.
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), shortID())
}

// NewMessageID returns an id of the form msg_<millis>_<8 hex>.
func NewMessageID(now time.Time) string {
	return fmt.Sprintf("msg_%d_%s", now.UnixMilli(), shortID())
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
