package store

import (
	"sync"
	"time"
)

// MaxHistory is the number of messages a session keeps. Older entries are evicted first.
const MaxHistory = 20

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// MessageType classifies a chat message for the client UI.
type MessageType string

const (
	MessageText       MessageType = "text"
	MessageInsight    MessageType = "insight"
	MessageSuggestion MessageType = "suggestion"
)

// Message is a single entry of a conversation.
type Message struct {
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	Sender    Sender                 `json:"sender"`
	Timestamp int64                  `json:"timestamp"` // epoch millis
	Type      MessageType            `json:"type"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Memory is an excerpt of a journaled memory the client attaches to the conversation.
type Memory struct {
	UserText    string `json:"userText"`
	ImagePrompt string `json:"imagePrompt,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

// ConversationContext is what the client knows about the user's current state.
//
// Pointer and nil-able fields mark what an inbound payload actually carried, so a merge
// only overwrites what was sent.
type ConversationContext struct {
	CurrentMood     *string                `json:"currentMood,omitempty"`
	RecentMemories  []Memory               `json:"recentMemories,omitempty"`
	UserPreferences map[string]interface{} `json:"userPreferences,omitempty"`
}

// Mood returns the current mood or "" when unset.
func (c ConversationContext) Mood() string {
	if c.CurrentMood == nil {
		return ""
	}
	return *c.CurrentMood
}

// Session is the per-connection chat state of one user.
//
// Fields are guarded by mu; status and history readers run concurrently with the
// dispatcher, so every access goes through the methods below.
type Session struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	mu           sync.RWMutex
	context      ConversationContext
	history      []Message
	lastActivity time.Time
	isTyping     bool
}

// NewSession creates an empty session stamped with now.
func NewSession(userID, sessionID string, now time.Time) *Session {
	return &Session{
		ID:           sessionID,
		UserID:       userID,
		history:      make([]Message, 0, MaxHistory),
		lastActivity: now,
		context:      ConversationContext{UserPreferences: map[string]interface{}{}},
	}
}

// MergeContext applies the fields present in update onto the session context.
func (s *Session) MergeContext(update *ConversationContext) {
	if update == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.CurrentMood != nil {
		mood := *update.CurrentMood
		s.context.CurrentMood = &mood
	}
	if update.RecentMemories != nil {
		s.context.RecentMemories = append([]Memory(nil), update.RecentMemories...)
	}
	for k, v := range update.UserPreferences {
		s.context.UserPreferences[k] = v
	}
}

// Context returns a copy of the conversation context.
func (s *Session) Context() ConversationContext {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := ConversationContext{
		RecentMemories:  append([]Memory(nil), s.context.RecentMemories...),
		UserPreferences: make(map[string]interface{}, len(s.context.UserPreferences)),
	}
	if s.context.CurrentMood != nil {
		mood := *s.context.CurrentMood
		out.CurrentMood = &mood
	}
	for k, v := range s.context.UserPreferences {
		out.UserPreferences[k] = v
	}
	return out
}

// AppendMessage adds msg to the history, evicting the oldest entry past MaxHistory.
func (s *Session) AppendMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, msg)
	if over := len(s.history) - MaxHistory; over > 0 {
		copy(s.history, s.history[over:])
		s.history = s.history[:MaxHistory]
	}
}

// History returns a copy of the message history in chronological order.
func (s *Session) History() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// RecentHistory returns at most n of the newest messages in chronological order.
func (s *Session) RecentHistory(n int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if len(s.history) > n {
		start = len(s.history) - n
	}
	out := make([]Message, len(s.history)-start)
	copy(out, s.history[start:])
	return out
}

// Touch moves lastActivity forward. Times older than the current value are ignored.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
}

// LastActivity returns the time of the last inbound envelope.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// SetTyping sets the assistant typing flag.
func (s *Session) SetTyping(typing bool) {
	s.mu.Lock()
	s.isTyping = typing
	s.mu.Unlock()
}

// IsTyping reports whether the assistant is composing a reply.
func (s *Session) IsTyping() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isTyping
}
