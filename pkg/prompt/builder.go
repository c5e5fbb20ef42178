package prompt

import (
	"strings"

	"gardener-chat-be/pkg/store"
)

const (
	// MaxMemories is how many memory excerpts are quoted in the system instruction.
	MaxMemories = 3
	// MaxTranscript is how many of the newest history entries go into the transcript.
	MaxTranscript = 10
)

// ContextualBuilder assembles the prompt for one assistant turn.
type ContextualBuilder struct {
	context store.ConversationContext
	history []store.Message
	query   string
}

// NewContextualBuilder snapshots the session so the prompt is stable while it is built.
func NewContextualBuilder(session *store.Session, query string) *ContextualBuilder {
	return &ContextualBuilder{
		context: session.Context(),
		history: session.RecentHistory(MaxTranscript),
		query:   query,
	}
}

// Build concatenates the system instruction, the transcript and the new user message.
func (b *ContextualBuilder) Build() string {
	var prompt strings.Builder

	prompt.WriteString(b.SystemInstruction())
	prompt.WriteString("\n\nConversation History:\n")
	prompt.WriteString(b.Transcript())
	prompt.WriteString("\n\nUser: ")
	prompt.WriteString(b.query)
	prompt.WriteString("\n\nAssistant:")

	return prompt.String()
}

// SystemInstruction describes the persona plus what is known of the user's state.
func (b *ContextualBuilder) SystemInstruction() string {
	var prompt strings.Builder

	b.writePersona(&prompt)
	b.writeMood(&prompt)
	b.writeMemories(&prompt)
	b.writeGuidelines(&prompt)

	return prompt.String()
}

// Transcript renders the history one line per message, labeled by role.
func (b *ContextualBuilder) Transcript() string {
	var transcript strings.Builder
	for _, msg := range b.history {
		transcript.WriteString(roleLabel(msg.Sender))
		transcript.WriteString(": ")
		transcript.WriteString(msg.Content)
		transcript.WriteString("\n")
	}
	return transcript.String()
}

func (b *ContextualBuilder) writePersona(prompt *strings.Builder) {
	prompt.WriteString("You are the Gardener's Assistant, a gentle and wise AI companion helping users reflect on their memories and emotions. ")
	prompt.WriteString("Your role is to provide thoughtful, empathetic responses that encourage self-reflection and emotional growth. ")
}

func (b *ContextualBuilder) writeMood(prompt *strings.Builder) {
	if b.context.CurrentMood == nil || *b.context.CurrentMood == "" {
		return
	}
	prompt.WriteString("The user's current mood seems to be: ")
	prompt.WriteString(*b.context.CurrentMood)
	prompt.WriteString(". ")
}

func (b *ContextualBuilder) writeMemories(prompt *strings.Builder) {
	memories := b.context.RecentMemories
	if len(memories) == 0 {
		return
	}
	if len(memories) > MaxMemories {
		memories = memories[:MaxMemories]
	}
	prompt.WriteString("Recent memories context: ")
	for _, memory := range memories {
		prompt.WriteString("\"")
		prompt.WriteString(memory.UserText)
		prompt.WriteString("\" ")
	}
}

func (b *ContextualBuilder) writeGuidelines(prompt *strings.Builder) {
	prompt.WriteString("\nRespond in a warm, supportive tone. Ask thoughtful questions. Offer insights about patterns or themes. ")
	prompt.WriteString("Keep responses concise but meaningful (2-3 sentences typically). ")
	prompt.WriteString("Use gentle language and avoid being overly clinical or formal.")
}

func roleLabel(sender store.Sender) string {
	if sender == store.SenderUser {
		return "User"
	}
	return "Assistant"
}
