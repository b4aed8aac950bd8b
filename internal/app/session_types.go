package app

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Greeting seeds every new transcript.
const Greeting = "Hello! Upload a PDF to get started, then ask me anything about it."

// FallbackReply is appended in place of an answer when the query fails, so a
// sent question never goes without a reply.
const FallbackReply = "Sorry, I encountered an error. Please ensure a document is uploaded and try again."

// Message is one transcript entry. IDs are integers, unique and strictly
// increasing within a transcript. Immutable once appended.
type Message struct {
	ID      int64  `json:"id"`
	Role    string `json:"role"` // user|assistant
	Content string `json:"content"`
}

// Conversation is a persisted chat thread. ID is assigned when the first user
// message materializes the conversation; until then it only lives in memory.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"timestamp"`
	Messages  []Message `json:"messages"`
}

// historyFile is the single persisted slot. Version allows forward migration;
// version 1 is the envelope form, version 0 files are a bare conversation array.
type historyFile struct {
	Version       int            `json:"version"`
	Conversations []Conversation `json:"conversations"`
}

const historyVersion = 1

// NewTranscript returns the seeded transcript every conversation starts from.
func NewTranscript() []Message {
	return []Message{{ID: 1, Role: RoleAssistant, Content: Greeting}}
}

// NextMessageID derives a fresh monotonic id from the wall clock, bumped past
// the last id so same-millisecond appends stay strictly increasing.
func NextMessageID(messages []Message) int64 {
	id := time.Now().UnixMilli()
	if n := len(messages); n > 0 && id <= messages[n-1].ID {
		id = messages[n-1].ID + 1
	}
	return id
}

// DeriveTitle builds a conversation title from the first user message:
// a 30-character prefix plus ellipsis when longer, "New Chat" when no user
// message exists yet.
func DeriveTitle(messages []Message) string {
	for _, m := range messages {
		if m.Role != RoleUser {
			continue
		}
		runes := []rune(m.Content)
		if len(runes) > 30 {
			return string(runes[:30]) + "..."
		}
		return m.Content
	}
	return "New Chat"
}

func cloneMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}
