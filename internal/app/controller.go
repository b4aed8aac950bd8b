package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChatController owns the active conversation: the in-memory transcript, the
// unsaved/saved distinction, and the one-outstanding-query guard. All state
// lives here rather than in package globals so tests can drive it directly.
//
// A conversation is unsaved (activeID == "") until its first completed turn
// materializes it into the HistoryStore.
type ChatController struct {
	Gateway Gateway
	Store   *HistoryStore
	Logger  *Logger

	mu         sync.Mutex
	transcript []Message
	activeID   string
	inFlight   bool

	// generation identifies the active subject; it bumps on every StartNew,
	// Select and active-conversation delete so late replies can be detected.
	generation uint64
}

func NewChatController(gw Gateway, store *HistoryStore, logger *Logger) *ChatController {
	c := &ChatController{Gateway: gw, Store: store, Logger: logger}
	c.transcript = NewTranscript()
	return c
}

// StartNew resets the active view to a fresh seeded transcript. The store is
// not touched; nothing persists until the first user message completes.
func (c *ChatController) StartNew() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *ChatController) resetLocked() {
	c.transcript = NewTranscript()
	c.activeID = ""
	c.inFlight = false
	c.generation++
}

// Select loads a saved conversation into the active view. An unknown id falls
// back to a new conversation; that is the reconciliation path after the
// conversation was deleted elsewhere.
func (c *ChatController) Select(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.Store.Get(id)
	if !ok {
		c.resetLocked()
		return
	}
	c.transcript = cloneMessages(conv.Messages)
	c.activeID = conv.ID
	c.inFlight = false
	c.generation++
}

// DeleteConversation removes a conversation from the store. Deleting the
// active conversation is equivalent to StartNew.
func (c *ChatController) DeleteConversation(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Store.Remove(id)
	if id == c.activeID {
		c.resetLocked()
	}
}

// SendMessage appends the user's message, queries the remote service, and
// appends either the answer or the fallback apology; the transcript always
// gains a reply for every accepted question. Empty text and a second call
// while a reply is outstanding are rejected with a ValidationError.
//
// The call blocks until the turn completes; the TUI runs it inside a tea.Cmd.
func (c *ChatController) SendMessage(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)

	c.mu.Lock()
	if trimmed == "" {
		c.mu.Unlock()
		return &ValidationError{Reason: "message is empty"}
	}
	if c.inFlight {
		c.mu.Unlock()
		return &ValidationError{Reason: "a reply is already in flight"}
	}

	userMsg := Message{ID: NextMessageID(c.transcript), Role: RoleUser, Content: trimmed}
	c.transcript = append(c.transcript, userMsg)
	c.inFlight = true
	gen := c.generation
	targetID := c.activeID
	snapshot := cloneMessages(c.transcript)
	c.mu.Unlock()

	answer, err := c.Gateway.Query(ctx, trimmed)
	content := answer
	if err != nil {
		c.Logger.Error("query failed", map[string]interface{}{"error": err.Error()})
		content = FallbackReply
	}
	reply := Message{ID: NextMessageID(snapshot), Role: RoleAssistant, Content: content}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		// The user moved on while the request was in flight, so this reply's
		// target is no longer the active subject. Applying it anywhere now
		// could clobber turns completed in the meantime (the store may have
		// advanced past our snapshot), so the completion is discarded.
		c.Logger.Info("discarding stale reply", map[string]interface{}{"conversation": targetID})
		return nil
	}

	c.inFlight = false
	c.transcript = append(c.transcript, reply)

	if c.activeID == "" {
		conv := Conversation{
			ID:        uuid.NewString(),
			Title:     DeriveTitle(c.transcript),
			CreatedAt: time.Now(),
			Messages:  cloneMessages(c.transcript),
		}
		c.Store.Upsert(conv)
		c.activeID = conv.ID
		return nil
	}

	conv, ok := c.Store.Get(c.activeID)
	if !ok {
		// Deleted out from under us; rematerialize rather than lose the turn.
		conv = Conversation{ID: c.activeID, Title: DeriveTitle(c.transcript), CreatedAt: time.Now()}
	}
	conv.Messages = cloneMessages(c.transcript)
	c.Store.Upsert(conv)
	return nil
}

// Transcript returns a copy of the active transcript.
func (c *ChatController) Transcript() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneMessages(c.transcript)
}

// ActiveID returns the active conversation id, empty while unsaved.
func (c *ChatController) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// AwaitingReply reports whether a query is outstanding for the active
// conversation.
func (c *ChatController) AwaitingReply() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}
