package app

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
)

// stubGateway scripts Query results for controller tests. The optional
// started/release channels let a test hold a query in flight.
type stubGateway struct {
	answer  string
	err     error
	started chan struct{}
	release chan struct{}

	mu      sync.Mutex
	queries []string
}

func (g *stubGateway) Query(ctx context.Context, text string) (string, error) {
	g.mu.Lock()
	g.queries = append(g.queries, text)
	g.mu.Unlock()
	if g.started != nil {
		g.started <- struct{}{}
	}
	if g.release != nil {
		<-g.release
	}
	return g.answer, g.err
}

func (g *stubGateway) Ingest(ctx context.Context, filename string, file io.Reader) (IngestResult, error) {
	return IngestResult{}, nil
}

func (g *stubGateway) ListDocuments(ctx context.Context) (DocumentList, error) {
	return DocumentList{}, nil
}

func (g *stubGateway) DeleteDocument(ctx context.Context, filename, uploadedAt string) error {
	return nil
}

func (g *stubGateway) FetchDocument(ctx context.Context, filename string, w io.Writer) error {
	return nil
}

func newTestController(t *testing.T, gw Gateway) (*ChatController, *HistoryStore) {
	t.Helper()
	store := testHistoryStore(t)
	store.Load()
	return NewChatController(gw, store, NewLogger(io.Discard)), store
}

func TestSendMessageSuccessMaterializesConversation(t *testing.T) {
	gw := &stubGateway{answer: "It is a summary."}
	ctrl, store := newTestController(t, gw)
	ctrl.StartNew()

	if err := ctrl.SendMessage(context.Background(), "What is this document about?"); err != nil {
		t.Fatalf("send: %v", err)
	}

	transcript := ctrl.Transcript()
	if len(transcript) != 3 {
		t.Fatalf("expected 3 messages (greeting, question, answer), got %d", len(transcript))
	}
	if transcript[0].Content != Greeting {
		t.Fatalf("expected seeded greeting first, got %q", transcript[0].Content)
	}
	if transcript[1].Role != RoleUser || transcript[2].Role != RoleAssistant {
		t.Fatalf("unexpected roles: %s, %s", transcript[1].Role, transcript[2].Role)
	}
	if transcript[2].Content != "It is a summary." {
		t.Fatalf("unexpected answer: %q", transcript[2].Content)
	}

	convs := store.Conversations()
	if len(convs) != 1 {
		t.Fatalf("expected 1 persisted conversation, got %d", len(convs))
	}
	if convs[0].Title != "What is this document about?" {
		t.Fatalf("unexpected title: %q", convs[0].Title)
	}
	if convs[0].ID == "" || ctrl.ActiveID() != convs[0].ID {
		t.Fatalf("conversation not materialized with active id")
	}
}

func TestSendMessageFailureAppendsFallbackAndStillPersists(t *testing.T) {
	gw := &stubGateway{err: &RemoteError{Message: "dial tcp: connection refused"}}
	ctrl, store := newTestController(t, gw)

	if err := ctrl.SendMessage(context.Background(), "anyone there?"); err != nil {
		t.Fatalf("send reported error to caller: %v", err)
	}

	transcript := ctrl.Transcript()
	if len(transcript) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(transcript))
	}
	if transcript[2].Content != FallbackReply {
		t.Fatalf("expected fallback reply, got %q", transcript[2].Content)
	}
	if len(store.Conversations()) != 1 {
		t.Fatalf("failed turn must still materialize the conversation")
	}
}

func TestSendMessageRejectsEmptyAndWhitespace(t *testing.T) {
	ctrl, store := newTestController(t, &stubGateway{answer: "unused"})

	for _, text := range []string{"", "   ", "\n\t"} {
		err := ctrl.SendMessage(context.Background(), text)
		if !IsValidation(err) {
			t.Fatalf("expected validation error for %q, got %v", text, err)
		}
	}
	if len(ctrl.Transcript()) != 1 {
		t.Fatalf("rejected sends must not touch the transcript")
	}
	if len(store.Conversations()) != 0 {
		t.Fatalf("rejected sends must not persist anything")
	}
}

func TestSendMessageSingleFlight(t *testing.T) {
	gw := &stubGateway{answer: "eventually", started: make(chan struct{}, 1), release: make(chan struct{})}
	ctrl, _ := newTestController(t, gw)

	done := make(chan error, 1)
	go func() { done <- ctrl.SendMessage(context.Background(), "first") }()
	<-gw.started

	if err := ctrl.SendMessage(context.Background(), "second"); !IsValidation(err) {
		t.Fatalf("expected second send to be rejected, got %v", err)
	}

	close(gw.release)
	if err := <-done; err != nil {
		t.Fatalf("first send: %v", err)
	}

	transcript := ctrl.Transcript()
	if len(transcript) != 3 {
		t.Fatalf("expected exactly one turn, got %d messages", len(transcript))
	}
	if transcript[1].Content != "first" {
		t.Fatalf("unexpected user message %q", transcript[1].Content)
	}
}

func TestTranscriptLengthNonDecreasing(t *testing.T) {
	gw := &stubGateway{answer: "ok"}
	ctrl, _ := newTestController(t, gw)

	prev := len(ctrl.Transcript())
	for i := 0; i < 3; i++ {
		if err := ctrl.SendMessage(context.Background(), "question"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		cur := len(ctrl.Transcript())
		if cur < prev+2 {
			t.Fatalf("expected at least two appended messages per turn, %d -> %d", prev, cur)
		}
		prev = cur
	}
}

func TestMessageIDsStrictlyIncreasing(t *testing.T) {
	gw := &stubGateway{answer: "ok"}
	ctrl, _ := newTestController(t, gw)

	for i := 0; i < 3; i++ {
		if err := ctrl.SendMessage(context.Background(), "question"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	transcript := ctrl.Transcript()
	for i := 1; i < len(transcript); i++ {
		if transcript[i].ID <= transcript[i-1].ID {
			t.Fatalf("ids not strictly increasing at %d: %d then %d", i, transcript[i-1].ID, transcript[i].ID)
		}
	}
}

func TestTitleTruncationBoundary(t *testing.T) {
	exact := strings.Repeat("a", 30)
	long := strings.Repeat("b", 31)

	cases := []struct {
		in   string
		want string
	}{
		{exact, exact},
		{long, long[:30] + "..."},
		{"short", "short"},
	}
	for _, tc := range cases {
		msgs := append(NewTranscript(), Message{ID: 2, Role: RoleUser, Content: tc.in})
		if got := DeriveTitle(msgs); got != tc.want {
			t.Fatalf("DeriveTitle(%d chars) = %q, want %q", len(tc.in), got, tc.want)
		}
	}
	if got := DeriveTitle(NewTranscript()); got != "New Chat" {
		t.Fatalf("expected default title, got %q", got)
	}
}

func TestSelectUnknownIDFallsBackToNewChat(t *testing.T) {
	gw := &stubGateway{answer: "ok"}
	ctrl, _ := newTestController(t, gw)
	if err := ctrl.SendMessage(context.Background(), "persist me"); err != nil {
		t.Fatal(err)
	}

	ctrl.Select("no-such-id")
	if ctrl.ActiveID() != "" {
		t.Fatalf("expected unsaved state after selecting unknown id")
	}
	transcript := ctrl.Transcript()
	if len(transcript) != 1 || transcript[0].Content != Greeting {
		t.Fatalf("expected seeded transcript, got %+v", transcript)
	}
}

func TestSelectLoadsSavedTranscript(t *testing.T) {
	gw := &stubGateway{answer: "the answer"}
	ctrl, store := newTestController(t, gw)
	if err := ctrl.SendMessage(context.Background(), "question one"); err != nil {
		t.Fatal(err)
	}
	savedID := ctrl.ActiveID()

	ctrl.StartNew()
	if len(ctrl.Transcript()) != 1 {
		t.Fatalf("expected fresh transcript after StartNew")
	}

	ctrl.Select(savedID)
	if ctrl.ActiveID() != savedID {
		t.Fatalf("expected active id %q, got %q", savedID, ctrl.ActiveID())
	}
	conv, _ := store.Get(savedID)
	if len(ctrl.Transcript()) != len(conv.Messages) {
		t.Fatalf("selected transcript does not match stored copy")
	}
}

func TestDeleteActiveConversationResetsToNewChat(t *testing.T) {
	gw := &stubGateway{answer: "ok"}
	ctrl, store := newTestController(t, gw)
	if err := ctrl.SendMessage(context.Background(), "to be deleted"); err != nil {
		t.Fatal(err)
	}
	id := ctrl.ActiveID()

	ctrl.DeleteConversation(id)

	if len(store.Conversations()) != 0 {
		t.Fatalf("expected conversation removed from store")
	}
	if ctrl.ActiveID() != "" {
		t.Fatalf("expected unsaved state after deleting active conversation")
	}
	transcript := ctrl.Transcript()
	if len(transcript) != 1 || transcript[0].Content != Greeting {
		t.Fatalf("expected single seeded greeting, got %+v", transcript)
	}
}

func TestDeleteInactiveConversationKeepsActiveView(t *testing.T) {
	gw := &stubGateway{answer: "ok"}
	ctrl, store := newTestController(t, gw)
	if err := ctrl.SendMessage(context.Background(), "first chat"); err != nil {
		t.Fatal(err)
	}
	firstID := ctrl.ActiveID()

	ctrl.StartNew()
	if err := ctrl.SendMessage(context.Background(), "second chat"); err != nil {
		t.Fatal(err)
	}
	secondID := ctrl.ActiveID()

	ctrl.DeleteConversation(firstID)
	if ctrl.ActiveID() != secondID {
		t.Fatalf("deleting another conversation must not reset the active one")
	}
	if _, ok := store.Get(firstID); ok {
		t.Fatalf("expected first conversation gone")
	}
}

func TestStaleReplyAfterSwitchIsDiscarded(t *testing.T) {
	gw := &stubGateway{answer: "late answer", started: make(chan struct{}, 1), release: make(chan struct{})}
	ctrl, store := newTestController(t, gw)

	// Materialize a conversation with an immediate turn first.
	quick := &stubGateway{answer: "quick"}
	ctrl.Gateway = quick
	if err := ctrl.SendMessage(context.Background(), "seed turn"); err != nil {
		t.Fatal(err)
	}
	originID := ctrl.ActiveID()
	ctrl.Gateway = gw

	done := make(chan error, 1)
	go func() { done <- ctrl.SendMessage(context.Background(), "slow question") }()
	<-gw.started

	// The user moves on before the reply lands.
	ctrl.StartNew()
	close(gw.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	// Active view untouched.
	if len(ctrl.Transcript()) != 1 {
		t.Fatalf("stale reply must not reach the new active transcript")
	}

	// Originating conversation unchanged; the abandoned turn is not written.
	conv, ok := store.Get(originID)
	if !ok {
		t.Fatalf("originating conversation missing")
	}
	if len(conv.Messages) != 3 {
		t.Fatalf("expected stored transcript unchanged at 3 messages, got %d", len(conv.Messages))
	}
	for _, msg := range conv.Messages {
		if msg.Content == "slow question" || msg.Content == "late answer" {
			t.Fatalf("stale turn leaked into the store: %+v", msg)
		}
	}
}

func TestStaleReplyAfterReselectDoesNotEraseNewerTurn(t *testing.T) {
	slow := &stubGateway{answer: "late answer", started: make(chan struct{}, 1), release: make(chan struct{})}
	quick := &stubGateway{answer: "quick"}
	ctrl, store := newTestController(t, quick)

	if err := ctrl.SendMessage(context.Background(), "seed turn"); err != nil {
		t.Fatal(err)
	}
	originID := ctrl.ActiveID()

	ctrl.Gateway = slow
	done := make(chan error, 1)
	go func() { done <- ctrl.SendMessage(context.Background(), "slow question") }()
	<-slow.started

	// Re-selecting the same conversation reloads it from the store and
	// clears the in-flight guard; a second turn then completes before the
	// first request returns.
	ctrl.Select(originID)
	ctrl.Gateway = quick
	if err := ctrl.SendMessage(context.Background(), "second question"); err != nil {
		t.Fatal(err)
	}

	close(slow.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	conv, ok := store.Get(originID)
	if !ok {
		t.Fatalf("conversation missing")
	}
	last := conv.Messages[len(conv.Messages)-1]
	prev := conv.Messages[len(conv.Messages)-2]
	if prev.Content != "second question" || last.Content != "quick" {
		t.Fatalf("late completion erased the newer turn; stored tail %q / %q", prev.Content, last.Content)
	}
	for _, msg := range conv.Messages {
		if msg.Content == "slow question" || msg.Content == "late answer" {
			t.Fatalf("stale turn leaked into the store: %+v", msg)
		}
	}
	if len(ctrl.Transcript()) != len(conv.Messages) {
		t.Fatalf("active transcript diverged from store: %d vs %d", len(ctrl.Transcript()), len(conv.Messages))
	}
}

func TestStaleReplyForAbandonedUnsavedConversationIsDropped(t *testing.T) {
	gw := &stubGateway{answer: "late", started: make(chan struct{}, 1), release: make(chan struct{})}
	ctrl, store := newTestController(t, gw)

	done := make(chan error, 1)
	go func() { done <- ctrl.SendMessage(context.Background(), "never saved") }()
	<-gw.started

	ctrl.StartNew()
	close(gw.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if len(store.Conversations()) != 0 {
		t.Fatalf("abandoned unsaved conversation must not be persisted")
	}
	if len(ctrl.Transcript()) != 1 {
		t.Fatalf("active transcript must stay seeded")
	}
}

func TestStaleReplyForDeletedConversationIsDropped(t *testing.T) {
	gw := &stubGateway{answer: "late", started: make(chan struct{}, 1), release: make(chan struct{})}
	ctrl, store := newTestController(t, gw)

	quick := &stubGateway{answer: "quick"}
	ctrl.Gateway = quick
	if err := ctrl.SendMessage(context.Background(), "seed turn"); err != nil {
		t.Fatal(err)
	}
	originID := ctrl.ActiveID()
	ctrl.Gateway = gw

	done := make(chan error, 1)
	go func() { done <- ctrl.SendMessage(context.Background(), "slow question") }()
	<-gw.started

	ctrl.DeleteConversation(originID)
	close(gw.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if len(store.Conversations()) != 0 {
		t.Fatalf("deleted conversation must not be resurrected by a late reply")
	}
}
