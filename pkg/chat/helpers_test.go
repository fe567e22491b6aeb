package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"ChatKit/models"
	"ChatKit/pkg/llm"
	"ChatKit/pkg/store"

	"github.com/rs/zerolog"
)

// fakeEngine answers every step with reply, streamed word by word.
type fakeEngine struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []llm.Request
}

func (f *fakeEngine) Generate(ctx context.Context, req llm.Request, onText func(string)) (llm.Step, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	reply, failure := f.reply, f.err
	f.mu.Unlock()

	var sent strings.Builder
	for _, w := range strings.SplitAfter(reply, " ") {
		if w == "" {
			continue
		}
		sent.WriteString(w)
		onText(w)
	}
	if failure != nil {
		return llm.Step{Text: sent.String()}, failure
	}
	return llm.Step{Text: reply}, nil
}

func (f *fakeEngine) requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.calls...)
}

// countingStore records every call, so tests can assert that nothing
// touched storage.
type countingStore struct {
	store.Store
	mu    sync.Mutex
	calls int
}

func (c *countingStore) hit() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	c.hit()
	return c.Store.GetConversation(ctx, id)
}

func (c *countingStore) ListConversations(ctx context.Context, opts store.ListOptions) ([]models.Conversation, error) {
	c.hit()
	return c.Store.ListConversations(ctx, opts)
}

func (c *countingStore) ListMessages(ctx context.Context, id string) ([]models.Message, error) {
	c.hit()
	return c.Store.ListMessages(ctx, id)
}

func (c *countingStore) CreateMessage(ctx context.Context, m *models.Message) error {
	c.hit()
	return c.Store.CreateMessage(ctx, m)
}

func (c *countingStore) Transaction(ctx context.Context, fn func(store.Store) error) error {
	c.hit()
	return c.Store.Transaction(ctx, fn)
}

// failingStore fails message inserts, inside transactions too.
type failingStore struct {
	store.Store
	failInsert  bool
	failAfterTx bool
}

func (f *failingStore) CreateMessage(ctx context.Context, m *models.Message) error {
	if f.failInsert {
		return errors.New("disk full")
	}
	return f.Store.CreateMessage(ctx, m)
}

func (f *failingStore) Transaction(ctx context.Context, fn func(store.Store) error) error {
	return f.Store.Transaction(ctx, func(tx store.Store) error {
		return fn(&failingStore{Store: tx, failInsert: f.failInsert})
	})
}

// Assistant replies are saved outside the reconcile transaction.
func (f *failingStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	if f.failAfterTx {
		return errors.New("connection reset")
	}
	return f.Store.TouchConversation(ctx, id, at)
}

func newTestStore(t *testing.T) *store.GormStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := store.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// testClock hands out strictly increasing timestamps.
func testClock() func() time.Time {
	var mu sync.Mutex
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		at = at.Add(time.Second)
		return at
	}
}

func newTestPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	if cfg.Engine == nil {
		cfg.Engine = &fakeEngine{reply: "ok"}
	}
	if cfg.Now == nil {
		cfg.Now = testClock()
	}
	cfg.Logger = zerolog.Nop()
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func withUser(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userKey{}, id)
}

type userKey struct{}

func userFromContext(ctx context.Context) (string, error) {
	id, _ := ctx.Value(userKey{}).(string)
	return id, nil
}

func textMsg(role, text string) UIMessage {
	return UIMessage{Role: role, Parts: []Part{{Type: PartText, Text: text}}}
}

// runTurn prepares and fully drains a turn.
func runTurn(t *testing.T, p *Pipeline, ctx context.Context, req TurnRequest) (*Turn, []Event) {
	t.Helper()
	turn, err := p.StartTurn(ctx, req)
	if err != nil {
		t.Fatalf("start turn: %v", err)
	}
	var events []Event
	for ev := range turn.Start() {
		events = append(events, ev)
	}
	return turn, events
}

func streamedText(events []Event) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == EventDelta {
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}

func storedTexts(t *testing.T, s store.Store, convID string) []string {
	t.Helper()
	msgs, err := s.ListMessages(context.Background(), convID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Role+":"+ExtractText(FromStored(m)))
	}
	return out
}

// recordingHooks captures hook invocations and can veto operations.
type recordingHooks struct {
	NopHooks
	mu       sync.Mutex
	deny     map[Operation]bool
	panicOn  map[Operation]bool
	afterErr error
	errors   []error
	chats    []AfterChatEvent
}

func (h *recordingHooks) decide(op Operation) Decision {
	if h.panicOn[op] {
		panic("hook exploded")
	}
	if h.deny[op] {
		return Deny
	}
	return Allow
}

func (h *recordingHooks) BeforeChat(context.Context, ChatEvent) Decision { return h.decide(OpChat) }
func (h *recordingHooks) BeforeGetConversation(context.Context, ConversationEvent) Decision {
	return h.decide(OpGetConversation)
}
func (h *recordingHooks) BeforeDeleteConversation(context.Context, ConversationEvent) Decision {
	return h.decide(OpDeleteConversation)
}

func (h *recordingHooks) AfterChat(_ context.Context, ev AfterChatEvent) error {
	h.mu.Lock()
	h.chats = append(h.chats, ev)
	h.mu.Unlock()
	if h.panicOn["after_chat"] {
		panic("after hook exploded")
	}
	return h.afterErr
}

func (h *recordingHooks) OnError(_ context.Context, _ Operation, err error) {
	h.mu.Lock()
	h.errors = append(h.errors, err)
	h.mu.Unlock()
}

func (h *recordingHooks) reported() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errors...)
}
