package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestConversationCRUD(t *testing.T) {
	s := newTestStore(t)
	p := newTestPipeline(t, Config{Mode: ModePersistent, Store: s, Identity: userFromContext})
	ctx := withUser(context.Background(), "alice")

	conv, err := p.CreateConversation(ctx, CreateConversationInput{Title: "  Trip   planning "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conv.ID == "" || conv.Title != "Trip planning" || conv.UserID != "alice" {
		t.Fatalf("unexpected conversation %+v", conv)
	}

	if _, err := p.CreateConversation(ctx, CreateConversationInput{ID: conv.ID}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate id, got %v", err)
	}

	runTurn(t, p, ctx, TurnRequest{ConversationID: conv.ID, Messages: []UIMessage{textMsg("user", "Hi")}})

	got, err := p.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "user" || got.Messages[1].Role != "assistant" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}

	title := "Renamed"
	updated, err := p.UpdateConversation(ctx, conv.ID, UpdateConversationInput{Title: &title})
	if err != nil || updated.Title != "Renamed" {
		t.Fatalf("update: %+v, %v", updated, err)
	}
	blank := "   "
	if _, err := p.UpdateConversation(ctx, conv.ID, UpdateConversationInput{Title: &blank}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank title, got %v", err)
	}
	touched, err := p.UpdateConversation(ctx, conv.ID, UpdateConversationInput{})
	if err != nil || touched.Title != "Renamed" {
		t.Fatalf("touch: %+v, %v", touched, err)
	}

	if err := p.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := p.GetConversation(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if msgs, _ := s.ListMessages(context.Background(), conv.ID); len(msgs) != 0 {
		t.Fatalf("messages survived delete: %d", len(msgs))
	}
	if err := p.DeleteConversation(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestConversationOwnership(t *testing.T) {
	s := newTestStore(t)
	p := newTestPipeline(t, Config{Mode: ModePersistent, Store: s, Identity: userFromContext})
	alice := withUser(context.Background(), "alice")
	bob := withUser(context.Background(), "bob")

	conv, err := p.CreateConversation(alice, CreateConversationInput{Title: "private"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := p.CreateConversation(bob, CreateConversationInput{Title: "bob's"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := p.GetConversation(bob, conv.ID); !errors.Is(err, ErrAuthorizationDenied) {
		t.Fatalf("get: expected denial, got %v", err)
	}
	title := "hijacked"
	if _, err := p.UpdateConversation(bob, conv.ID, UpdateConversationInput{Title: &title}); !errors.Is(err, ErrAuthorizationDenied) {
		t.Fatalf("update: expected denial, got %v", err)
	}
	if err := p.DeleteConversation(bob, conv.ID); !errors.Is(err, ErrAuthorizationDenied) {
		t.Fatalf("delete: expected denial, got %v", err)
	}

	list, err := p.ListConversations(bob, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Title != "bob's" {
		t.Fatalf("bob sees %+v", list)
	}

	if _, err := p.ListConversations(context.Background(), 0); !errors.Is(err, ErrAuthorizationDenied) {
		t.Fatalf("anonymous list: expected denial, got %v", err)
	}
}

func TestConversationsUnscopedWithoutIdentity(t *testing.T) {
	s := newTestStore(t)
	p := newTestPipeline(t, Config{Mode: ModePersistent, Store: s})
	ctx := context.Background()

	for _, title := range []string{"one", "two"} {
		if _, err := p.CreateConversation(ctx, CreateConversationInput{Title: title}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	list, err := p.ListConversations(withUser(ctx, "anyone"), 0)
	if err != nil || len(list) != 2 {
		t.Fatalf("list: %d, %v", len(list), err)
	}
}

func TestConversationsStateless(t *testing.T) {
	p := newTestPipeline(t, Config{Mode: ModeStateless})
	ctx := context.Background()

	list, err := p.ListConversations(ctx, 0)
	if err != nil || list == nil || len(list) != 0 {
		t.Fatalf("list: %v, %v", list, err)
	}
	if _, err := p.CreateConversation(ctx, CreateConversationInput{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("create: expected ErrNotFound, got %v", err)
	}
	if _, err := p.GetConversation(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
	if err := p.DeleteConversation(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete: expected ErrNotFound, got %v", err)
	}
}

func TestConversationHookDenialSkipsStorage(t *testing.T) {
	s := newTestStore(t)
	hooks := &recordingHooks{deny: map[Operation]bool{OpDeleteConversation: true}}
	p := newTestPipeline(t, Config{Mode: ModePersistent, Store: s, Hooks: hooks})
	ctx := context.Background()

	conv, err := p.CreateConversation(ctx, CreateConversationInput{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conv.Title != defaultTitle {
		t.Fatalf("title = %q", conv.Title)
	}
	if err := p.DeleteConversation(ctx, conv.ID); !errors.Is(err, ErrAuthorizationDenied) {
		t.Fatalf("expected denial, got %v", err)
	}
	if _, err := s.GetConversation(ctx, conv.ID); err != nil {
		t.Fatalf("denied delete removed the conversation: %v", err)
	}
}

func TestTitleFor(t *testing.T) {
	long := strings.Repeat("é", maxTitleRunes+20)
	tests := []struct {
		name string
		ui   []UIMessage
		want string
	}{
		{"first user text", []UIMessage{textMsg("assistant", "hello"), textMsg("user", "  plan   a trip ")}, "plan a trip"},
		{"no text", []UIMessage{{Role: "user", Parts: []Part{{Type: PartFile, URL: "u"}}}}, defaultTitle},
		{"capped", []UIMessage{textMsg("user", long)}, strings.Repeat("é", maxTitleRunes)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := titleFor(tc.ui); got != tc.want {
				t.Fatalf("titleFor = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCreateConversationRejectsLongID(t *testing.T) {
	p := newTestPipeline(t, Config{Mode: ModePersistent, Store: newTestStore(t)})
	_, err := p.CreateConversation(context.Background(), CreateConversationInput{ID: strings.Repeat("x", maxConversationIDLen+1)})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
