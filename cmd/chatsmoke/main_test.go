package main

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"ChatKit/controllers"
	"ChatKit/pkg/chat"
	"ChatKit/pkg/llm"
	"ChatKit/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func newServer(t *testing.T) (*client, *chat.Pipeline, store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s, err := store.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	p, err := chat.New(chat.Config{
		Mode:   chat.ModePersistent,
		Store:  s,
		Engine: llm.Local{ChunkSize: 8},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	r := gin.New()
	r.POST("/chat", controllers.Chat(p, zerolog.Nop()))
	r.GET("/chat/conversations/:id", controllers.GetConversation(p, zerolog.Nop()))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &client{base: srv.URL, http: srv.Client()}, p, s
}

func TestContinueKeepsStoredHistory(t *testing.T) {
	c, p, s := newServer(t)
	ctx := context.Background()

	if err := c.converse(chat.TurnRequest{ConversationID: "smoke"}, []string{"Hi"}, 5*time.Second, io.Discard, zerolog.Nop()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	// a second run continues the conversation from the server's copy
	history, err := c.history(ctx, "smoke")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d messages, want 2", len(history))
	}
	req := chat.TurnRequest{ConversationID: "smoke", Messages: history}
	if err := c.converse(req, []string{"Again"}, 5*time.Second, io.Discard, zerolog.Nop()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	msgs, err := s.ListMessages(ctx, "smoke")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("stored %d messages, want 4", len(msgs))
	}
	if got := chat.ExtractText(chat.FromStored(msgs[0])); got != "Hi" {
		t.Fatalf("first message %q, want Hi", got)
	}
}

func TestHistoryOfUnknownConversationIsEmpty(t *testing.T) {
	c, _, _ := newServer(t)
	history, err := c.history(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("history = %v", history)
	}
}

