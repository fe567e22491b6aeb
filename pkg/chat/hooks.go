package chat

import (
	"context"
	"fmt"

	"ChatKit/models"
	"ChatKit/pkg/metrics"

	"github.com/rs/zerolog"
)

// Decision is the outcome of an authorization hook.
type Decision int

const (
	Allow Decision = iota
	Deny
)

// Operation names a pipeline entry point for hooks and logs.
type Operation string

const (
	OpChat               Operation = "chat"
	OpCreateConversation Operation = "create_conversation"
	OpListConversations  Operation = "list_conversations"
	OpGetConversation    Operation = "get_conversation"
	OpUpdateConversation Operation = "update_conversation"
	OpDeleteConversation Operation = "delete_conversation"
)

// ChatEvent describes a submitted turn before any I/O.
type ChatEvent struct {
	Identity       string
	ConversationID string
	// Text is the plain text of the trailing message.
	Text           string
	Messages       []UIMessage
	PageContext    string
	AvailableTools []string
}

// AfterChatEvent describes a recorded turn.
type AfterChatEvent struct {
	Identity       string
	ConversationID string
	Reply          string
	// Messages is the full stored history after the reply was saved.
	Messages []models.Message
}

// ConversationEvent describes a conversation-level operation.
type ConversationEvent struct {
	Identity       string
	ConversationID string
	Title          string
}

// Hooks lets the embedding application authorize operations and observe
// their outcome. Before* hooks run before any storage I/O. After* and
// OnError hooks are best-effort: their errors are logged and never change
// the result of the operation.
type Hooks interface {
	BeforeChat(ctx context.Context, ev ChatEvent) Decision
	BeforeCreateConversation(ctx context.Context, ev ConversationEvent) Decision
	BeforeListConversations(ctx context.Context, ev ConversationEvent) Decision
	BeforeGetConversation(ctx context.Context, ev ConversationEvent) Decision
	BeforeUpdateConversation(ctx context.Context, ev ConversationEvent) Decision
	BeforeDeleteConversation(ctx context.Context, ev ConversationEvent) Decision

	AfterChat(ctx context.Context, ev AfterChatEvent) error
	AfterCreateConversation(ctx context.Context, conv models.Conversation) error
	AfterUpdateConversation(ctx context.Context, conv models.Conversation) error
	AfterDeleteConversation(ctx context.Context, ev ConversationEvent) error

	OnError(ctx context.Context, op Operation, err error)
}

// NopHooks allows everything and observes nothing. Embed it to implement
// only some hooks.
type NopHooks struct{}

func (NopHooks) BeforeChat(context.Context, ChatEvent) Decision                       { return Allow }
func (NopHooks) BeforeCreateConversation(context.Context, ConversationEvent) Decision { return Allow }
func (NopHooks) BeforeListConversations(context.Context, ConversationEvent) Decision  { return Allow }
func (NopHooks) BeforeGetConversation(context.Context, ConversationEvent) Decision    { return Allow }
func (NopHooks) BeforeUpdateConversation(context.Context, ConversationEvent) Decision { return Allow }
func (NopHooks) BeforeDeleteConversation(context.Context, ConversationEvent) Decision { return Allow }
func (NopHooks) AfterChat(context.Context, AfterChatEvent) error                      { return nil }
func (NopHooks) AfterCreateConversation(context.Context, models.Conversation) error   { return nil }
func (NopHooks) AfterUpdateConversation(context.Context, models.Conversation) error   { return nil }
func (NopHooks) AfterDeleteConversation(context.Context, ConversationEvent) error     { return nil }
func (NopHooks) OnError(context.Context, Operation, error)                            {}

// dispatcher invokes hooks with panic isolation.
type dispatcher struct {
	hooks  Hooks
	logger zerolog.Logger
}

// authorize runs a Before* hook. A panicking hook denies.
func (d dispatcher) authorize(op Operation, fn func() Decision) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HookFailures.WithLabelValues(string(op)).Inc()
			d.logger.Error().Str("operation", string(op)).Interface("panic", r).Msg("authorization hook panicked")
			err = fmt.Errorf("%w: hook failed", ErrAuthorizationDenied)
		}
	}()
	if fn() == Deny {
		return fmt.Errorf("%w: rejected by %s hook", ErrAuthorizationDenied, op)
	}
	return nil
}

// after runs an After* hook; failures are logged and reported to OnError.
func (d dispatcher) after(ctx context.Context, op Operation, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("hook panicked: %v", r)
			}
		}()
		return fn()
	}()
	if err == nil {
		return
	}
	metrics.HookFailures.WithLabelValues(string(op)).Inc()
	d.logger.Warn().Err(err).Str("operation", string(op)).Msg("after hook failed")
	d.reportError(ctx, op, err)
}

// reportError forwards err to OnError; a panicking OnError is logged only.
func (d dispatcher) reportError(ctx context.Context, op Operation, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HookFailures.WithLabelValues(string(op)).Inc()
			d.logger.Error().Str("operation", string(op)).Interface("panic", r).Msg("error hook panicked")
		}
	}()
	d.hooks.OnError(ctx, op, err)
}
