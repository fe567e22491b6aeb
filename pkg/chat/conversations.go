package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"ChatKit/models"
	"ChatKit/pkg/store"

	"github.com/google/uuid"
)

const maxConversationIDLen = 64

// CreateConversationInput is the body of an explicit create.
type CreateConversationInput struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
}

// UpdateConversationInput is the body of an update. A nil Title only bumps
// UpdatedAt.
type UpdateConversationInput struct {
	Title *string `json:"title,omitempty"`
}

func (p *Pipeline) CreateConversation(ctx context.Context, in CreateConversationInput) (*models.Conversation, error) {
	const op = OpCreateConversation
	if p.mode == ModeStateless {
		return nil, p.fail(ctx, op, ErrNotFound)
	}
	identity, err := p.resolveIdentity(ctx)
	if err != nil {
		return nil, p.fail(ctx, op, err)
	}
	id := strings.TrimSpace(in.ID)
	if err := validateConversationID(id); err != nil {
		return nil, p.fail(ctx, op, err)
	}
	title := capTitle(in.Title)
	if title == "" {
		title = defaultTitle
	}
	ev := ConversationEvent{Identity: identity, ConversationID: id, Title: title}
	if err := p.dispatch.authorize(op, func() Decision { return p.hooks.BeforeCreateConversation(ctx, ev) }); err != nil {
		return nil, p.fail(ctx, op, err)
	}
	if id == "" {
		id = uuid.NewString()
	}

	now := p.now()
	conv := &models.Conversation{ID: id, UserID: identity, Title: title, CreatedAt: now, UpdatedAt: now}
	if err := p.store.CreateConversation(ctx, conv); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, p.fail(ctx, op, fmt.Errorf("%w: id %q is taken", ErrConflict, id))
		}
		return nil, p.fail(ctx, op, fmt.Errorf("%w: %v", ErrPersistence, err))
	}
	p.dispatch.after(ctx, op, func() error { return p.hooks.AfterCreateConversation(ctx, *conv) })
	return conv, nil
}

// ListConversations returns conversations newest first, filtered to the
// caller when an identity is resolved. Stateless mode always returns none.
func (p *Pipeline) ListConversations(ctx context.Context, limit int) ([]models.Conversation, error) {
	const op = OpListConversations
	if p.mode == ModeStateless {
		return []models.Conversation{}, nil
	}
	identity, err := p.resolveIdentity(ctx)
	if err != nil {
		return nil, p.fail(ctx, op, err)
	}
	ev := ConversationEvent{Identity: identity}
	if err := p.dispatch.authorize(op, func() Decision { return p.hooks.BeforeListConversations(ctx, ev) }); err != nil {
		return nil, p.fail(ctx, op, err)
	}
	convs, err := p.store.ListConversations(ctx, store.ListOptions{
		UserID: identity,
		Scoped: identity != "",
		Limit:  limit,
	})
	if err != nil {
		return nil, p.fail(ctx, op, fmt.Errorf("%w: %v", ErrPersistence, err))
	}
	return convs, nil
}

// GetConversation returns the conversation with its messages in ascending
// order.
func (p *Pipeline) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	const op = OpGetConversation
	conv, _, err := p.loadOwned(ctx, op, id, func(ev ConversationEvent) Decision {
		return p.hooks.BeforeGetConversation(ctx, ev)
	})
	if err != nil {
		return nil, err
	}
	msgs, err := p.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, p.fail(ctx, op, fmt.Errorf("%w: %v", ErrPersistence, err))
	}
	conv.Messages = msgs
	return conv, nil
}

func (p *Pipeline) UpdateConversation(ctx context.Context, id string, in UpdateConversationInput) (*models.Conversation, error) {
	const op = OpUpdateConversation
	var title string
	if in.Title != nil {
		title = capTitle(*in.Title)
		if title == "" {
			return nil, p.fail(ctx, op, fmt.Errorf("%w: title must not be blank", ErrValidation))
		}
	}
	conv, _, err := p.loadOwned(ctx, op, id, func(ev ConversationEvent) Decision {
		ev.Title = title
		return p.hooks.BeforeUpdateConversation(ctx, ev)
	})
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		conv, err = p.store.UpdateConversationTitle(ctx, conv.ID, title)
	} else if err = p.store.TouchConversation(ctx, conv.ID, p.now()); err == nil {
		conv, err = p.store.GetConversation(ctx, conv.ID)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, p.fail(ctx, op, ErrNotFound)
	}
	if err != nil {
		return nil, p.fail(ctx, op, fmt.Errorf("%w: %v", ErrPersistence, err))
	}
	updated := *conv
	p.dispatch.after(ctx, op, func() error { return p.hooks.AfterUpdateConversation(ctx, updated) })
	return conv, nil
}

// DeleteConversation removes the conversation and all of its messages.
func (p *Pipeline) DeleteConversation(ctx context.Context, id string) error {
	const op = OpDeleteConversation
	conv, identity, err := p.loadOwned(ctx, op, id, func(ev ConversationEvent) Decision {
		return p.hooks.BeforeDeleteConversation(ctx, ev)
	})
	if err != nil {
		return err
	}
	if err := p.store.DeleteConversation(ctx, conv.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return p.fail(ctx, op, ErrNotFound)
		}
		return p.fail(ctx, op, fmt.Errorf("%w: %v", ErrPersistence, err))
	}
	ev := ConversationEvent{Identity: identity, ConversationID: conv.ID, Title: conv.Title}
	p.dispatch.after(ctx, op, func() error { return p.hooks.AfterDeleteConversation(ctx, ev) })
	return nil
}

// loadOwned runs the shared prologue of operations on an existing
// conversation: mode check, identity, before hook, load, ownership.
func (p *Pipeline) loadOwned(ctx context.Context, op Operation, id string, before func(ConversationEvent) Decision) (*models.Conversation, string, error) {
	if p.mode == ModeStateless {
		return nil, "", p.fail(ctx, op, ErrNotFound)
	}
	identity, err := p.resolveIdentity(ctx)
	if err != nil {
		return nil, "", p.fail(ctx, op, err)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, "", p.fail(ctx, op, fmt.Errorf("%w: conversation id is required", ErrValidation))
	}
	ev := ConversationEvent{Identity: identity, ConversationID: id}
	if err := p.dispatch.authorize(op, func() Decision { return before(ev) }); err != nil {
		return nil, "", p.fail(ctx, op, err)
	}
	conv, err := p.store.GetConversation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", p.fail(ctx, op, ErrNotFound)
	}
	if err != nil {
		return nil, "", p.fail(ctx, op, fmt.Errorf("%w: %v", ErrPersistence, err))
	}
	if err := checkOwnership(identity, conv.UserID); err != nil {
		return nil, "", p.fail(ctx, op, err)
	}
	return conv, identity, nil
}

func validateConversationID(id string) error {
	if len(id) > maxConversationIDLen {
		return fmt.Errorf("%w: conversation id longer than %d bytes", ErrValidation, maxConversationIDLen)
	}
	return nil
}

// capTitle collapses whitespace and truncates to maxTitleRunes.
func capTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxTitleRunes {
		return s
	}
	return string([]rune(s)[:maxTitleRunes])
}

// titleFor derives a title from the first user message with text.
func titleFor(ui []UIMessage) string {
	for _, m := range ui {
		if m.Role != models.RoleUser {
			continue
		}
		if t := capTitle(ExtractText(m)); t != "" {
			return t
		}
	}
	return defaultTitle
}
