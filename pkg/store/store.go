package store

import (
	"context"
	"errors"
	"time"

	"ChatKit/models"
)

var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStaleVersion is returned when a conversation changed since it was read.
	ErrStaleVersion = errors.New("stale conversation version")
	// ErrDuplicate is returned when creating a conversation whose id is taken.
	ErrDuplicate = errors.New("duplicate record")
)

// ListOptions filters conversation listings.
type ListOptions struct {
	// UserID restricts results to one owner when Scoped is set.
	UserID string
	Scoped bool
	Limit  int
}

// Store is the document-store adapter the chat pipeline runs on.
type Store interface {
	// Connection management
	Ping(ctx context.Context) error
	Close() error

	// Conversation operations
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, opts ListOptions) ([]models.Conversation, error)
	UpdateConversationTitle(ctx context.Context, id, title string) (*models.Conversation, error)
	// TouchConversation bumps UpdatedAt and the optimistic version.
	TouchConversation(ctx context.Context, id string, at time.Time) error
	// BumpVersion increments the version only if it still equals expected.
	BumpVersion(ctx context.Context, id string, expected int64) error
	DeleteConversation(ctx context.Context, id string) error

	// Message operations, ordered by CreatedAt then ID ascending.
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	DeleteMessages(ctx context.Context, conversationID string, ids []string) error

	// Transaction runs fn atomically; any error rolls back every write made
	// through tx.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
