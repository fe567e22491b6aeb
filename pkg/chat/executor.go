package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ChatKit/models"
	"ChatKit/pkg/store"

	"github.com/oklog/ulid/v2"
)

// applyPlan writes a reconciliation plan in one transaction: it creates the
// conversation when isNew, otherwise checks and increments its version, then
// deletes the stale messages and inserts the new user message. Nothing is
// visible unless every step succeeds. It returns the resulting history.
func applyPlan(ctx context.Context, s store.Store, conv *models.Conversation, isNew bool, plan Plan, now time.Time) ([]models.Message, error) {
	var history []models.Message
	err := s.Transaction(ctx, func(tx store.Store) error {
		if isNew {
			if err := tx.CreateConversation(ctx, conv); err != nil {
				return err
			}
		} else if err := tx.BumpVersion(ctx, conv.ID, conv.Version); err != nil {
			return err
		}

		if len(plan.ToDelete) > 0 {
			ids := make([]string, 0, len(plan.ToDelete))
			for _, m := range plan.ToDelete {
				ids = append(ids, m.ID)
			}
			if err := tx.DeleteMessages(ctx, conv.ID, ids); err != nil {
				return fmt.Errorf("delete messages: %w", err)
			}
		}

		if plan.ToInsertUser != nil {
			msg := &models.Message{
				ID:             ulid.Make().String(),
				ConversationID: conv.ID,
				Role:           models.RoleUser,
				Content:        Serialize(*plan.ToInsertUser),
				CreatedAt:      now,
			}
			if err := tx.CreateMessage(ctx, msg); err != nil {
				return fmt.Errorf("insert user message: %w", err)
			}
		}

		var err error
		history, err = tx.ListMessages(ctx, conv.ID)
		return err
	})
	switch {
	case err == nil:
		return history, nil
	case errors.Is(err, store.ErrStaleVersion), errors.Is(err, store.ErrDuplicate):
		return nil, fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
}
