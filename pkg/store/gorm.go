package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ChatKit/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the chat tables.
func Open(driver, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if driver != "mysql" {
		// sqlite serialises writers; a single connection avoids SQLITE_BUSY
		// and keeps in-memory databases alive across calls.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	return New(db)
}

// New wraps an existing gorm handle and migrates the chat tables.
func New(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&models.Conversation{}, &models.Message{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	err := s.db.WithContext(ctx).Omit("Messages").Create(conv).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (s *GormStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *GormStore) ListConversations(ctx context.Context, opts ListOptions) ([]models.Conversation, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	q := s.db.WithContext(ctx).Model(&models.Conversation{})
	if opts.Scoped {
		q = q.Where("user_id = ?", opts.UserID)
	}
	convs := make([]models.Conversation, 0)
	if err := q.Order("updated_at DESC").Order("id DESC").Limit(limit).Find(&convs).Error; err != nil {
		return nil, err
	}
	return convs, nil
}

func (s *GormStore) UpdateConversationTitle(ctx context.Context, id, title string) (*models.Conversation, error) {
	res := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"title":      title,
			"updated_at": time.Now().UTC(),
			"version":    gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetConversation(ctx, id)
}

func (s *GormStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"updated_at": at,
			"version":    gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) BumpVersion(ctx context.Context, id string, expected int64) error {
	res := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND version = ?", id, expected).
		Updates(map[string]any{
			"updated_at": time.Now().UTC(),
			"version":    gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleVersion
	}
	return nil
}

// DeleteConversation removes the conversation and its messages in one
// transaction so the cascade does not depend on driver foreign key support.
func (s *GormStore) DeleteConversation(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs := make([]models.Message, 0)
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *GormStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

func (s *GormStore) DeleteMessages(ctx context.Context, conversationID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("conversation_id = ? AND id IN ?", conversationID, ids).
		Delete(&models.Message{}).Error
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
