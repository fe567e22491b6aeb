package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one persisted turn entry. Content holds the JSON encoded list of
// text and file parts. Messages are never updated in place.
type Message struct {
	ID             string         `gorm:"primaryKey;size:26" json:"id"`
	ConversationID string         `gorm:"size:64;index;not null" json:"conversationId"`
	Role           string         `gorm:"size:20;not null" json:"role"` // "user" or "assistant"
	Content        datatypes.JSON `gorm:"not null" json:"content"`
	CreatedAt      time.Time      `gorm:"index" json:"createdAt"`
}
