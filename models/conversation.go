package models

import "time"

// Conversation is a persisted chat thread. UserID is empty when the
// deployment does not scope conversations to users; once set it never changes.
type Conversation struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	UserID    string    `gorm:"size:128;index" json:"userId,omitempty"`
	Title     string    `gorm:"size:200" json:"title"`
	Version   int64     `gorm:"not null;default:0" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `gorm:"index" json:"updatedAt"`
	Messages  []Message `gorm:"constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}
