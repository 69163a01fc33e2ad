package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxMessageLength caps message content, measured in runes.
const MaxMessageLength = 1000

// Message is a persisted chat message. The core creates it, flips the
// delivered/read flags and soft-deletes it; it never hard-deletes history.
type Message struct {
	// ID is the unique identifier for the message (UUID).
	ID string `gorm:"primaryKey" json:"id"`
	// ConversationID links the message to its conversation.
	ConversationID string `gorm:"type:uuid;not null;index:idx_conv_msg" json:"conversation_id"`
	// SenderID / RecipientID are the two ends of the message.
	SenderID    string `gorm:"type:text;not null;index:idx_conv_msg" json:"sender_id"`
	RecipientID string `gorm:"type:text;not null" json:"recipient_id"`
	// Content is the message body, capped at MaxMessageLength runes.
	Content string `gorm:"type:text;not null" json:"content"`

	// Delivered means the recipient held an open channel at (or after) send
	// time and the message was pushed to it. Read implies Delivered.
	Delivered bool `json:"delivered"`
	Read      bool `json:"read"`
	// Deleted marks a sender-requested soft delete; the row is kept.
	Deleted bool `json:"deleted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}
