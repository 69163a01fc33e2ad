package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation is a two-party dialog between marketplace users.
// The realtime core reuses an existing conversation for a pair instead of
// creating duplicates; FindOrCreateConversation in storage enforces that.
type Conversation struct {
	// ID is the unique identifier for the conversation (UUID).
	ID string `gorm:"primaryKey" json:"id"`
	// UserAID / UserBID are the two participants.
	UserAID string `gorm:"index:idx_conv_pair" json:"user_a_id"`
	UserBID string `gorm:"index:idx_conv_pair" json:"user_b_id"`
	// LastActivity is bumped on every message so conversation lists sort by recency.
	LastActivity time.Time `json:"last_activity"`
	// UnreadA / UnreadB are per-participant unread counters.
	UnreadA int `json:"unread_a"`
	UnreadB int `json:"unread_b"`

	CreatedAt time.Time `json:"created_at"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// HasParticipant reports whether the given user belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.UserAID == userID || c.UserBID == userID
}

// Participants returns both participant ids.
func (c *Conversation) Participants() []string {
	return []string{c.UserAID, c.UserBID}
}

// PeerOf returns the other participant, or "" if userID is not a participant.
func (c *Conversation) PeerOf(userID string) string {
	switch userID {
	case c.UserAID:
		return c.UserBID
	case c.UserBID:
		return c.UserAID
	}
	return ""
}

// Block records that blocker no longer accepts messages from blocked.
// The hot path reads a Redis flag; this table is the durable record behind it.
type Block struct {
	BlockerID string    `gorm:"primaryKey" json:"blocker_id"`
	BlockedID string    `gorm:"primaryKey" json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`
}
