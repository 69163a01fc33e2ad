package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // required for pq.StringArray
	"gorm.io/gorm"
)

// User is the minimal profile the realtime core needs. The full marketplace
// profile (listings, consultations, ratings) lives in the main application;
// here we only keep identity, interest tags and the moderation flags the
// messaging-permission policy reads.
type User struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	DisplayName string         `json:"display_name"`
	Interests   pq.StringArray `gorm:"type:text[]" json:"interests"`

	// Moderation state, managed through the admin CLI.
	IsBlocked    bool  `json:"-"`
	BlockEndTime int64 `json:"-"`
}

// BeforeCreate is a GORM hook that generates a new UUID for the user
// if the ID has not been set yet.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// BlockExpired reports whether a temporary block has run out.
func (u *User) BlockExpired(now time.Time) bool {
	return u.IsBlocked && u.BlockEndTime > 0 && now.Unix() >= u.BlockEndTime
}
