package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User stores the owner identity and notification preference.
type User struct {
	ID                   string `gorm:"primaryKey;size:36"`
	TelegramID           *int64 `gorm:"uniqueIndex"`
	FirstName            string
	LastName             string
	Username             string
	NotificationsEnabled bool `gorm:"default:false"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// PushAddress is one registered delivery address (a Telegram chat id) for a user.
type PushAddress struct {
	Address   string `gorm:"primaryKey"`
	UserID    string `gorm:"index;size:36;not null"`
	CreatedAt time.Time
}
