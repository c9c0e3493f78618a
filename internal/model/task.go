package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Task represents a single obligation owned by one user.
type Task struct {
	ID           string `gorm:"primaryKey;size:36"`
	UserID       string `gorm:"index;size:36;not null"`
	Title        string `gorm:"not null"`
	Description  string
	DueDate      time.Time `gorm:"index"`
	Priority     Priority  `gorm:"size:16"`
	Category     Category  `gorm:"size:16"`
	Completed    bool      `gorm:"default:false;index"`
	ReminderSent bool      `gorm:"default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BeforeCreate assigns the opaque id when the caller did not.
func (t *Task) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// ShortID is the leading part of the id used in chat surfaces.
func (t Task) ShortID() string {
	if len(t.ID) <= 8 {
		return t.ID
	}
	return t.ID[:8]
}
