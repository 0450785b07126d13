package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User holds the credentials of an account.
type User struct {
	ID             string `gorm:"primaryKey;type:varchar(36)"`
	Email          string `gorm:"uniqueIndex;not null"`
	PasswordHash   string `gorm:"not null"`
	TelegramChatID *int64 `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Profile is the public part of an account. Its ID equals the user ID.
type Profile struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	FullName  string    `json:"full_name"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ProfileInput struct {
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

func (in ProfileInput) Apply(p *Profile) {
	if in.FullName != nil {
		p.FullName = *in.FullName
	}
	if in.AvatarURL != nil {
		p.AvatarURL = in.AvatarURL
	}
}
