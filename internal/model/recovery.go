package model

import "time"

// RecoveryCode is the server copy of a password-reset code, stored hashed.
type RecoveryCode struct {
	ID        uint   `gorm:"primaryKey"`
	Email     string `gorm:"index;not null"`
	CodeHash  string `gorm:"not null"`
	ExpiresAt time.Time
	Attempts  int
	UsedAt    *time.Time
	CreatedAt time.Time
}

// MagicLink is a single-use passwordless sign-in token.
type MagicLink struct {
	ID        uint   `gorm:"primaryKey"`
	Token     string `gorm:"uniqueIndex;not null"`
	Email     string `gorm:"index;not null"`
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// TelegramLink binds a chat to an account once the user sends the code to the bot.
type TelegramLink struct {
	Code      string `gorm:"primaryKey;type:varchar(16)"`
	UserID    string `gorm:"index;type:varchar(36);not null"`
	ExpiresAt time.Time
	CreatedAt time.Time
}
