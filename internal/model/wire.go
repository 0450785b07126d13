package model

import "time"

// Identity is the account summary returned by the auth endpoints.
type Identity struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Purpose string `json:"purpose,omitempty"`
}

// AuthSession is returned after any successful sign-in.
type AuthSession struct {
	Token string   `json:"token"`
	User  Identity `json:"user"`
}

// Credentials is the body of sign-up and sign-in requests.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// RecoveryRequest asks the server to issue and deliver a reset code.
type RecoveryRequest struct {
	Email string `json:"email"`
}

// RecoveryChallenge answers a RecoveryRequest. The code itself only travels
// out of band.
type RecoveryChallenge struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// RecoveryCheck submits a delivered reset code.
type RecoveryCheck struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// RecoverySession carries the short-lived token for a password change.
type RecoverySession struct {
	Token string `json:"token"`
}

type PasswordChange struct {
	Password string `json:"password"`
}

type MagicLinkRequest struct {
	Email string `json:"email"`
}

// TelegramLinkCode is sent to the bot with /link to attach a chat.
type TelegramLinkCode struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}
