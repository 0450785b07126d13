// Package session keeps the client's sign-in token in the OS keyring, one
// entry per server.
package session

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Service is the keyring service name entries are stored under.
const Service = "taskcal"

var (
	// ErrNotFound is returned when no token is stored for the server.
	ErrNotFound = errors.New("no session token in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring cannot be used.
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// Tokens stores session tokens keyed by server URL.
type Tokens struct {
	server string
}

func New(serverURL string) *Tokens {
	return &Tokens{server: serverURL}
}

// Load returns the stored token.
func (t *Tokens) Load() (string, error) {
	token, err := keyring.Get(Service, t.server)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return token, nil
}

func (t *Tokens) Save(token string) error {
	if token == "" {
		return errors.New("session token cannot be empty")
	}
	if err := keyring.Set(Service, t.server, token); err != nil {
		return fmt.Errorf("store session token: %w", err)
	}
	return nil
}

// Clear removes the token. A missing token is not an error.
func (t *Tokens) Clear() error {
	err := keyring.Delete(Service, t.server)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete session token: %w", err)
	}
	return nil
}
