// Package otp holds the rules for six-digit one-time codes shared by the
// server and the client.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	// Length is the number of decimal digits in a code.
	Length = 6
	// CodeTTL is how long a freshly issued code stays valid.
	CodeTTL = 2 * time.Minute
	// Grace is tolerated past the expiry to absorb clock skew and typing time.
	Grace = 5 * time.Second
	// RequestCooldown is the minimum spacing between two code requests.
	RequestCooldown = 15 * time.Second
)

var modulus = big.NewInt(1_000_000)

// Generate returns a uniformly random code, zero padded to Length digits.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, modulus)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// WellFormed reports whether code is exactly Length ASCII digits.
func WellFormed(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// Expired reports whether a code expiring at expiresAt is no longer
// acceptable at now. The grace window is inclusive.
func Expired(expiresAt, now time.Time) bool {
	return now.After(expiresAt.Add(Grace))
}

// CooldownLeft returns how long a caller must still wait after a request
// made at last. Zero means a new request is allowed.
func CooldownLeft(last, now time.Time) time.Duration {
	if last.IsZero() {
		return 0
	}
	left := last.Add(RequestCooldown).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
