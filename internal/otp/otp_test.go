package otp

import (
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := Generate()
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if !WellFormed(code) {
			t.Fatalf("Generate() = %q, not a %d-digit code", code, Length)
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Errorf("Generate() produced %d distinct codes out of 50", len(seen))
	}
}

func TestWellFormed(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"123456", true},
		{"000000", true},
		{"12345", false},
		{"1234567", false},
		{"12a456", false},
		{" 12345", false},
		{"", false},
		{"１２３４５６", false},
	}
	for _, tt := range tests {
		if got := WellFormed(tt.code); got != tt.want {
			t.Errorf("WellFormed(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestExpiredGraceWindow(t *testing.T) {
	issued := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	expiresAt := issued.Add(CodeTTL)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"just issued", issued, false},
		{"at expiry", expiresAt, false},
		{"expiry plus 4s", expiresAt.Add(4 * time.Second), false},
		{"expiry plus 5s", expiresAt.Add(5 * time.Second), false},
		{"expiry plus 6s", expiresAt.Add(6 * time.Second), true},
		{"an hour later", expiresAt.Add(time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Expired(expiresAt, tt.at); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCooldownLeft(t *testing.T) {
	last := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	if got := CooldownLeft(time.Time{}, last); got != 0 {
		t.Errorf("CooldownLeft(zero) = %v, want 0", got)
	}
	if got := CooldownLeft(last, last.Add(5*time.Second)); got != 10*time.Second {
		t.Errorf("CooldownLeft(+5s) = %v, want 10s", got)
	}
	if got := CooldownLeft(last, last.Add(RequestCooldown)); got != 0 {
		t.Errorf("CooldownLeft(+15s) = %v, want 0", got)
	}
	if got := CooldownLeft(last, last.Add(time.Minute)); got != 0 {
		t.Errorf("CooldownLeft(+1m) = %v, want 0", got)
	}
}
