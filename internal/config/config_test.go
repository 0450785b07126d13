package config

import (
	"testing"
	"time"

	"taskcal/internal/otp"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("RECOVERY_COOLDOWN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DatabaseURL != "taskcal.db" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.RecoveryCooldown != otp.RequestCooldown {
		t.Errorf("RecoveryCooldown = %v", cfg.RecoveryCooldown)
	}
	if cfg.SessionTTL != 7*24*time.Hour {
		t.Errorf("SessionTTL = %v", cfg.SessionTTL)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load() without JWT_SECRET should fail")
	}

	t.Setenv("JWT_SECRET", "short")
	if _, err := Load(); err == nil {
		t.Fatal("Load() with a short JWT_SECRET should fail")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", time.Minute},
		{"45", 45 * time.Second},
		{"2m", 2 * time.Minute},
		{"-3s", time.Minute},
		{"soon", time.Minute},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.raw, time.Minute); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("TASKCAL_SERVER", "https://cal.example.com/")
	t.Setenv("TASKCAL_DATA_DIR", "/tmp/taskcal-test")

	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("LoadClient() error = %v", err)
	}
	if cfg.ServerURL != "https://cal.example.com" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.DataDir != "/tmp/taskcal-test" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %q", cfg.AllowedOrigins)
	}
}
