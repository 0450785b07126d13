package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"taskcal/internal/otp"
)

// Config keeps runtime settings for the API server.
type Config struct {
	HTTPAddr         string
	DatabaseURL      string
	JWTSecret        string
	PublicURL        string
	TelegramToken    string
	AgendaTime       string
	RecoveryCooldown time.Duration
	SessionTTL       time.Duration
	LogDir           string
	Debug            bool
	AllowedOrigins   []string
	SMTP             SMTPConfig
}

// SMTPConfig describes the outgoing mail relay. An empty Host disables mail.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// Load reads configuration from environment variables, after merging a .env
// file when one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:         env("HTTP_ADDR", ":8080"),
		DatabaseURL:      env("DATABASE_URL", "taskcal.db"),
		JWTSecret:        env("JWT_SECRET", ""),
		PublicURL:        strings.TrimRight(env("PUBLIC_URL", "http://localhost:8080"), "/"),
		TelegramToken:    env("TELEGRAM_TOKEN", ""),
		AgendaTime:       env("AGENDA_TIME", "08:00"),
		RecoveryCooldown: parseDuration(env("RECOVERY_COOLDOWN", ""), otp.RequestCooldown),
		SessionTTL:       parseDuration(env("SESSION_TTL", ""), 7*24*time.Hour),
		LogDir:           env("LOG_DIR", ""),
		Debug:            parseBool(env("DEBUG", "")),
		AllowedOrigins:   splitList(env("CORS_ORIGINS", "")),
		SMTP: SMTPConfig{
			Host:     env("SMTP_HOST", ""),
			Port:     env("SMTP_PORT", "587"),
			Username: env("SMTP_USERNAME", ""),
			Password: env("SMTP_PASSWORD", ""),
			From:     env("SMTP_FROM", ""),
		},
	}

	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 16 {
		return cfg, fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}

	return cfg, nil
}

// ClientConfig keeps settings for the command line client.
type ClientConfig struct {
	ServerURL string
	DataDir   string
	Debug     bool
}

// LoadClient reads client settings. DataDir defaults to the user config dir.
func LoadClient() (ClientConfig, error) {
	_ = godotenv.Load()

	cfg := ClientConfig{
		ServerURL: strings.TrimRight(env("TASKCAL_SERVER", "http://localhost:8080"), "/"),
		DataDir:   env("TASKCAL_DATA_DIR", ""),
		Debug:     parseBool(env("TASKCAL_DEBUG", "")),
	}
	if cfg.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return cfg, fmt.Errorf("resolve config dir: %w", err)
		}
		cfg.DataDir = filepath.Join(base, "taskcal")
	}
	return cfg, nil
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// parseDuration accepts Go durations ("45s") or bare seconds ("45").
func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
