package config

import (
	"fmt"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
)

// AppConfig holds every environment-provided setting the service needs.
// There are no in-app fallbacks for the collaborator credentials: if the
// Supabase URL or keys are missing the service refuses to boot.
type AppConfig struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseAnonKey    string `env:"SUPABASE_ANON_KEY"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_KEY"`
	SupabaseJWTSecret  string `env:"SUPABASE_JWT_SECRET"`

	StorageBucket string `env:"STORAGE_BUCKET" envDefault:"edio-uploads"`

	YouTubeClientID     string `env:"YOUTUBE_CLIENT_ID"`
	YouTubeClientSecret string `env:"YOUTUBE_CLIENT_SECRET"`
	YouTubeRedirectURL  string `env:"YOUTUBE_REDIRECT_URL"`

	// AES key/IV protecting OAuth tokens at rest.
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`
	TokenEncryptionIV  string `env:"TOKEN_ENCRYPTION_IV"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM" envDefault:"invites@edio.app"`

	// Base URL used when building invite links in outgoing mail.
	AppBaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
}

// Load reads .env (if present) and parses the process environment.
func Load() (*AppConfig, error) {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set: setup required")
	}
	if cfg.SupabaseJWTSecret == "" {
		return nil, fmt.Errorf("SUPABASE_JWT_SECRET must be set: setup required")
	}

	return cfg, nil
}
