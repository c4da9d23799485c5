package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries everything the API process reads from the environment.
type Config struct {
	Env         string
	ListenAddr  string
	BaseURL     string
	PostgresDSN string

	// Payment processor. The secret key is re-read per checkout call through
	// payment.EnvCredentials; only the webhook secret is held here because
	// signature verification needs it on every delivery.
	StripeWebhookSecret string

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string
}

// Load reads configuration from the environment. A .env file is applied
// first when present (local development), without overriding real env vars.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:                 getenv("NOVY_ENV", "development"),
		ListenAddr:          getenv("NOVY_LISTEN_ADDR", ":8080"),
		BaseURL:             getenv("NOVY_BASE_URL", "http://localhost:8080"),
		PostgresDSN:         os.Getenv("NOVY_PG_DSN"),
		StripeWebhookSecret: os.Getenv("NOVY_STRIPE_WEBHOOK_SECRET"),
		SMTPHost:            getenv("NOVY_SMTP_HOST", "localhost"),
		SMTPPort:            getenvInt("NOVY_SMTP_PORT", 587),
		SMTPUser:            os.Getenv("NOVY_SMTP_USER"),
		SMTPPass:            os.Getenv("NOVY_SMTP_PASS"),
		SMTPFrom:            getenv("NOVY_SMTP_FROM", "Novy <noreply@novy.market>"),
	}
	if cfg.PostgresDSN == "" {
		return cfg, fmt.Errorf("NOVY_PG_DSN not set")
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.Atoi(v); err == nil {
			return out
		}
	}
	return def
}
