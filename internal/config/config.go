package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultAdminPassword is used when ADMIN_PASS is unset.
const DefaultAdminPassword = "passwort"

type Config struct {
	Env           string
	Port          int
	AdminPassword string
	AllowedOrigin string
	SessionTTL    time.Duration
	Classifier    ClassifierConfig
}

type ClassifierConfig struct {
	APIKey  string
	BaseURL string // optional, for OpenAI-compatible gateways
	Model   string
	Timeout time.Duration
}

// Load reads configuration from the environment. In development it first
// loads envFile (or .env when envFile is empty). An explicitly named envFile
// must exist.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	} else if getEnv("APP_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Env:           getEnv("APP_ENV", "development"),
		Port:          getEnvInt("PORT", 8000),
		AdminPassword: getEnv("ADMIN_PASS", DefaultAdminPassword),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "*"),
		SessionTTL:    getEnvDuration("SESSION_TTL", 8*time.Hour),
		Classifier: ClassifierConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout: getEnvDuration("CLASSIFIER_TIMEOUT", 10*time.Second),
		},
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.AdminPassword == "" {
		return errors.New("ADMIN_PASS must not be empty")
	}
	if c.AllowedOrigin == "" {
		return errors.New("ALLOWED_ORIGIN must not be empty")
	}
	if c.SessionTTL < time.Second {
		return fmt.Errorf("SESSION_TTL %s is below the 1s minimum", c.SessionTTL)
	}
	if c.Classifier.Timeout <= 0 {
		return errors.New("CLASSIFIER_TIMEOUT must be positive")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c Config) UsesDefaultPassword() bool {
	return c.AdminPassword == DefaultAdminPassword
}

func (c ClassifierConfig) Enabled() bool {
	return c.APIKey != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
