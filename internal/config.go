package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Identity providers accepted in IDENTITY_PROVIDER.
const (
	ProviderMemory   = "memory"
	ProviderPostgres = "postgres"
	ProviderGoTrue   = "gotrue"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	// Identity backend: "memory", "postgres" or "gotrue"
	IdentityProvider string
	IdentityTimeout  time.Duration

	// PostgreSQL backend
	DatabaseUrl string

	// Hosted identity service backend
	GoTrueURL           string
	GoTrueAnonKey       string
	GoTrueServiceKey    string // Optional, used for profile writes
	GoTrueProfilesTable string

	// Where the browser goes after a successful submission
	SuccessRedirect string

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		IdentityProvider: strings.ToLower(getEnv("IDENTITY_PROVIDER", ProviderMemory)),
		IdentityTimeout:  getEnvDuration("IDENTITY_REQUEST_TIMEOUT", 15*time.Second),

		DatabaseUrl: os.Getenv("DATABASE_URL"),

		GoTrueURL:           getEnv("GOTRUE_URL", ""),
		GoTrueAnonKey:       getEnv("GOTRUE_ANON_KEY", ""),
		GoTrueServiceKey:    getEnv("GOTRUE_SERVICE_KEY", ""),
		GoTrueProfilesTable: getEnv("GOTRUE_PROFILES_TABLE", "profiles"),

		SuccessRedirect: getEnv("SUCCESS_REDIRECT", "/welcome"),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected identity provider has what it needs.
func (c *Config) Validate() error {
	switch c.IdentityProvider {
	case ProviderMemory:
	case ProviderPostgres:
		if c.DatabaseUrl == "" {
			return fmt.Errorf("DATABASE_URL is required when IDENTITY_PROVIDER is 'postgres'")
		}
	case ProviderGoTrue:
		if c.GoTrueURL == "" {
			return fmt.Errorf("GOTRUE_URL is required when IDENTITY_PROVIDER is 'gotrue'")
		}
		if c.GoTrueAnonKey == "" {
			return fmt.Errorf("GOTRUE_ANON_KEY is required when IDENTITY_PROVIDER is 'gotrue'")
		}
	default:
		return fmt.Errorf("IDENTITY_PROVIDER must be one of 'memory', 'postgres' or 'gotrue', got: %s", c.IdentityProvider)
	}

	if !strings.HasPrefix(c.SuccessRedirect, "/") || strings.HasPrefix(c.SuccessRedirect, "//") {
		return fmt.Errorf("SUCCESS_REDIRECT must be a local path, got: %s", c.SuccessRedirect)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
