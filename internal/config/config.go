// Package config provides configuration management for the diagnostics service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	Diagnostics DiagnosticsConfig
	Reasoning   ReasoningConfig
	Alerting    AlertingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port              string
	DiagnoseRateLimit int // per-IP requests/min on diagnose routes
}

// AuthConfig holds service-token configuration
type AuthConfig struct {
	JWTSecret   string
	JWTTokenTTL time.Duration
}

// DiagnosticsConfig tunes the diagnosis orchestrator and session cache
type DiagnosticsConfig struct {
	SessionCapacity  int           // max cached sessions before LRU eviction
	MaxBatchSize     int           // max devices per batch diagnosis
	ReasoningTimeout time.Duration // per-diagnosis reasoning deadline
	TimeRangeHours   int           // default deep-mode lookback

	// z-score severity cutoffs
	ZThresholdMedium   float64
	ZThresholdHigh     float64
	ZThresholdCritical float64
}

// ReasoningConfig selects and configures the reasoning backend
type ReasoningConfig struct {
	Provider string // "gemini", "console", or "mock"
	APIKey   string // Gemini API key
	Model    string // Gemini model name
}

// AlertingConfig configures anomaly notifications
type AlertingConfig struct {
	WebhookURL  string // empty disables webhook delivery
	MinSeverity string // lowest severity that triggers a notification
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Backend               string // "postgres" or "memory"
	URL                   string
	Host                  string
	Port                  string
	Name                  string
	User                  string
	Password              string
	SSLMode               string
	MaxConnections        int
	MaxIdleConnections    int
	ConnectionMaxLifetime time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnv("PORT", "8080"),
			DiagnoseRateLimit: getEnvAsInt("DIAGNOSE_RATE_LIMIT", 10),
		},
		Database: DatabaseConfig{
			Backend:               getEnv("STORAGE_BACKEND", "postgres"),
			URL:                   os.Getenv("DATABASE_URL"),
			Host:                  getEnv("DB_HOST", "localhost"),
			Port:                  getEnv("DB_PORT", "5432"),
			Name:                  getEnv("DB_NAME", "diagnostics_dev"),
			User:                  getEnv("DB_USER", "diagnostics_user"),
			Password:              GetSecret("DB_PASSWORD", "diagnostics_pass"),
			SSLMode:               getEnv("DB_SSLMODE", "disable"),
			MaxConnections:        getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConnections:    getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 5),
			ConnectionMaxLifetime: getEnvAsDuration("DB_CONNECTION_MAX_LIFETIME", "5m"),
		},
		Auth: AuthConfig{
			JWTSecret:   GetSecret("JWT_SECRET", "dev-secret-key-change-in-production"),
			JWTTokenTTL: getEnvAsDuration("JWT_TOKEN_TTL", "24h"),
		},
		Diagnostics: DiagnosticsConfig{
			SessionCapacity:    getEnvAsInt("SESSION_CAPACITY", 1000),
			MaxBatchSize:       getEnvAsInt("MAX_BATCH_SIZE", 10),
			ReasoningTimeout:   getEnvAsDuration("REASONING_TIMEOUT", "60s"),
			TimeRangeHours:     getEnvAsInt("DEFAULT_TIME_RANGE_HOURS", 24),
			ZThresholdMedium:   getEnvAsFloat("ZSCORE_THRESHOLD_MEDIUM", 2),
			ZThresholdHigh:     getEnvAsFloat("ZSCORE_THRESHOLD_HIGH", 3),
			ZThresholdCritical: getEnvAsFloat("ZSCORE_THRESHOLD_CRITICAL", 4),
		},
		Reasoning: ReasoningConfig{
			Provider: getEnv("REASONING_PROVIDER", "console"),
			APIKey:   GetSecret("GEMINI_API_KEY", ""),
			Model:    getEnv("GEMINI_MODEL", ""),
		},
		Alerting: AlertingConfig{
			WebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
			MinSeverity: getEnv("ALERT_MIN_SEVERITY", "high"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be postgres or memory, got %q", c.Database.Backend)
	}

	switch c.Reasoning.Provider {
	case "gemini":
		if c.Reasoning.APIKey == "" {
			return errors.New("GEMINI_API_KEY is required when REASONING_PROVIDER=gemini")
		}
	case "console", "mock":
	default:
		return fmt.Errorf("REASONING_PROVIDER must be gemini, console, or mock, got %q", c.Reasoning.Provider)
	}

	if c.Diagnostics.SessionCapacity <= 0 {
		return errors.New("SESSION_CAPACITY must be positive")
	}
	if c.Diagnostics.MaxBatchSize <= 0 {
		return errors.New("MAX_BATCH_SIZE must be positive")
	}
	return nil
}

// ConnectionString returns the database connection string
func (d *DatabaseConfig) ConnectionString() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration or returns a default value
func getEnvAsDuration(key, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		defaultDuration, _ := time.ParseDuration(defaultValue)
		return defaultDuration
	}
	return value
}
