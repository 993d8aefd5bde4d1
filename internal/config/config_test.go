package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_DiagnosticsConfig(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    DiagnosticsConfig
	}{
		{
			name: "loads diagnostics config with all values set",
			envVars: map[string]string{
				"SESSION_CAPACITY":          "250",
				"MAX_BATCH_SIZE":            "5",
				"REASONING_TIMEOUT":         "30s",
				"DEFAULT_TIME_RANGE_HOURS":  "48",
				"ZSCORE_THRESHOLD_MEDIUM":   "1.5",
				"ZSCORE_THRESHOLD_HIGH":     "2.5",
				"ZSCORE_THRESHOLD_CRITICAL": "3.5",
			},
			want: DiagnosticsConfig{
				SessionCapacity:    250,
				MaxBatchSize:       5,
				ReasoningTimeout:   30 * time.Second,
				TimeRangeHours:     48,
				ZThresholdMedium:   1.5,
				ZThresholdHigh:     2.5,
				ZThresholdCritical: 3.5,
			},
		},
		{
			name:    "loads diagnostics config with defaults",
			envVars: map[string]string{},
			want: DiagnosticsConfig{
				SessionCapacity:    1000,
				MaxBatchSize:       10,
				ReasoningTimeout:   60 * time.Second,
				TimeRangeHours:     24,
				ZThresholdMedium:   2,
				ZThresholdHigh:     3,
				ZThresholdCritical: 4,
			},
		},
		{
			name: "falls back to defaults on unparseable values",
			envVars: map[string]string{
				"SESSION_CAPACITY":  "lots",
				"REASONING_TIMEOUT": "soon",
			},
			want: DiagnosticsConfig{
				SessionCapacity:    1000,
				MaxBatchSize:       10,
				ReasoningTimeout:   60 * time.Second,
				TimeRangeHours:     24,
				ZThresholdMedium:   2,
				ZThresholdHigh:     3,
				ZThresholdCritical: 4,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clean environment
			cleanDiagnosticsEnv()

			// Set test environment variables
			for key, value := range tt.envVars {
				os.Setenv(key, value)
				defer os.Unsetenv(key)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if cfg.Diagnostics != tt.want {
				t.Errorf("Diagnostics = %+v, want %+v", cfg.Diagnostics, tt.want)
			}
		})
	}
}

func TestLoad_ServerConfig(t *testing.T) {
	os.Unsetenv("PORT")
	os.Unsetenv("DIAGNOSE_RATE_LIMIT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "8080")
	}
	if cfg.Server.DiagnoseRateLimit != 10 {
		t.Errorf("Server.DiagnoseRateLimit = %d, want 10", cfg.Server.DiagnoseRateLimit)
	}

	os.Setenv("DIAGNOSE_RATE_LIMIT", "25")
	defer os.Unsetenv("DIAGNOSE_RATE_LIMIT")

	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.DiagnoseRateLimit != 25 {
		t.Errorf("Server.DiagnoseRateLimit = %d, want 25", cfg.Server.DiagnoseRateLimit)
	}
}

func TestLoad_ReasoningConfig(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    ReasoningConfig
	}{
		{
			name: "loads reasoning config with all values set",
			envVars: map[string]string{
				"REASONING_PROVIDER": "gemini",
				"GEMINI_API_KEY":     "key-123",
				"GEMINI_MODEL":       "gemini-2.0-flash",
			},
			want: ReasoningConfig{
				Provider: "gemini",
				APIKey:   "key-123",
				Model:    "gemini-2.0-flash",
			},
		},
		{
			name:    "defaults to console provider",
			envVars: map[string]string{},
			want: ReasoningConfig{
				Provider: "console",
				APIKey:   "",
				Model:    "",
			},
		},
		{
			name: "loads mock provider without credentials",
			envVars: map[string]string{
				"REASONING_PROVIDER": "mock",
			},
			want: ReasoningConfig{
				Provider: "mock",
				APIKey:   "",
				Model:    "",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clean environment
			cleanReasoningEnv()

			// Set test environment variables
			for key, value := range tt.envVars {
				os.Setenv(key, value)
				defer os.Unsetenv(key)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if cfg.Reasoning != tt.want {
				t.Errorf("Reasoning = %+v, want %+v", cfg.Reasoning, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Database:    DatabaseConfig{Backend: "postgres"},
			Reasoning:   ReasoningConfig{Provider: "console"},
			Diagnostics: DiagnosticsConfig{SessionCapacity: 1000, MaxBatchSize: 10},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config with console provider",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "valid config with memory backend",
			mutate: func(c *Config) {
				c.Database.Backend = "memory"
			},
			wantErr: false,
		},
		{
			name: "valid config with gemini provider and key",
			mutate: func(c *Config) {
				c.Reasoning.Provider = "gemini"
				c.Reasoning.APIKey = "key-123"
			},
			wantErr: false,
		},
		{
			name: "invalid - unknown storage backend",
			mutate: func(c *Config) {
				c.Database.Backend = "sqlite"
			},
			wantErr: true,
			errMsg:  `STORAGE_BACKEND must be postgres or memory, got "sqlite"`,
		},
		{
			name: "invalid - unknown reasoning provider",
			mutate: func(c *Config) {
				c.Reasoning.Provider = "oracle"
			},
			wantErr: true,
			errMsg:  `REASONING_PROVIDER must be gemini, console, or mock, got "oracle"`,
		},
		{
			name: "invalid - gemini provider without API key",
			mutate: func(c *Config) {
				c.Reasoning.Provider = "gemini"
			},
			wantErr: true,
			errMsg:  "GEMINI_API_KEY is required when REASONING_PROVIDER=gemini",
		},
		{
			name: "invalid - non-positive session capacity",
			mutate: func(c *Config) {
				c.Diagnostics.SessionCapacity = 0
			},
			wantErr: true,
			errMsg:  "SESSION_CAPACITY must be positive",
		},
		{
			name: "invalid - non-positive batch size",
			mutate: func(c *Config) {
				c.Diagnostics.MaxBatchSize = -1
			},
			wantErr: true,
			errMsg:  "MAX_BATCH_SIZE must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err.Error() != tt.errMsg {
				t.Errorf("Validate() error message = %q, want %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		errMsg  string
	}{
		{
			name: "fails validation when gemini provider missing API key",
			envVars: map[string]string{
				"REASONING_PROVIDER": "gemini",
				"GEMINI_API_KEY":     "",
			},
			wantErr: true,
			errMsg:  "GEMINI_API_KEY is required when REASONING_PROVIDER=gemini",
		},
		{
			name: "fails validation on unknown storage backend",
			envVars: map[string]string{
				"STORAGE_BACKEND": "cassandra",
			},
			wantErr: true,
			errMsg:  `STORAGE_BACKEND must be postgres or memory, got "cassandra"`,
		},
		{
			name: "succeeds with console provider and no credentials",
			envVars: map[string]string{
				"REASONING_PROVIDER": "console",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clean environment
			cleanReasoningEnv()
			os.Unsetenv("STORAGE_BACKEND")

			// Set test environment variables
			for key, value := range tt.envVars {
				os.Setenv(key, value)
				defer os.Unsetenv(key)
			}

			_, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err.Error() != tt.errMsg {
				t.Errorf("Load() error message = %q, want %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestLoad_JWTSecretUsesGetSecret(t *testing.T) {
	// Clean environment
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("JWT_SECRET_FILE")

	// Test with direct env var
	os.Setenv("JWT_SECRET", "direct-secret")
	defer os.Unsetenv("JWT_SECRET")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "direct-secret" {
		t.Errorf("JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "direct-secret")
	}
}

func TestConnectionString(t *testing.T) {
	t.Run("prefers DATABASE_URL when set", func(t *testing.T) {
		d := DatabaseConfig{
			URL:  "postgres://user:pass@db:5432/diagnostics",
			Host: "ignored",
		}
		if got := d.ConnectionString(); got != d.URL {
			t.Errorf("ConnectionString() = %q, want %q", got, d.URL)
		}
	})

	t.Run("builds DSN from parts", func(t *testing.T) {
		d := DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			Name:     "diagnostics_dev",
			User:     "diagnostics_user",
			Password: "pw",
			SSLMode:  "disable",
		}
		want := "host=localhost port=5432 user=diagnostics_user password=pw dbname=diagnostics_dev sslmode=disable"
		if got := d.ConnectionString(); got != want {
			t.Errorf("ConnectionString() = %q, want %q", got, want)
		}
	})
}

// cleanDiagnosticsEnv removes all diagnostics-related environment variables
func cleanDiagnosticsEnv() {
	envVars := []string{
		"SESSION_CAPACITY",
		"MAX_BATCH_SIZE",
		"REASONING_TIMEOUT",
		"DEFAULT_TIME_RANGE_HOURS",
		"ZSCORE_THRESHOLD_MEDIUM",
		"ZSCORE_THRESHOLD_HIGH",
		"ZSCORE_THRESHOLD_CRITICAL",
	}
	for _, key := range envVars {
		os.Unsetenv(key)
	}
}

// cleanReasoningEnv removes all reasoning-related environment variables
func cleanReasoningEnv() {
	envVars := []string{
		"REASONING_PROVIDER",
		"GEMINI_API_KEY",
		"GEMINI_API_KEY_FILE",
		"GEMINI_MODEL",
	}
	for _, key := range envVars {
		os.Unsetenv(key)
	}
}
