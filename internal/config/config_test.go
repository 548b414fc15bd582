package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	dbconfig "pulseroom/pkg/database"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// unsetForTest removes key for the test and again afterwards, for variables
// that godotenv sets directly.
func unsetForTest(t *testing.T, key string) {
	t.Helper()
	prev, had := os.LookupEnv(key)
	_ = os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, prev)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

// FUNCTIONAL VALIDATION TEST: Default configuration provides production-ready settings
func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if config.Database.Driver != dbconfig.DriverSQLite {
		t.Errorf("default driver = %q", config.Database.Driver)
	}
	if config.WebSocket.PingInterval != 30*time.Second || config.WebSocket.ReadTimeout != 60*time.Second {
		t.Errorf("heartbeat = %v/%v, want 30s/60s", config.WebSocket.PingInterval, config.WebSocket.ReadTimeout)
	}
	if config.Auth.TokenTTL != 24*time.Hour || config.Auth.EnforceExpiry {
		t.Errorf("auth defaults = %+v", config.Auth)
	}
	if config.Feedback.RateLimitPerMinute != 120 {
		t.Errorf("rate limit = %d, want 120", config.Feedback.RateLimitPerMinute)
	}
}

// FUNCTIONAL VALIDATION TEST: Configuration validation prevents invalid settings
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"nil database", func(c *Config) { c.Database = nil }, "database configuration is required"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database driver"},
		{"empty sqlite path", func(c *Config) { c.Database.Path = "" }, "database path cannot be empty"},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = dbconfig.DriverPostgres }, "DSN cannot be empty"},
		{"postgres with dsn", func(c *Config) {
			c.Database.Driver = dbconfig.DriverPostgres
			c.Database.Path = ""
			c.Database.DSN = "postgres://localhost/pulseroom"
		}, ""},
		{"zero db timeout", func(c *Config) { c.Database.Timeout = 0 }, "database timeout must be positive"},
		{"port too low", func(c *Config) { c.HTTP.Port = 0 }, "HTTP port must be between 1 and 65535"},
		{"port too high", func(c *Config) { c.HTTP.Port = 70000 }, "HTTP port must be between 1 and 65535"},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }, "HTTP host cannot be empty"},
		{"read timeout under ping", func(c *Config) { c.WebSocket.ReadTimeout = 20 * time.Second }, "must exceed the ping interval"},
		{"zero buffer", func(c *Config) { c.WebSocket.BufferSize = 0 }, "buffer size must be positive"},
		{"short secret", func(c *Config) { c.Auth.Secret = "short" }, "at least 16 characters"},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, "token TTL must be positive"},
		{"negative rate", func(c *Config) { c.Feedback.RateLimitPerMinute = -1 }, "cannot be negative"},
		{"rate limit off", func(c *Config) { c.Feedback.RateLimitPerMinute = 0 }, ""},
		{"zero queue", func(c *Config) { c.Feedback.QueueSize = 0 }, "queue size must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

// FUNCTIONAL VALIDATION TEST: Environment variables override defaults
func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("PULSEROOM_DATABASE_DRIVER", "postgres")
	t.Setenv("PULSEROOM_DATABASE_DSN", "postgres://db/pulseroom?sslmode=disable")
	t.Setenv("PULSEROOM_HTTP_PORT", "9090")
	t.Setenv("PULSEROOM_HTTP_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("PULSEROOM_WEBSOCKET_PING_INTERVAL", "15s")
	t.Setenv("PULSEROOM_AUTH_SECRET", "a-much-longer-secret-value")
	t.Setenv("PULSEROOM_AUTH_ENFORCE_EXPIRY", "true")
	t.Setenv("PULSEROOM_FEEDBACK_RATE_LIMIT", "30")

	config := LoadFromEnv()

	if config.Database.Driver != "postgres" || config.Database.DSN != "postgres://db/pulseroom?sslmode=disable" {
		t.Errorf("database = %+v", config.Database)
	}
	if config.HTTP.Port != 9090 {
		t.Errorf("port = %d, want 9090", config.HTTP.Port)
	}
	if len(config.HTTP.AllowedOrigins) != 2 || config.HTTP.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("origins = %v", config.HTTP.AllowedOrigins)
	}
	if config.WebSocket.PingInterval != 15*time.Second {
		t.Errorf("ping interval = %v", config.WebSocket.PingInterval)
	}
	if config.Auth.Secret != "a-much-longer-secret-value" || !config.Auth.EnforceExpiry {
		t.Errorf("auth = %+v", config.Auth)
	}
	if config.Feedback.RateLimitPerMinute != 30 {
		t.Errorf("rate limit = %d", config.Feedback.RateLimitPerMinute)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfig_LoadFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("PULSEROOM_HTTP_PORT", "eighty")
	t.Setenv("PULSEROOM_WEBSOCKET_READ_TIMEOUT", "forever")
	t.Setenv("PULSEROOM_AUTH_ENFORCE_EXPIRY", "maybe")

	config := LoadFromEnv()
	defaults := DefaultConfig()

	if config.HTTP.Port != defaults.HTTP.Port {
		t.Errorf("port = %d, want default", config.HTTP.Port)
	}
	if config.WebSocket.ReadTimeout != defaults.WebSocket.ReadTimeout {
		t.Errorf("read timeout = %v, want default", config.WebSocket.ReadTimeout)
	}
	if config.Auth.EnforceExpiry {
		t.Error("enforce expiry should stay false")
	}
}

// FUNCTIONAL VALIDATION TEST: JSON file configuration
func TestConfig_LoadFromFile(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"database": {"path": "/var/lib/pulseroom/room.db", "timeout": "10s"},
		"http": {"port": 8443, "host": "127.0.0.1", "allowed_origins": ["https://class.example.com"]},
		"websocket": {"ping_interval": "20s", "read_timeout": "45s", "buffer_size": 256},
		"auth": {"secret": "file-secret-0123456789", "token_ttl": "2h", "enforce_expiry": true},
		"feedback": {"rate_limit_per_minute": 60, "queue_size": 50}
	}`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if config.Database.Path != "/var/lib/pulseroom/room.db" || config.Database.Timeout != 10*time.Second {
		t.Errorf("database = %+v", config.Database)
	}
	if config.HTTP.Address() != "127.0.0.1:8443" {
		t.Errorf("address = %s", config.HTTP.Address())
	}
	if config.WebSocket.BufferSize != 256 || config.WebSocket.ReadTimeout != 45*time.Second {
		t.Errorf("websocket = %+v", config.WebSocket)
	}
	if config.Auth.TokenTTL != 2*time.Hour || !config.Auth.EnforceExpiry {
		t.Errorf("auth = %+v", config.Auth)
	}
	if config.Feedback.QueueSize != 50 || config.Feedback.RateLimitPerMinute != 60 {
		t.Errorf("feedback = %+v", config.Feedback)
	}
	if config.HTTP.WriteTimeout != DefaultConfig().HTTP.WriteTimeout {
		t.Error("unset fields should keep their defaults")
	}
}

func TestConfig_LoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file should fail")
	}
	if _, err := LoadFromFile(writeFile(t, "bad.json", `{"http": `)); err == nil {
		t.Error("invalid JSON should fail")
	}
	if _, err := LoadFromFile(writeFile(t, "invalid.json", `{"auth": {"secret": "short"}}`)); err == nil {
		t.Error("invalid settings should fail validation")
	}
}

// FUNCTIONAL VALIDATION TEST: file > environment > .env > defaults
func TestConfig_LoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("PULSEROOM_HTTP_PORT", "9000")
	t.Setenv("PULSEROOM_HTTP_HOST", "10.0.0.1")
	path := writeFile(t, "config.json", `{"http": {"port": 9100}}`)

	config := LoadConfigWithPrecedence(path)

	if config.HTTP.Port != 9100 {
		t.Errorf("port = %d, want file value 9100", config.HTTP.Port)
	}
	if config.HTTP.Host != "10.0.0.1" {
		t.Errorf("host = %q, want env value kept", config.HTTP.Host)
	}

	config = LoadConfigWithPrecedence(filepath.Join(t.TempDir(), "absent.json"))
	if config.HTTP.Port != 9000 {
		t.Errorf("port = %d, want env value when file is missing", config.HTTP.Port)
	}
}

func TestConfig_LoadDotEnv(t *testing.T) {
	unsetForTest(t, "PULSEROOM_FEEDBACK_QUEUE_SIZE")
	unsetForTest(t, "PULSEROOM_HTTP_HOST")
	t.Setenv("PULSEROOM_HTTP_PORT", "7100")

	path := writeFile(t, ".env", strings.Join([]string{
		"PULSEROOM_FEEDBACK_QUEUE_SIZE=42",
		"PULSEROOM_HTTP_HOST=192.168.1.5",
		"PULSEROOM_HTTP_PORT=7000",
	}, "\n"))

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	config := LoadFromEnv()

	if config.Feedback.QueueSize != 42 || config.HTTP.Host != "192.168.1.5" {
		t.Errorf("dotenv values not applied: %+v %+v", config.Feedback, config.HTTP)
	}
	if config.HTTP.Port != 7100 {
		t.Errorf("port = %d, want process env to win over .env", config.HTTP.Port)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}

func TestDatabaseConfig_StoreConfig(t *testing.T) {
	db := &DatabaseConfig{Driver: dbconfig.DriverPostgres, DSN: "postgres://x", Timeout: time.Second}
	store := db.StoreConfig()

	if store.Driver != dbconfig.DriverPostgres || store.DSN != "postgres://x" {
		t.Errorf("store config = %+v", store)
	}
	if err := store.Validate(); err != nil {
		t.Errorf("store config should validate: %v", err)
	}
}
