package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	dbconfig "pulseroom/pkg/database"
)

// DefaultSecret signs credentials when nothing else is configured. It is
// only fit for local development.
const DefaultSecret = "pulseroom-dev-secret"

// envPrefix namespaces every environment variable the server reads.
const envPrefix = "PULSEROOM_"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Auth      *AuthConfig      `json:"auth"`
	Feedback  *FeedbackConfig  `json:"feedback"`
}

// DatabaseConfig selects the store driver. Path is used by sqlite3, DSN by postgres.
type DatabaseConfig struct {
	Driver  string        `json:"driver"`
	Path    string        `json:"path"`
	DSN     string        `json:"dsn"`
	Timeout time.Duration `json:"timeout"`
}

// FUNCTIONAL DISCOVERY: HTTP configuration balances performance and reliability
type HTTPConfig struct {
	Port           int           `json:"port"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	Host           string        `json:"host"`
	AllowedOrigins []string      `json:"allowed_origins"`
}

// FUNCTIONAL DISCOVERY: WebSocket configuration optimized for classroom scenarios
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// AuthConfig controls credential signing.
type AuthConfig struct {
	Secret        string        `json:"secret"`
	TokenTTL      time.Duration `json:"token_ttl"`
	EnforceExpiry bool          `json:"enforce_expiry"`
}

// FeedbackConfig bounds reaction traffic and the persistence backlog.
type FeedbackConfig struct {
	RateLimitPerMinute int `json:"rate_limit_per_minute"`
	QueueSize          int `json:"queue_size"`
}

// FUNCTIONAL DISCOVERY: Production-ready defaults based on classroom requirements
// Database on local filesystem, HTTP on standard port, WebSocket with 30s heartbeat
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Driver:  dbconfig.DriverSQLite,
			Path:    "./pulseroom.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Auth: &AuthConfig{
			Secret:   DefaultSecret,
			TokenTTL: 24 * time.Hour,
		},
		Feedback: &FeedbackConfig{
			RateLimitPerMinute: 120,
			QueueSize:          1000,
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
// Critical for preventing runtime failures in production deployment
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}

	if _, err := dbconfig.DialectFor(c.Database.Driver); err != nil {
		return fmt.Errorf("database driver: %w", err)
	}

	if c.Database.Driver == dbconfig.DriverSQLite && c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if c.Database.Driver == dbconfig.DriverPostgres && c.Database.DSN == "" {
		return fmt.Errorf("database DSN cannot be empty for postgres")
	}

	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}

	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}

	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}

	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}

	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}

	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}

	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}

	if len(c.Auth.Secret) < 16 {
		return fmt.Errorf("auth secret must be at least 16 characters")
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token TTL must be positive")
	}

	if c.Feedback == nil {
		return fmt.Errorf("feedback configuration is required")
	}

	if c.Feedback.RateLimitPerMinute < 0 {
		return fmt.Errorf("feedback rate limit cannot be negative")
	}

	if c.Feedback.QueueSize <= 0 {
		return fmt.Errorf("feedback queue size must be positive")
	}

	return nil
}

// StoreConfig converts the database section for the store.
func (d *DatabaseConfig) StoreConfig() *dbconfig.Config {
	store := dbconfig.DefaultConfig()
	store.Driver = d.Driver
	store.DatabasePath = d.Path
	store.DSN = d.DSN
	return store
}

// Address is the host:port the HTTP server listens on.
func (h *HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// FUNCTIONAL DISCOVERY: Environment variable configuration enables deployment flexibility
// Supports containerized deployments and configuration management systems
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(config *Config) {
	envString("DATABASE_DRIVER", &config.Database.Driver)
	envString("DATABASE_PATH", &config.Database.Path)
	envString("DATABASE_DSN", &config.Database.DSN)
	envDuration("DATABASE_TIMEOUT", &config.Database.Timeout)

	envInt("HTTP_PORT", &config.HTTP.Port)
	envString("HTTP_HOST", &config.HTTP.Host)
	envDuration("HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)
	if origins := os.Getenv(envPrefix + "HTTP_ALLOWED_ORIGINS"); origins != "" {
		config.HTTP.AllowedOrigins = splitList(origins)
	}

	envDuration("WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	envDuration("WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	envDuration("WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	envInt("WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)

	envString("AUTH_SECRET", &config.Auth.Secret)
	envDuration("AUTH_TOKEN_TTL", &config.Auth.TokenTTL)
	envBool("AUTH_ENFORCE_EXPIRY", &config.Auth.EnforceExpiry)

	envInt("FEEDBACK_RATE_LIMIT", &config.Feedback.RateLimitPerMinute)
	envInt("FEEDBACK_QUEUE_SIZE", &config.Feedback.QueueSize)
}

// FUNCTIONAL DISCOVERY: Environment variables override defaults with fallback.
// Unparseable values are ignored.
func envString(key string, target *string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*target = v
	}
}

func envInt(key string, target *int) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func envDuration(key string, target *time.Duration) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}

func envBool(key string, target *bool) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Auth      *AuthConfigFile      `json:"auth"`
	Feedback  *FeedbackConfig      `json:"feedback"`
}

type DatabaseConfigFile struct {
	Driver  string `json:"driver"`
	Path    string `json:"path"`
	DSN     string `json:"dsn"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port           int      `json:"port"`
	ReadTimeout    string   `json:"read_timeout"`
	WriteTimeout   string   `json:"write_timeout"`
	Host           string   `json:"host"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type AuthConfigFile struct {
	Secret        string `json:"secret"`
	TokenTTL      string `json:"token_ttl"`
	EnforceExpiry *bool  `json:"enforce_expiry"`
}

// FUNCTIONAL DISCOVERY: File-based configuration supports complex deployment scenarios
// JSON format chosen for readability and tooling support
func LoadFromFile(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, filepath); err != nil {
		return nil, err
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// applyFile overlays the settings present in the file onto config.
func applyFile(config *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	if f := configFile.Database; f != nil {
		setString(&config.Database.Driver, f.Driver)
		setString(&config.Database.Path, f.Path)
		setString(&config.Database.DSN, f.DSN)
		setDuration(&config.Database.Timeout, f.Timeout)
	}

	if f := configFile.HTTP; f != nil {
		if f.Port > 0 {
			config.HTTP.Port = f.Port
		}
		setString(&config.HTTP.Host, f.Host)
		setDuration(&config.HTTP.ReadTimeout, f.ReadTimeout)
		setDuration(&config.HTTP.WriteTimeout, f.WriteTimeout)
		if len(f.AllowedOrigins) > 0 {
			config.HTTP.AllowedOrigins = f.AllowedOrigins
		}
	}

	if f := configFile.WebSocket; f != nil {
		if f.BufferSize > 0 {
			config.WebSocket.BufferSize = f.BufferSize
		}
		setDuration(&config.WebSocket.PingInterval, f.PingInterval)
		setDuration(&config.WebSocket.ReadTimeout, f.ReadTimeout)
		setDuration(&config.WebSocket.WriteTimeout, f.WriteTimeout)
	}

	if f := configFile.Auth; f != nil {
		setString(&config.Auth.Secret, f.Secret)
		setDuration(&config.Auth.TokenTTL, f.TokenTTL)
		if f.EnforceExpiry != nil {
			config.Auth.EnforceExpiry = *f.EnforceExpiry
		}
	}

	if f := configFile.Feedback; f != nil {
		if f.RateLimitPerMinute > 0 {
			config.Feedback.RateLimitPerMinute = f.RateLimitPerMinute
		}
		if f.QueueSize > 0 {
			config.Feedback.QueueSize = f.QueueSize
		}
	}

	return nil
}

func setString(target *string, v string) {
	if v != "" {
		*target = v
	}
}

func setDuration(target *time.Duration, v string) {
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*target = d
	}
}

// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > .env > defaults
// Enables flexible deployment patterns while maintaining sane defaults
func LoadConfigWithPrecedence(filepath string) *Config {
	if err := LoadDotEnv(""); err != nil {
		log.Printf("Ignoring .env: %v", err)
	}

	config := LoadFromEnv()

	// Override with file if provided and exists
	if filepath != "" {
		overlaid := LoadFromEnv()
		if err := applyFile(overlaid, filepath); err != nil {
			log.Printf("Ignoring config file: %v", err)
		} else {
			config = overlaid
		}
	}

	return config
}
