package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Sync (event-bus) configuration
	Sync SyncConfig

	// REST API configuration
	REST RESTConfig

	// Auth configuration
	Auth AuthConfig

	// Presence configuration
	Presence PresenceConfig

	// Rate limiting for outbound presence emits
	RateLimit RateLimitConfig

	// Local debug/status endpoint
	Debug DebugConfig

	// Logging configuration
	Logging LoggingConfig

	// Application metadata
	App AppConfig
}

// SyncConfig holds event-bus connection configuration
type SyncConfig struct {
	URL            string
	DialTimeout    time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	EmitQueueSize  int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteTimeout   time.Duration
}

// RESTConfig holds REST CRUD boundary configuration
type RESTConfig struct {
	BaseURL string
	Timeout time.Duration
}

// AuthConfig holds the session credential
type AuthConfig struct {
	Token string
}

// PresenceConfig holds presence cache TTLs
type PresenceConfig struct {
	CursorTTL time.Duration
	TypingTTL time.Duration
}

// RateLimitConfig holds the outbound cursor emit throttle
type RateLimitConfig struct {
	Enabled     bool
	CursorRPS   float64
	CursorBurst int
}

// DebugConfig holds the localhost status endpoint configuration
type DebugConfig struct {
	Enabled        bool
	Addr           string
	AllowedOrigins []string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Sync: SyncConfig{
			URL:            os.Getenv("SYNC_URL"),
			DialTimeout:    getDurationOrDefault("SYNC_DIAL_TIMEOUT", 10*time.Second),
			InitialBackoff: getDurationOrDefault("SYNC_INITIAL_BACKOFF", 1*time.Second),
			MaxBackoff:     getDurationOrDefault("SYNC_MAX_BACKOFF", 30*time.Second),
			EmitQueueSize:  getIntOrDefault("SYNC_EMIT_QUEUE_SIZE", 128),
			PingInterval:   getDurationOrDefault("SYNC_PING_INTERVAL", 54*time.Second),
			PongWait:       getDurationOrDefault("SYNC_PONG_WAIT", 60*time.Second),
			WriteTimeout:   getDurationOrDefault("SYNC_WRITE_TIMEOUT", 10*time.Second),
		},
		REST: RESTConfig{
			BaseURL: os.Getenv("REST_BASE_URL"),
			Timeout: getDurationOrDefault("REST_TIMEOUT", 15*time.Second),
		},
		Auth: AuthConfig{
			Token: os.Getenv("AUTH_TOKEN"),
		},
		Presence: PresenceConfig{
			CursorTTL: getDurationOrDefault("PRESENCE_CURSOR_TTL", 3*time.Second),
			TypingTTL: getDurationOrDefault("PRESENCE_TYPING_TTL", 5*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getBoolOrDefault("RATE_LIMIT_ENABLED", true),
			CursorRPS:   getFloatOrDefault("RATE_LIMIT_CURSOR_RPS", 20),
			CursorBurst: getIntOrDefault("RATE_LIMIT_CURSOR_BURST", 5),
		},
		Debug: DebugConfig{
			Enabled:        getBoolOrDefault("DEBUG_SERVER_ENABLED", false),
			Addr:           getEnvOrDefault("DEBUG_SERVER_ADDR", "127.0.0.1:7377"),
			AllowedOrigins: getStringSliceOrDefault("DEBUG_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		App: AppConfig{
			Name:        getEnvOrDefault("APP_NAME", "taskwire-client"),
			Version:     getEnvOrDefault("APP_VERSION", "dev"),
			Environment: getEnvOrDefault("APP_ENV", "development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	// Required fields
	if c.Sync.URL == "" {
		errs = append(errs, "SYNC_URL is required")
	}

	if c.REST.BaseURL == "" {
		errs = append(errs, "REST_BASE_URL is required")
	}

	if c.Auth.Token == "" {
		errs = append(errs, "AUTH_TOKEN is required")
	}

	// Logical validations
	if c.Sync.InitialBackoff > c.Sync.MaxBackoff {
		errs = append(errs, "SYNC_INITIAL_BACKOFF cannot be greater than SYNC_MAX_BACKOFF")
	}

	if c.Sync.EmitQueueSize <= 0 {
		errs = append(errs, "SYNC_EMIT_QUEUE_SIZE must be positive")
	}

	if c.Sync.PingInterval >= c.Sync.PongWait {
		errs = append(errs, "SYNC_PING_INTERVAL must be less than SYNC_PONG_WAIT")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Sync: %s, REST: %s, Auth: [REDACTED], Debug: %v, Environment: %s}",
		c.Sync.URL,
		c.REST.BaseURL,
		c.Debug.Enabled,
		c.App.Environment,
	)
}
