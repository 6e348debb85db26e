package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SYNC_URL", "wss://push.example.com/ws")
	t.Setenv("REST_BASE_URL", "https://api.example.com")
	t.Setenv("AUTH_TOKEN", "token-123")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1*time.Second, cfg.Sync.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.Sync.MaxBackoff)
	assert.Equal(t, 128, cfg.Sync.EmitQueueSize)
	assert.Equal(t, 3*time.Second, cfg.Presence.CursorTTL)
	assert.Equal(t, 5*time.Second, cfg.Presence.TypingTTL)
	assert.Equal(t, 20.0, cfg.RateLimit.CursorRPS)
	assert.False(t, cfg.Debug.Enabled)
	assert.Equal(t, "127.0.0.1:7377", cfg.Debug.Addr)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYNC_INITIAL_BACKOFF", "500ms")
	t.Setenv("SYNC_EMIT_QUEUE_SIZE", "32")
	t.Setenv("DEBUG_SERVER_ENABLED", "true")
	t.Setenv("DEBUG_ALLOWED_ORIGINS", "http://localhost:3000, http://localhost:5173")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Sync.InitialBackoff)
	assert.Equal(t, 32, cfg.Sync.EmitQueueSize)
	assert.True(t, cfg.Debug.Enabled)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.Debug.AllowedOrigins)
	assert.True(t, cfg.IsProduction())
}

func TestValidate(t *testing.T) {
	t.Run("missing required fields", func(t *testing.T) {
		cfg := &Config{}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SYNC_URL is required")
		assert.Contains(t, err.Error(), "REST_BASE_URL is required")
		assert.Contains(t, err.Error(), "AUTH_TOKEN is required")
	})

	t.Run("backoff ordering", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("SYNC_INITIAL_BACKOFF", "1m")
		t.Setenv("SYNC_MAX_BACKOFF", "10s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SYNC_INITIAL_BACKOFF cannot be greater than SYNC_MAX_BACKOFF")
	})

	t.Run("ping must beat pong wait", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("SYNC_PING_INTERVAL", "2m")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SYNC_PING_INTERVAL must be less than SYNC_PONG_WAIT")
	})
}

func TestString_RedactsToken(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	s := cfg.String()
	assert.Contains(t, s, "[REDACTED]")
	assert.False(t, strings.Contains(s, "token-123"), "credential must never appear in logs")
}
