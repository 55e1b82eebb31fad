package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("requires a JWT secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SECRET")
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "s3cret")
		t.Setenv("HTTP_PORT", "9090")
		t.Setenv("SYNC_INTERVAL", "45m")
		t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "s3cret", cfg.JWTSecret)
		assert.Equal(t, "9090", cfg.HTTPPort)
		assert.Equal(t, 45*time.Minute, cfg.SyncInterval)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
		assert.Equal(t, 2*time.Hour, cfg.AccessTokenTTL)
		assert.Equal(t, "massy.db", cfg.DatabaseURL)
		assert.Equal(t, 10, cfg.AuthRateLimit)
	})
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.JWTSecret = "x"
	require.NoError(t, cfg.Validate())

	cfg.SyncInterval = time.Second
	assert.Error(t, cfg.Validate())

	cfg.SyncEnabled = false
	assert.NoError(t, cfg.Validate())
}
