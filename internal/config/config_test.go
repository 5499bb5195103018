package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewDefaultConfig_TrackingDefaults(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 15*time.Second, cfg.Tracking.MinUpdateInterval)
	assert.Equal(t, time.Hour, cfg.Tracking.Expiration)
	assert.Equal(t, 5*time.Minute, cfg.Tracking.SweepInterval)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
}

func TestValidate_RequiresSecret(t *testing.T) {
	cfg := NewDefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret is required")

	cfg.Auth.JWTSecret = "short"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")

	cfg.Auth.JWTSecret = testSecret
	assert.NoError(t, cfg.Validate())
}

func TestValidate_CrossFieldRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"expiration shorter than interval", func(c *Config) { c.Tracking.Expiration = time.Second }, "must not be shorter"},
		{"zero interval", func(c *Config) { c.Tracking.MinUpdateInterval = 0 }, "min_update_interval must be positive"},
		{"unknown storage", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.driver"},
		{"badger without path", func(c *Config) { c.Storage.Driver = StorageBadger; c.Storage.Path = "" }, "storage.path"},
		{"rate limit burst", func(c *Config) { c.RateLimit.Burst = 0 }, "ratelimit"},
		{"audit store", func(c *Config) { c.Audit.Store = "s3" }, "audit.store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Auth.JWTSecret = testSecret
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_DisabledAuditSkipsAuditRules(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.JWTSecret = testSecret
	cfg.Audit.Enabled = false
	cfg.Audit.Store = "anything"

	assert.NoError(t, cfg.Validate())
}

func TestLoadWithKoanf_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: ":9090"
tracking:
  min_update_interval: 30s
  expiration: 2h
auth:
  jwt_secret: "` + testSecret + `"
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://ops.example.com, https://app.example.com")

	cfg, err := LoadWithKoanf(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Tracking.MinUpdateInterval)
	assert.Equal(t, 2*time.Hour, cfg.Tracking.Expiration)
	assert.Equal(t, 5*time.Minute, cfg.Tracking.SweepInterval, "unset keys keep defaults")
	assert.Equal(t, "warn", cfg.Logging.Level, "environment overrides file")
	assert.Equal(t, []string{"https://ops.example.com", "https://app.example.com"}, cfg.Realtime.AllowedOrigins)
}

func TestLoadWithKoanf_EnvOnly(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("TRACKING_MIN_UPDATE_INTERVAL", "5s")
	t.Setenv("RATE_LIMIT_ENABLED", "false")

	cfg, err := LoadWithKoanf("")
	require.NoError(t, err)

	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, 5*time.Second, cfg.Tracking.MinUpdateInterval)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadWithKoanf_InvalidFails(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("JWT_SECRET", "")

	_, err := LoadWithKoanf("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestEnvTransform_IgnoresUnmapped(t *testing.T) {
	assert.Equal(t, "auth.jwt_secret", envTransform("JWT_SECRET"))
	assert.Equal(t, "", envTransform("PATH"))
}
