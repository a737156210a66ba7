package config_test

import (
	"testing"
	"time"

	"skillswap/backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "HTTP_ADDR", "NODE_ID", "DATABASE_DSN", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"RELAY_BACKEND", "NATS_URL", "JWT_SECRET", "JWT_ISSUER", "RELAY_APP_ID", "RELAY_APP_CERT",
		"RELAY_TOKEN_TTL", "CALL_INVITE_TIMEOUT", "UPLOAD_DIR", "UPLOAD_BASE_URL", "UPLOAD_MAX_BYTES",
		"WS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDevelopmentDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("NODE_ID", "node-a")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "node-a", cfg.NodeID)
	assert.Equal(t, config.RelayNone, cfg.RelayBackend)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.NotEmpty(t, cfg.RelayAppCert)
	assert.Equal(t, config.DefaultCallInviteTimeout, cfg.CallInviteTimeout)
	assert.Equal(t, int64(config.DefaultUploadMaxBytes), cfg.UploadMaxBytes)
	assert.Nil(t, cfg.AllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RELAY_BACKEND", "REDIS")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("CALL_INVITE_TIMEOUT", "45s")
	t.Setenv("RELAY_TOKEN_TTL", "not-a-duration")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.RelayRedis, cfg.RelayBackend)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 45*time.Second, cfg.CallInviteTimeout)
	assert.Equal(t, config.DefaultRelayTokenTTL, cfg.RelayTokenTTL, "unparsable values fall back to the default")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadRejects(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"production without secret", map[string]string{"APP_ENV": "production", "RELAY_APP_CERT": "c"}},
		{"production without relay cert", map[string]string{"APP_ENV": "production", "JWT_SECRET": "s"}},
		{"unknown relay", map[string]string{"RELAY_BACKEND": "carrier-pigeon"}},
		{"redis relay without redis", map[string]string{"RELAY_BACKEND": "redis"}},
		{"memory store in production", map[string]string{"APP_ENV": "production", "JWT_SECRET": "s", "RELAY_APP_CERT": "c", "DATABASE_DSN": "memory"}},
		{"zero invite timeout", map[string]string{"CALL_INVITE_TIMEOUT": "0s"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg, err := config.Load()
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}
