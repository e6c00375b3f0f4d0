package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "password")
	t.Setenv("DB_NAME", "skillpath")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, time.Hour, cfg.JWT.AccessTokenExpiry)
	assert.Equal(t, IdempotencyBackendMySQL, cfg.Idempotency.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, 30*time.Second, cfg.Idempotency.PendingTimeout)
	assert.Equal(t, "@every 1h", cfg.Idempotency.SweepSchedule)
	assert.Equal(t, uint(5), cfg.StoreRetries)
	assert.False(t, cfg.Notifications.Enabled)
	assert.Empty(t, cfg.Admin.Email)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, "root:password@tcp(localhost:3306)/skillpath?parseTime=true&charset=utf8mb4", cfg.DSN())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("IDEMPOTENCY_BACKEND", "Redis")
	t.Setenv("IDEMPOTENCY_TTL", "2h")
	t.Setenv("STORE_RETRY_ATTEMPTS", "3")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("NOTIFICATIONS_ENABLED", "true")
	t.Setenv("ADMIN_EMAIL", "admin@example.com")
	t.Setenv("ADMIN_PASSWORD", "AdminPass1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, IdempotencyBackendRedis, cfg.Idempotency.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, uint(3), cfg.StoreRetries)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Notifications.Enabled)
	assert.Equal(t, "Administrator", cfg.Admin.Name)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing db host", env: map[string]string{"DB_HOST": ""}},
		{name: "bad db port", env: map[string]string{"DB_PORT": "x"}},
		{name: "missing jwt secret", env: map[string]string{"JWT_SECRET": ""}},
		{name: "unknown ledger backend", env: map[string]string{"IDEMPOTENCY_BACKEND": "memcached"}},
		{name: "bad ttl", env: map[string]string{"IDEMPOTENCY_TTL": "forever"}},
		{name: "zero retries", env: map[string]string{"STORE_RETRY_ATTEMPTS": "0"}},
		{name: "short admin password", env: map[string]string{"ADMIN_EMAIL": "admin@example.com", "ADMIN_PASSWORD": "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()

			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}
