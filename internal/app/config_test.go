package app

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 30, cfg.DefaultPaymentTermsDays)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
}

func TestLoadConfigReadsDotenvWithoutOverridingEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-file\nDEFAULT_PAYMENT_TERMS_DAYS=45\nAPP_ADDR=:9999\n"), 0o600))
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("APP_ADDR", ":7000")
	t.Setenv("DEFAULT_PAYMENT_TERMS_DAYS", "")
	os.Unsetenv("DEFAULT_PAYMENT_TERMS_DAYS")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, ":7000", cfg.AppAddr)
	assert.Equal(t, 45, cfg.DefaultPaymentTermsDays)
}

func TestProductionRequiresLongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("APP_ENV", "production")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "none.env"))

	assert.Error(t, err)
}

func TestLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", slog.Int64("invoice_id", 7))

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"invoice_id":7`)
}

func TestRedisOptionsShareEndpoint(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_PASSWORD", "pw")
	t.Setenv("REDIS_DB", "3")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	redis := cfg.Redis()
	queue := cfg.Asynq()
	assert.Equal(t, "redis:6380", redis.Addr)
	assert.Equal(t, redis.Addr, queue.Addr)
	assert.Equal(t, "pw", queue.Password)
	assert.Equal(t, 3, redis.DB)
	assert.Equal(t, 3, queue.DB)
}

func TestInTestMode(t *testing.T) {
	t.Setenv("ODYSSEY_TEST_MODE", "")
	t.Setenv("APP_ENV", "production")
	assert.False(t, InTestMode())

	t.Setenv("APP_ENV", "Test")
	assert.True(t, InTestMode())

	t.Setenv("APP_ENV", "production")
	t.Setenv("ODYSSEY_TEST_MODE", "1")
	assert.True(t, InTestMode())
}
