package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/infra/setup"
)

// setBaseEnv 设置最小可用配置，并清空可能来自外部环境的变量
func setBaseEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DB_USER", "DB_PASSWORD", "DB_HOST", "DB_PORT", "DB_NAME", "REDIS_PASSWORD", "REDIS_DB",
		"REDIS_KEY_PREFIX", "SERVER_PORT", "LOG_LEVEL", "APP_ENV", "CORS_ALLOWED_ORIGIN",
		"ROOM_LOCK_TIMEOUT", "ROOM_ACTIVE_WINDOW", "RATE_LIMIT_MAX", "RATE_LIMIT_WINDOW",
		"SETTLEMENT_SWEEP_SCHEDULE",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("DB_DRIVER", setup.DriverSQLite)
	t.Setenv("SQLITE_PATH", ":memory:")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "ttt:", cfg.KeyPrefix)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.RoomLockTimeout)
	assert.Equal(t, time.Hour, cfg.ActiveWindow)
	assert.Equal(t, 100, cfg.RateLimitMax)
	assert.Equal(t, time.Second, cfg.RateLimitWindow)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfig_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ROOM_LOCK_TIMEOUT", "2s")
	t.Setenv("ROOM_ACTIVE_WINDOW", "30m")
	t.Setenv("RATE_LIMIT_MAX", "5")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "verbose")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.RoomLockTimeout)
	assert.Equal(t, 30*time.Minute, cfg.ActiveWindow)
	assert.Equal(t, 5, cfg.RateLimitMax)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "info", cfg.LogLevel, "无效日志级别回退为 info")
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "missing redis", key: "REDIS_ADDR", val: ""},
		{name: "missing jwt secret", key: "JWT_SECRET", val: ""},
		{name: "bad duration", key: "ROOM_LOCK_TIMEOUT", val: "soon"},
		{name: "negative duration", key: "ROOM_ACTIVE_WINDOW", val: "-1m"},
		{name: "bad int", key: "RATE_LIMIT_MAX", val: "many"},
		{name: "zero rate limit", key: "RATE_LIMIT_MAX", val: "0"},
		{name: "mysql without credentials", key: "DB_DRIVER", val: setup.DriverMySQL},
		{name: "unknown driver", key: "DB_DRIVER", val: "oracle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(tt.key, tt.val)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
