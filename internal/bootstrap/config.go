package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/infra/setup"
)

// Config 结构体用于存储从环境变量或 .env 文件加载的配置
type Config struct {
	DB              setup.DBConfig
	Redis           setup.RedisConfig
	KeyPrefix       string // Redis key / 频道前缀
	JWTSecret       string
	ServerPort      string
	LogLevel        string
	AppEnv          string // development / production
	CORSOrigin      string
	RoomLockTimeout time.Duration
	ActiveWindow    time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
	SweepSchedule   string // 结算补偿任务周期，asynq cron 语法
}

// IsProduction 是否为生产环境
func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)，已有的环境变量不会被覆盖
	_ = godotenv.Load()

	cfg := &Config{
		DB: setup.DBConfig{
			Driver:     getEnv("DB_DRIVER", setup.DriverMySQL),
			User:       os.Getenv("DB_USER"),
			Password:   os.Getenv("DB_PASSWORD"),
			Host:       getEnv("DB_HOST", "127.0.0.1"),
			Port:       getEnv("DB_PORT", "3306"),
			Name:       os.Getenv("DB_NAME"),
			SQLitePath: getEnv("SQLITE_PATH", "tictactoe.db"),
		},
		Redis: setup.RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		KeyPrefix:     getEnv("REDIS_KEY_PREFIX", "ttt:"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		AppEnv:        getEnv("APP_ENV", "development"),
		CORSOrigin:    os.Getenv("CORS_ALLOWED_ORIGIN"),
		SweepSchedule: getEnv("SETTLEMENT_SWEEP_SCHEDULE", "@every 1m"),
	}

	var err error
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = getEnvInt("RATE_LIMIT_MAX", 100); err != nil {
		return nil, err
	}
	if cfg.RoomLockTimeout, err = getEnvDuration("ROOM_LOCK_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ActiveWindow, err = getEnvDuration("ROOM_ACTIVE_WINDOW", time.Hour); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = getEnvDuration("RATE_LIMIT_WINDOW", time.Second); err != nil {
		return nil, err
	}
	cfg.DB.LogSQL = !cfg.IsProduction() && cfg.LogLevel == "debug"

	// --- 必要检查 ---
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	if cfg.RateLimitMax <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", cfg.RateLimitMax)
	}
	if _, err := cfg.DB.DSN(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("environment variable %s must be a positive duration such as 5s", key)
	}
	return v, nil
}
