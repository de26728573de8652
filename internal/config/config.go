package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config - все настройки сервера; значения по умолчанию совпадают
// с боевыми константами (таймаут очереди 10с, задержка бота 800мс,
// окно реконнекта 30с, heartbeat 30с)
type Config struct {
	AppPort       string
	DatabaseURL   string
	RedisAddr     string
	KafkaBroker   string
	AllowedOrigin string

	LogLevel  string
	LogFormat string

	QueueTimeout      time.Duration
	BotMoveDelay      time.Duration
	ReconnectGrace    time.Duration
	HeartbeatInterval time.Duration

	LeaderboardTTL time.Duration
}

func Load() *Config {
	// .env опционален; в проде переменные приходят из окружения
	_ = godotenv.Load()

	return &Config{
		AppPort:       getEnv("APP_PORT", "3001"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		KafkaBroker:   os.Getenv("KAFKA_BROKER"),
		AllowedOrigin: os.Getenv("ALLOWED_ORIGIN"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		QueueTimeout:      getDuration("QUEUE_TIMEOUT", 10*time.Second),
		BotMoveDelay:      getDuration("BOT_MOVE_DELAY", 800*time.Millisecond),
		ReconnectGrace:    getDuration("RECONNECT_GRACE", 30*time.Second),
		HeartbeatInterval: getDuration("HEARTBEAT_INTERVAL", 30*time.Second),

		LeaderboardTTL: getDuration("LEADERBOARD_TTL", 30*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// принимает форматы time.ParseDuration ("800ms", "30s") либо целые секунды
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
