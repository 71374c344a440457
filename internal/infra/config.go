package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Queue driver names accepted by QUEUE_DRIVER.
const (
	QueueDriverPostgres = "postgres"
	QueueDriverRedis    = "redis"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	AutoMigrate bool
	DBMaxConns  int
	DBMinConns  int

	QueueDriver  string
	QueueChannel string
	RedisAddr    string
	RedisQueue   string

	GeminiAPIKey   string
	GeminiModel    string
	GeminiBaseURL  string
	GeminiTimeout  time.Duration
	GenTemperature float64
	GenMaxTokens   int
	GenItemCount   int

	WorkerConcurrency int
	SweepInterval     time.Duration
	SweepMinAge       time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	AllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		AutoMigrate: getEnvBool("AUTO_MIGRATE", false),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns:  getEnvInt("DB_MIN_CONNS", 1),

		QueueDriver:  getEnv("QUEUE_DRIVER", QueueDriverPostgres),
		QueueChannel: getEnv("QUEUE_CHANNEL", "generation_jobs"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		RedisQueue:   getEnv("REDIS_QUEUE", "generation:jobs"),

		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL:  getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiTimeout:  time.Second * time.Duration(getEnvInt("GEMINI_TIMEOUT_SECONDS", 30)),
		GenTemperature: getEnvFloat("GEN_TEMPERATURE", 0.7),
		GenMaxTokens:   getEnvInt("GEN_MAX_OUTPUT_TOKENS", 2048),
		GenItemCount:   getEnvInt("GEN_ITEM_COUNT", 5),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		SweepInterval:     time.Second * time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 30)),
		SweepMinAge:       time.Second * time.Duration(getEnvInt("SWEEP_MIN_AGE_SECONDS", 60)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", nil),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	switch cfg.QueueDriver {
	case QueueDriverPostgres, QueueDriverRedis:
	default:
		return nil, fmt.Errorf("QUEUE_DRIVER must be %q or %q, got %q", QueueDriverPostgres, QueueDriverRedis, cfg.QueueDriver)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
