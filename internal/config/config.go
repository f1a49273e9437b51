package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cache backends
const (
	CacheBackendFile  = "file"
	CacheBackendRedis = "redis"
)

// History sources
const (
	HistorySourceStats    = "stats"
	HistorySourcePostgres = "postgres"
)

type Config struct {
	// Server
	Port int
	Env  string

	// CORS
	AllowedOrigins []string

	// Database URLs. ClickHouse is optional and enables the prediction audit log.
	PostgresURL   string
	ClickHouseURL string
	RedisURL      string

	// Worker pool
	WorkerCount int
	QueueSize   int
	JobTimeout  time.Duration

	// Prediction recorder
	RecorderBatchSize     int
	RecorderFlushInterval time.Duration

	// Cache
	CacheBackend       string
	CacheDir           string
	CacheFlushInterval time.Duration
	GameTTL            time.Duration
	SlateTTL           time.Duration
	PlayerTTL          time.Duration
	ErrorTTL           time.Duration

	// Data sources
	Seasons       []string
	HistorySource string
	StatsBaseURL  string
	ScoreboardURL string
	InjuryURL     string

	// Models
	WinModelPath    string
	PointsModelPath string
	PlayerModelPath string

	// Predictions
	WarmupSchedule     string
	Timezone           *time.Location
	RotationMinMinutes float64
	PropsThreshold     float64
	BatchLimit         int
}

// Load loads configuration from environment variables, reading a .env file
// first when one exists. It returns an error if critical configuration is
// missing.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		Port: getEnvInt("PORT", 8080),
		Env:  getEnv("ENV", "development"),

		PostgresURL:   getEnv("POSTGRES_URL", ""),
		ClickHouseURL: getEnv("CLICKHOUSE_URL", ""),
		RedisURL:      getEnv("REDIS_URL", ""),

		WorkerCount: getEnvInt("WORKER_COUNT", 4),
		QueueSize:   getEnvInt("QUEUE_SIZE", 256),
		JobTimeout:  getEnvDuration("JOB_TIMEOUT", 30*time.Second),

		RecorderBatchSize:     getEnvInt("RECORDER_BATCH_SIZE", 500),
		RecorderFlushInterval: getEnvDuration("RECORDER_FLUSH_INTERVAL", 5*time.Second),

		CacheBackend:       strings.ToLower(getEnv("CACHE_BACKEND", CacheBackendFile)),
		CacheDir:           getEnv("CACHE_DIR", "cache"),
		CacheFlushInterval: getEnvDuration("CACHE_FLUSH_INTERVAL", 30*time.Second),
		GameTTL:            getEnvDuration("GAME_PREDICTION_TTL", 30*time.Minute),
		SlateTTL:           getEnvDuration("SLATE_PREDICTION_TTL", 10*time.Minute),
		PlayerTTL:          getEnvDuration("PLAYER_PREDICTION_TTL", 30*time.Minute),
		ErrorTTL:           getEnvDuration("ERROR_PREDICTION_TTL", 5*time.Minute),

		Seasons:       getEnvList("SEASONS", "2023-24,2024-25"),
		HistorySource: strings.ToLower(getEnv("HISTORY_SOURCE", HistorySourceStats)),
		StatsBaseURL:  getEnv("STATS_BASE_URL", "https://stats.nba.com/stats"),
		ScoreboardURL: getEnv("SCOREBOARD_URL", "https://cdn.nba.com/static/json/liveData/scoreboard/todaysScoreboard_00.json"),
		InjuryURL:     getEnv("INJURY_URL", ""),

		WinModelPath:    getEnv("WIN_MODEL_PATH", "models/win_model.json"),
		PointsModelPath: getEnv("POINTS_MODEL_PATH", ""),
		PlayerModelPath: getEnv("PLAYER_MODEL_PATH", ""),

		WarmupSchedule:     getEnv("WARMUP_SCHEDULE", ""),
		RotationMinMinutes: getEnvFloat("ROTATION_MIN_MINUTES", 0),
		PropsThreshold:     getEnvFloat("PROPS_THRESHOLD", 15),
		BatchLimit:         getEnvInt("BATCH_LIMIT", 25),
	}

	// CORS
	origins := getEnv("ALLOWED_ORIGINS", "http://localhost:3000")
	for _, o := range strings.Split(origins, ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "America/New_York"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Timezone = loc

	if len(cfg.Seasons) == 0 {
		return nil, errors.New("SEASONS must list at least one season")
	}

	switch cfg.CacheBackend {
	case CacheBackendFile:
	case CacheBackendRedis:
		if cfg.RedisURL, err = getEnvRequired("REDIS_URL"); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown CACHE_BACKEND %q", cfg.CacheBackend)
	}

	switch cfg.HistorySource {
	case HistorySourceStats:
	case HistorySourcePostgres:
		if cfg.PostgresURL, err = getEnvRequired("POSTGRES_URL"); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown HISTORY_SOURCE %q", cfg.HistorySource)
	}

	return cfg, nil
}

// CurrentSeason is the most recent configured season; today's games are
// labelled with it.
func (c *Config) CurrentSeason() string {
	return c.Seasons[len(c.Seasons)-1]
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvRequired(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("missing required environment variable: %s", key)
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, fallback), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
