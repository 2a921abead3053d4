package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
)

type Config struct {
	TelegramToken string
	Gemini        GeminiConfig
	DB            DBConfig
	Redis         RedisConfig
	HTTP          HTTPConfig
	Forecast      ForecastConfig
	Logger        LoggerConfig
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// InsightTTL bounds how long a cached insight snapshot is served.
	InsightTTL time.Duration
}

// Enabled reports whether a Redis host was configured.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RequestsPerMinute is the per-user budget on /api routes.
	RequestsPerMinute int
	Burst             int
}

type ForecastConfig struct {
	ManifestPath    string
	LookbackMinutes int
	MaxConcurrent   int
	SanityMin       float64
	SanityMax       float64
	InferTimeout    time.Duration
}

type LoggerConfig struct {
	Level      logger.LogLevel
	OutputPath string
	Format     string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// loader accumulates parse problems so Validate can report all of them at once.
type loader struct {
	problems []string
}

func (l *loader) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		l.problems = append(l.problems, fmt.Sprintf("%s: %q is not an integer", key, raw))
		return def
	}
	return v
}

func (l *loader) float(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		l.problems = append(l.problems, fmt.Sprintf("%s: %q is not a number", key, raw))
		return def
	}
	return v
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		l.problems = append(l.problems, fmt.Sprintf("%s: %q is not a duration", key, raw))
		return def
	}
	return v
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.LevelDebug
	case "info":
		return logger.LevelInfo
	case "warn", "warning":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}

func Load() (*Config, error) {
	l := &loader{}

	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		},
		DB: DBConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvOrDefault("DB_PORT", "5432"),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", "postgres"),
			DBName:   getEnvOrDefault("DB_NAME", "diabetes_backend"),
			SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:       os.Getenv("REDIS_HOST"),
			Port:       getEnvOrDefault("REDIS_PORT", "6379"),
			Password:   os.Getenv("REDIS_PASSWORD"),
			DB:         l.int("REDIS_DB", 0),
			InsightTTL: l.duration("INSIGHT_CACHE_TTL", 15*time.Minute),
		},
		HTTP: HTTPConfig{
			Addr:              getEnvOrDefault("HTTP_ADDR", ":8080"),
			ReadTimeout:       l.duration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      l.duration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout:   l.duration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestsPerMinute: l.int("RATE_LIMIT_PER_MINUTE", 120),
			Burst:             l.int("RATE_LIMIT_BURST", 30),
		},
		Forecast: ForecastConfig{
			ManifestPath:    getEnvOrDefault("FORECAST_MANIFEST", "models/manifest.yaml"),
			LookbackMinutes: l.int("FORECAST_LOOKBACK_MINUTES", 240),
			MaxConcurrent:   l.int("FORECAST_MAX_CONCURRENT", 4),
			SanityMin:       l.float("FORECAST_SANITY_MIN", 40),
			SanityMax:       l.float("FORECAST_SANITY_MAX", 400),
			InferTimeout:    l.duration("FORECAST_TIMEOUT", 5*time.Second),
		},
		Logger: LoggerConfig{
			Level:      parseLogLevel(getEnvOrDefault("LOG_LEVEL", "info")),
			OutputPath: getEnvOrDefault("LOG_OUTPUT", "stdout"),
			Format:     getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(l.problems); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that Load cannot express through defaults.
func (c *Config) Validate() error {
	return c.validate(nil)
}

func (c *Config) validate(problems []string) error {
	if c.Forecast.LookbackMinutes < 5 {
		problems = append(problems, "FORECAST_LOOKBACK_MINUTES must be at least 5")
	}
	if c.Forecast.MaxConcurrent < 1 {
		problems = append(problems, "FORECAST_MAX_CONCURRENT must be positive")
	}
	if c.Forecast.SanityMin >= c.Forecast.SanityMax {
		problems = append(problems, "FORECAST_SANITY_MIN must be below FORECAST_SANITY_MAX")
	}
	if c.HTTP.RequestsPerMinute < 1 {
		problems = append(problems, "RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.HTTP.Burst < 1 {
		problems = append(problems, "RATE_LIMIT_BURST must be positive")
	}
	if c.DB.Host == "" || c.DB.DBName == "" {
		problems = append(problems, "DB_HOST and DB_NAME are required")
	}
	if c.Logger.Format != "json" && c.Logger.Format != "text" {
		problems = append(problems, fmt.Sprintf("LOG_FORMAT: %q must be json or text", c.Logger.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// DSN renders the postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Addr returns host:port for the Redis client.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}
