package config

import (
	"strings"
	"testing"
	"time"

	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"DB_HOST", "DB_NAME", "REDIS_HOST", "FORECAST_LOOKBACK_MINUTES",
		"FORECAST_MAX_CONCURRENT", "RATE_LIMIT_PER_MINUTE", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Forecast.LookbackMinutes != 240 {
		t.Errorf("LookbackMinutes = %d, want 240", cfg.Forecast.LookbackMinutes)
	}
	if cfg.Forecast.SanityMin != 40 || cfg.Forecast.SanityMax != 400 {
		t.Errorf("sanity band = [%v, %v], want [40, 400]", cfg.Forecast.SanityMin, cfg.Forecast.SanityMax)
	}
	if cfg.Redis.Enabled() {
		t.Error("redis should be disabled without REDIS_HOST")
	}
	if cfg.Logger.Level != logger.LevelInfo {
		t.Errorf("Level = %v, want info", cfg.Logger.Level)
	}
	if !strings.Contains(cfg.DB.DSN(), "dbname=diabetes_backend") {
		t.Errorf("DSN() = %q", cfg.DB.DSN())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("INSIGHT_CACHE_TTL", "2m")
	t.Setenv("FORECAST_MAX_CONCURRENT", "8")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Redis.Addr() != "cache:6380" {
		t.Errorf("Addr() = %q", cfg.Redis.Addr())
	}
	if cfg.Redis.InsightTTL != 2*time.Minute {
		t.Errorf("InsightTTL = %v", cfg.Redis.InsightTTL)
	}
	if cfg.Forecast.MaxConcurrent != 8 {
		t.Errorf("MaxConcurrent = %d", cfg.Forecast.MaxConcurrent)
	}
	if cfg.Logger.Level != logger.LevelDebug {
		t.Errorf("Level = %v, want debug", cfg.Logger.Level)
	}
}

func TestLoadReportsEveryProblem(t *testing.T) {
	t.Setenv("FORECAST_MAX_CONCURRENT", "lots")
	t.Setenv("FORECAST_SANITY_MIN", "500")
	t.Setenv("LOG_FORMAT", "xml")

	_, err := Load()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, want := range []string{"FORECAST_MAX_CONCURRENT", "FORECAST_SANITY_MIN", "LOG_FORMAT"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err.Error(), want)
		}
	}
}
