package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/vladimiradmaev/diabetes-backend/internal/config"
	"github.com/vladimiradmaev/diabetes-backend/internal/forecast"
)

func main() {
	fmt.Println("🔍 Проверка конфигурации...")

	if err := godotenv.Load(); err != nil {
		fmt.Printf("⚠️  .env файл не найден: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Ошибка валидации конфигурации:\n%v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Конфигурация валидна!")
	fmt.Println("📋 Детали конфигурации:")
	for _, line := range summary(cfg) {
		fmt.Println("  - " + line)
	}

	if cfg.Forecast.ManifestPath == "" {
		return
	}
	m, err := forecast.LoadManifest(cfg.Forecast.ManifestPath)
	if err != nil {
		fmt.Printf("⚠️  Манифест моделей недоступен, будет использована только простая модель: %v\n", err)
		return
	}
	fmt.Printf("🧠 Модели в манифесте: %d\n", len(m.Backends))
	for _, b := range m.Backends {
		state := "включена"
		if b.Enabled != nil && !*b.Enabled {
			state = "выключена"
		}
		fmt.Printf("  - %s (%s, %s): %s\n", b.Name, b.Kind, b.Path, state)
	}
}

func summary(cfg *config.Config) []string {
	redis := "выключен"
	if cfg.Redis.Enabled() {
		redis = cfg.Redis.Addr()
	}
	return []string{
		"Telegram Token: " + maskToken(cfg.TelegramToken),
		"Gemini API Key: " + maskToken(cfg.Gemini.APIKey),
		"Gemini Model: " + cfg.Gemini.Model,
		fmt.Sprintf("DB: %s@%s:%s/%s", cfg.DB.User, cfg.DB.Host, cfg.DB.Port, cfg.DB.DBName),
		"DB Password: " + maskToken(cfg.DB.Password),
		"Redis: " + redis,
		fmt.Sprintf("HTTP: %s (лимит %d запросов/мин)", cfg.HTTP.Addr, cfg.HTTP.RequestsPerMinute),
		fmt.Sprintf("Forecast: lookback %d мин, параллельно %d", cfg.Forecast.LookbackMinutes, cfg.Forecast.MaxConcurrent),
		fmt.Sprintf("Log: %v / %s / %s", cfg.Logger.Level, cfg.Logger.OutputPath, cfg.Logger.Format),
	}
}

func maskToken(token string) string {
	if token == "" {
		return "<не установлен>"
	}
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
