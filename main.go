package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vladimiradmaev/diabetes-backend/internal/api"
	"github.com/vladimiradmaev/diabetes-backend/internal/bot"
	"github.com/vladimiradmaev/diabetes-backend/internal/bot/handlers"
	"github.com/vladimiradmaev/diabetes-backend/internal/bot/state"
	"github.com/vladimiradmaev/diabetes-backend/internal/cache"
	"github.com/vladimiradmaev/diabetes-backend/internal/config"
	"github.com/vladimiradmaev/diabetes-backend/internal/database"
	"github.com/vladimiradmaev/diabetes-backend/internal/forecast"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
	"github.com/vladimiradmaev/diabetes-backend/internal/metrics"
	"github.com/vladimiradmaev/diabetes-backend/internal/repository"
	"github.com/vladimiradmaev/diabetes-backend/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.InitWithConfig(logger.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()
	logger.Info("Starting diabetes backend", "http_addr", cfg.HTTP.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	store := repository.NewStore(db)

	var cacheStore cache.Store = cache.NewMemoryStore()
	if cfg.Redis.Enabled() {
		redisStore, err := cache.NewRedisStore(cfg.Redis, "diabetes:")
		if err != nil {
			logger.Warn("Redis unavailable, falling back to in-memory cache", "error", err)
		} else {
			defer redisStore.Close()
			cacheStore = redisStore
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	ensemble, err := forecast.NewEnsemble(forecast.LoadBackends(cfg.Forecast.ManifestPath), forecast.WithRecorder(collector))
	if err != nil {
		logger.Fatal("Failed to build prediction ensemble", "error", err)
	}

	history := repository.NewHistory(store)
	profileService := services.NewProfileService(store)
	glucoseService := services.NewGlucoseService(store, profileService, collector)
	insulinService := services.NewInsulinService(profileService, glucoseService, collector)
	forecastService := forecast.NewService(history, profileService, ensemble, forecast.ServiceConfig{
		Lookback:      time.Duration(cfg.Forecast.LookbackMinutes) * time.Minute,
		MaxConcurrent: int64(cfg.Forecast.MaxConcurrent),
		InferTimeout:  cfg.Forecast.InferTimeout,
		Band:          forecast.Band{Min: cfg.Forecast.SanityMin, Max: cfg.Forecast.SanityMax},
	})

	var analyzer services.FoodAnalyzer
	vision, err := services.NewVisionService(ctx, cfg.Gemini)
	if err != nil {
		logger.Warn("Photo analysis disabled", "error", err)
	} else {
		defer vision.Close()
		analyzer = vision
	}
	images := services.NewImageDownloader(30 * time.Second)

	mealService := services.NewMealService(store, analyzer, insulinService)
	insightService := services.NewInsightService(history, profileService, store.Insights, cacheStore, cfg.Redis.InsightTTL)
	glucoseService.SetInsightInvalidator(insightService)
	userService := services.NewUserService(store.Users)
	logger.Info("Services initialized", "models", forecastService.AvailableModels())

	server := api.NewServer(cfg.HTTP, api.Deps{
		Glucose:        glucoseService,
		Dose:           insulinService,
		Forecast:       forecastService,
		Insights:       insightService,
		Meals:          mealService,
		Profiles:       profileService,
		Images:         images,
		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			logger.Error("HTTP server stopped with error", "error", err)
			stop()
		}
	}()

	if cfg.TelegramToken != "" {
		telegramBot, err := bot.NewBot(cfg.TelegramToken, handlers.Dependencies{
			UserService: userService,
			GlucoseSvc:  glucoseService,
			DoseSvc:     insulinService,
			ForecastSvc: forecastService,
			InsightSvc:  insightService,
			MealSvc:     mealService,
			ProfileSvc:  profileService,
			Images:      images,
		}, state.NewManager(cacheStore, state.DefaultTTL))
		if err != nil {
			logger.Fatal("Failed to create bot", "error", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := telegramBot.Start(ctx); err != nil {
				logger.Error("Bot stopped with error", "error", err)
			}
		}()
	} else {
		logger.Info("TELEGRAM_BOT_TOKEN not set, bot disabled")
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	wg.Wait()
	logger.Info("Stopped")
}
