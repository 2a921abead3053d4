package interfaces

import (
	"context"
	"time"

	"github.com/vladimiradmaev/diabetes-backend/internal/database"
	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
	"github.com/vladimiradmaev/diabetes-backend/internal/forecast"
	"github.com/vladimiradmaev/diabetes-backend/internal/insights"
	"github.com/vladimiradmaev/diabetes-backend/internal/insulin"
	"github.com/vladimiradmaev/diabetes-backend/internal/services"
)

// UserServiceInterface defines the contract for user operations
type UserServiceInterface interface {
	RegisterUser(ctx context.Context, telegramID int64, username, firstName, lastName string) (*database.User, error)
}

// GlucoseServiceInterface defines the contract for glucose ingestion
type GlucoseServiceInterface interface {
	AddManual(ctx context.Context, userID uint, level float64) (*services.IngestResult, error)
	Ingest(ctx context.Context, userID uint, source string, readings []services.Reading) (*services.IngestResult, error)
	IngestWebhook(ctx context.Context, userID uint, r services.Reading) (*services.IngestResult, error)
	Latest(ctx context.Context, userID uint) (*domain.GlucoseSample, error)
}

// DoseServiceInterface defines the contract for bolus calculation
type DoseServiceInterface interface {
	Calculate(ctx context.Context, userID uint, in insulin.Input) insulin.DoseRecommendation
	CalculateForMeal(ctx context.Context, userID uint, carbs float64) (insulin.DoseRecommendation, *float64)
}

// ForecastServiceInterface defines the contract for glucose forecasting
type ForecastServiceInterface interface {
	PredictForUser(ctx context.Context, userID uint, model string, lookback time.Duration) (*forecast.Result, error)
	PredictAfterMeal(ctx context.Context, userID uint, meal forecast.MealInput, model string, lookback time.Duration) (*forecast.Result, error)
	Status() map[string]bool
	AvailableModels() []string
}

// InsightServiceInterface defines the contract for reports
type InsightServiceInterface interface {
	Insights(ctx context.Context, userID uint, days int) (*insights.Snapshot, error)
	LastReport(ctx context.Context, userID uint) (*insights.Snapshot, error)
	Statistics(ctx context.Context, userID uint, start, end string) (insights.RangeStatistics, error)
}

// MealServiceInterface defines the contract for meal logging and photo analysis
type MealServiceInterface interface {
	AnalyzePhoto(ctx context.Context, userID uint, image []byte, weight float64, mealType string) (*services.MealResult, error)
	LogMeal(ctx context.Context, userID uint, m services.MealLog) (*services.MealResult, error)
	ListMeals(ctx context.Context, userID uint, days, limit int) ([]services.MealView, error)
	GetMeal(ctx context.Context, userID, mealID uint) (*services.MealView, error)
}

// ProfileServiceInterface defines the contract for profile and carb ratio periods
type ProfileServiceInterface interface {
	Profile(ctx context.Context, userID uint) (domain.UserProfile, error)
	UpdateProfile(ctx context.Context, userID uint, p domain.UserProfile) error
	Ratios(ctx context.Context, userID uint) ([]domain.CarbRatioPeriod, error)
	AddRatio(ctx context.Context, userID uint, startTime, endTime string, ratio float64) (domain.CarbRatioPeriod, error)
	UpdateRatio(ctx context.Context, userID, ratioID uint, startTime, endTime string, ratio float64) error
	DeleteRatio(ctx context.Context, userID, ratioID uint) error
}

// ImageFetcher downloads an image by URL
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

var (
	_ UserServiceInterface     = (*services.UserService)(nil)
	_ GlucoseServiceInterface  = (*services.GlucoseService)(nil)
	_ DoseServiceInterface     = (*services.InsulinService)(nil)
	_ ForecastServiceInterface = (*forecast.Service)(nil)
	_ InsightServiceInterface  = (*services.InsightService)(nil)
	_ MealServiceInterface     = (*services.MealService)(nil)
	_ ProfileServiceInterface  = (*services.ProfileService)(nil)
	_ ImageFetcher             = (*services.ImageDownloader)(nil)
)
