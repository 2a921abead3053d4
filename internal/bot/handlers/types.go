package handlers

import (
	"github.com/vladimiradmaev/diabetes-backend/internal/bot/menus"
	"github.com/vladimiradmaev/diabetes-backend/internal/interfaces"
)

// Sender is the Telegram API surface the handlers need.
type Sender = menus.Sender

// Dependencies holds all service dependencies for handlers
type Dependencies struct {
	UserService interfaces.UserServiceInterface
	GlucoseSvc  interfaces.GlucoseServiceInterface
	DoseSvc     interfaces.DoseServiceInterface
	ForecastSvc interfaces.ForecastServiceInterface
	InsightSvc  interfaces.InsightServiceInterface
	MealSvc     interfaces.MealServiceInterface
	ProfileSvc  interfaces.ProfileServiceInterface
	Images      interfaces.ImageFetcher
}
