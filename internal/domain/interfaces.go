package domain

import (
	"context"
	"time"
)

// HistoryReader provides a user's readings and meals for a time range,
// ordered by timestamp ascending.
type HistoryReader interface {
	GlucoseSamples(ctx context.Context, userID uint, from, to time.Time) ([]GlucoseSample, error)
	MealRecords(ctx context.Context, userID uint, from, to time.Time) ([]MealRecord, error)
}

// ProfileProvider returns the user's constants. Unknown users get an empty profile.
type ProfileProvider interface {
	Profile(ctx context.Context, userID uint) (UserProfile, error)
}

// BotService handles telegram bot operations
type BotService interface {
	Start(ctx context.Context) error
}
