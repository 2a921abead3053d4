package repository

import (
	"errors"

	"gorm.io/gorm"

	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
)

// Store groups the repositories over one database handle.
type Store struct {
	db       *gorm.DB
	Users    *UserRepository
	Glucose  *GlucoseRepository
	Meals    *MealRepository
	Ratios   *RatioRepository
	Alerts   *AlertRepository
	Insights *InsightRepository
}

// NewStore creates all repositories over db.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:       db,
		Users:    NewUserRepository(db),
		Glucose:  NewGlucoseRepository(db),
		Meals:    NewMealRepository(db),
		Ratios:   NewRatioRepository(db),
		Alerts:   NewAlertRepository(db),
		Insights: NewInsightRepository(db),
	}
}

// GetDB returns the underlying GORM database instance
func (s *Store) GetDB() *gorm.DB {
	return s.db
}

// dbError maps gorm failures onto application errors.
func dbError(err error, kind string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NewNotFoundError(kind)
	}
	return apperrors.NewDatabaseError(err)
}
