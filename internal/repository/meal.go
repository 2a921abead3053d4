package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/vladimiradmaev/diabetes-backend/internal/database"
	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
)

// MealRepository stores meal entries.
type MealRepository struct {
	db *gorm.DB
}

func NewMealRepository(db *gorm.DB) *MealRepository {
	return &MealRepository{db: db}
}

// Create stores a meal entry and fills in its ID.
func (r *MealRepository) Create(ctx context.Context, entry *database.MealEntry) error {
	entry.Timestamp = normalizeTime(entry.Timestamp)
	if entry.MealType == "" {
		entry.MealType = domain.MealLunch
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return dbError(err, "meal")
	}
	return nil
}

// MealRecords returns meals in [from, to], oldest first.
func (r *MealRepository) MealRecords(ctx context.Context, userID uint, from, to time.Time) ([]domain.MealRecord, error) {
	var rows []database.MealEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND timestamp >= ? AND timestamp <= ?", userID, normalizeTime(from), normalizeTime(to)).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, dbError(err, "meal")
	}

	records := make([]domain.MealRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, domain.MealRecord{
			ID:        row.ID,
			Timestamp: row.Timestamp.UTC(),
			MealType:  row.MealType,
			FoodName:  row.FoodName,
			Carbs:     row.Carbs,
			Insulin:   row.InsulinUnits,
		})
	}
	return records, nil
}

// History reads glucose and meal history for the forecaster and insights.
type History struct {
	*GlucoseRepository
	*MealRepository
}

var _ domain.HistoryReader = History{}

func NewHistory(store *Store) History {
	return History{GlucoseRepository: store.Glucose, MealRepository: store.Meals}
}

// Recent returns up to limit meals logged since the given time, newest first.
func (r *MealRepository) Recent(ctx context.Context, userID uint, since time.Time, limit int) ([]database.MealEntry, error) {
	var rows []database.MealEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND timestamp >= ?", userID, normalizeTime(since)).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, dbError(err, "meal")
	}
	return rows, nil
}

// Get returns one meal owned by the user.
func (r *MealRepository) Get(ctx context.Context, userID, mealID uint) (*database.MealEntry, error) {
	var row database.MealEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, mealID).
		First(&row).Error
	if err != nil {
		return nil, dbError(err, "meal")
	}
	return &row, nil
}
