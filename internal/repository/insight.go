package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vladimiradmaev/diabetes-backend/internal/database"
)

// InsightRepository persists the latest insight report per user.
type InsightRepository struct {
	db *gorm.DB
}

func NewInsightRepository(db *gorm.DB) *InsightRepository {
	return &InsightRepository{db: db}
}

// Save upserts the user's report.
func (r *InsightRepository) Save(ctx context.Context, report *database.InsightReport) error {
	report.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"days", "avg_glucose", "most_frequent_meal_type", "time_of_day_with_spikes", "payload", "updated_at",
			}),
		}).
		Create(report).Error
	return dbError(err, "insight report")
}

// Get returns the stored report for the user.
func (r *InsightRepository) Get(ctx context.Context, userID uint) (*database.InsightReport, error) {
	var report database.InsightReport
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&report).Error; err != nil {
		return nil, dbError(err, "insight report")
	}
	return &report, nil
}

// NewInsightReport wraps a marshaled snapshot for storage.
func NewInsightReport(userID uint, days int, payload []byte) *database.InsightReport {
	return &database.InsightReport{
		UserID:  userID,
		Days:    days,
		Payload: datatypes.JSON(payload),
	}
}
