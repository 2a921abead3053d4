package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/vladimiradmaev/diabetes-backend/internal/database"
	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
)

// RatioRepository stores time-of-day carb ratio periods.
type RatioRepository struct {
	db *gorm.DB
}

func NewRatioRepository(db *gorm.DB) *RatioRepository {
	return &RatioRepository{db: db}
}

// List returns the user's periods ordered by start time. excludeID skips
// one period when non-zero.
func (r *RatioRepository) List(ctx context.Context, userID uint, excludeID uint) ([]domain.CarbRatioPeriod, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if excludeID != 0 {
		q = q.Where("id != ?", excludeID)
	}

	var rows []database.CarbRatioPeriod
	if err := q.Order("start_time ASC").Find(&rows).Error; err != nil {
		return nil, dbError(err, "carb ratio")
	}

	periods := make([]domain.CarbRatioPeriod, 0, len(rows))
	for _, row := range rows {
		periods = append(periods, domain.CarbRatioPeriod{
			ID:        row.ID,
			StartTime: row.StartTime,
			EndTime:   row.EndTime,
			Ratio:     row.Ratio,
		})
	}
	return periods, nil
}

// Create stores a period and returns it with its ID.
func (r *RatioRepository) Create(ctx context.Context, userID uint, p domain.CarbRatioPeriod) (domain.CarbRatioPeriod, error) {
	row := database.CarbRatioPeriod{
		UserID:    userID,
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
		Ratio:     p.Ratio,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.CarbRatioPeriod{}, dbError(err, "carb ratio")
	}
	p.ID = row.ID
	return p, nil
}

// Update replaces a period's bounds and ratio.
func (r *RatioRepository) Update(ctx context.Context, userID uint, p domain.CarbRatioPeriod) error {
	result := r.db.WithContext(ctx).
		Model(&database.CarbRatioPeriod{}).
		Where("user_id = ? AND id = ?", userID, p.ID).
		Updates(map[string]interface{}{
			"start_time": p.StartTime,
			"end_time":   p.EndTime,
			"ratio":      p.Ratio,
		})
	if result.Error != nil {
		return dbError(result.Error, "carb ratio")
	}
	if result.RowsAffected == 0 {
		return dbError(gorm.ErrRecordNotFound, "carb ratio")
	}
	return nil
}

// Delete removes one of the user's periods.
func (r *RatioRepository) Delete(ctx context.Context, userID, ratioID uint) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, ratioID).
		Delete(&database.CarbRatioPeriod{})
	if result.Error != nil {
		return dbError(result.Error, "carb ratio")
	}
	if result.RowsAffected == 0 {
		return dbError(gorm.ErrRecordNotFound, "carb ratio")
	}
	return nil
}
