package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/vladimiradmaev/diabetes-backend/internal/database"
	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
)

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create stores an alert for the user.
func (r *AlertRepository) Create(ctx context.Context, userID uint, a domain.Alert, level float64) (domain.Alert, error) {
	row := database.Alert{
		UserID:    userID,
		Type:      a.Type,
		Message:   a.Message,
		Level:     level,
		Timestamp: normalizeTime(a.Timestamp),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Alert{}, dbError(err, "alert")
	}
	a.ID = row.ID
	return a, nil
}

// LastOfType returns the newest alert of a type, or nil.
func (r *AlertRepository) LastOfType(ctx context.Context, userID uint, alertType string) (*domain.Alert, error) {
	var rows []database.Alert
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, alertType).
		Order("timestamp DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, dbError(err, "alert")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &domain.Alert{
		ID:        rows[0].ID,
		Type:      rows[0].Type,
		Message:   rows[0].Message,
		Timestamp: rows[0].Timestamp.UTC(),
	}, nil
}
