package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vladimiradmaev/diabetes-backend/internal/database"
	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
)

// GlucoseRepository stores glucose readings.
type GlucoseRepository struct {
	db *gorm.DB
}

func NewGlucoseRepository(db *gorm.DB) *GlucoseRepository {
	return &GlucoseRepository{db: db}
}

// InsertResult counts the outcome of a batch insert.
type InsertResult struct {
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
}

// Insert stores readings, skipping any already recorded for the same user,
// timestamp, level and source.
func (r *GlucoseRepository) Insert(ctx context.Context, userID uint, samples []domain.GlucoseSample) (InsertResult, error) {
	if len(samples) == 0 {
		return InsertResult{}, nil
	}

	rows := make([]database.GlucoseRecord, 0, len(samples))
	for _, s := range samples {
		source := s.Source
		if source == "" {
			source = domain.SourceManual
		}
		rows = append(rows, database.GlucoseRecord{
			UserID:    userID,
			Timestamp: normalizeTime(s.Timestamp),
			Level:     s.Level,
			Source:    source,
			Trend:     s.Trend,
		})
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, 500)
	if result.Error != nil {
		return InsertResult{}, dbError(result.Error, "glucose record")
	}
	created := int(result.RowsAffected)
	return InsertResult{Created: created, Duplicates: len(samples) - created}, nil
}

// GlucoseSamples returns readings in [from, to], oldest first.
func (r *GlucoseRepository) GlucoseSamples(ctx context.Context, userID uint, from, to time.Time) ([]domain.GlucoseSample, error) {
	var rows []database.GlucoseRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND timestamp >= ? AND timestamp <= ?", userID, normalizeTime(from), normalizeTime(to)).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, dbError(err, "glucose record")
	}

	samples := make([]domain.GlucoseSample, 0, len(rows))
	for _, row := range rows {
		samples = append(samples, toSample(row))
	}
	return samples, nil
}

// Latest returns the most recent reading, or nil when the user has none.
func (r *GlucoseRepository) Latest(ctx context.Context, userID uint) (*domain.GlucoseSample, error) {
	var rows []database.GlucoseRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, dbError(err, "glucose record")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	s := toSample(rows[0])
	return &s, nil
}

func toSample(row database.GlucoseRecord) domain.GlucoseSample {
	return domain.GlucoseSample{
		Timestamp: row.Timestamp.UTC(),
		Level:     row.Level,
		Trend:     row.Trend,
		Source:    row.Source,
	}
}

// normalizeTime drops precision postgres does not store so identical
// readings compare equal.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
