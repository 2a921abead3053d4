package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/vladimiradmaev/diabetes-backend/internal/database"
	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
)

// UserRepository handles user data operations
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetOrCreateByTelegramID gets an existing user or creates a new one
func (r *UserRepository) GetOrCreateByTelegramID(ctx context.Context, telegramID int64, username, firstName, lastName string) (*database.User, error) {
	user := database.User{
		TelegramID: &telegramID,
		Username:   username,
		FirstName:  firstName,
		LastName:   lastName,
	}
	err := r.db.WithContext(ctx).
		Where("telegram_id = ?", telegramID).
		FirstOrCreate(&user).Error
	if err != nil {
		return nil, dbError(err, "user")
	}
	return &user, nil
}

// GetByID gets a user by primary key
func (r *UserRepository) GetByID(ctx context.Context, userID uint) (*database.User, error) {
	var user database.User
	if err := r.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, dbError(err, "user")
	}
	return &user, nil
}

// Profile returns the user's constants. Unknown users get an empty profile.
func (r *UserRepository) Profile(ctx context.Context, userID uint) (domain.UserProfile, error) {
	var user database.User
	err := r.db.WithContext(ctx).Limit(1).Find(&user, userID).Error
	if err != nil {
		return domain.UserProfile{}, dbError(err, "user")
	}
	return domain.UserProfile{
		CarbRatio:        user.CarbRatio,
		CorrectionFactor: user.CorrectionFactor,
		TargetMin:        user.TargetMin,
		TargetMax:        user.TargetMax,
	}, nil
}

// UpdateProfile stores the user's constants. Nil fields are cleared.
func (r *UserRepository) UpdateProfile(ctx context.Context, userID uint, p domain.UserProfile) error {
	result := r.db.WithContext(ctx).
		Model(&database.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"carb_ratio":        p.CarbRatio,
			"correction_factor": p.CorrectionFactor,
			"target_min":        p.TargetMin,
			"target_max":        p.TargetMax,
		})
	if result.Error != nil {
		return dbError(result.Error, "user")
	}
	if result.RowsAffected == 0 {
		return dbError(gorm.ErrRecordNotFound, "user")
	}
	return nil
}
