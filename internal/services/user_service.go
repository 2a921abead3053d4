package services

import (
	"context"

	"github.com/vladimiradmaev/diabetes-backend/internal/database"
	"github.com/vladimiradmaev/diabetes-backend/internal/repository"
)

type UserService struct {
	users *repository.UserRepository
}

func NewUserService(users *repository.UserRepository) *UserService {
	return &UserService{users: users}
}

// RegisterUser returns the user for a Telegram account, creating it on
// first contact.
func (s *UserService) RegisterUser(ctx context.Context, telegramID int64, username, firstName, lastName string) (*database.User, error) {
	return s.users.GetOrCreateByTelegramID(ctx, telegramID, username, firstName, lastName)
}

func (s *UserService) GetUser(ctx context.Context, userID uint) (*database.User, error) {
	return s.users.GetByID(ctx, userID)
}
