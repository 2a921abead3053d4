package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vladimiradmaev/diabetes-backend/internal/cache"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
)

// User states constants
const (
	None                 = "none"
	WaitingForGlucose    = "waiting_for_glucose"
	WaitingForMealPhoto  = "waiting_for_meal_photo"
	WaitingForTimePeriod = "waiting_for_time_period"
	WaitingForRatio      = "waiting_for_ratio"
)

// DefaultTTL clears conversations abandoned for a day.
const DefaultTTL = 24 * time.Hour

// session is what is persisted per chat user.
type session struct {
	State string            `json:"state"`
	Data  map[string]string `json:"data,omitempty"`
}

// Manager keeps conversation state in a cache store so it survives restarts
// when the store is Redis.
type Manager struct {
	store cache.Store
	ttl   time.Duration
}

// NewManager creates a state manager over store.
func NewManager(store cache.Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl}
}

func key(telegramID int64) string {
	return fmt.Sprintf("bot:user:%d:session", telegramID)
}

func (m *Manager) load(ctx context.Context, telegramID int64) (session, error) {
	var s session
	err := cache.GetJSON(ctx, m.store, key(telegramID), &s)
	if errors.Is(err, cache.ErrMiss) {
		return session{State: None}, nil
	}
	if err != nil {
		return session{State: None}, err
	}
	if s.State == "" {
		s.State = None
	}
	return s, nil
}

func (m *Manager) save(ctx context.Context, telegramID int64, s session) error {
	return cache.SetJSON(ctx, m.store, key(telegramID), s, m.ttl)
}

// GetUserState returns the user's state, None when unknown or unreadable.
func (m *Manager) GetUserState(ctx context.Context, telegramID int64) string {
	s, err := m.load(ctx, telegramID)
	if err != nil {
		logger.WithContext(ctx).Warn("failed to load bot session", "telegram_id", telegramID, "error", err)
	}
	return s.State
}

// SetUserState changes the user's state and keeps temporary data.
func (m *Manager) SetUserState(ctx context.Context, telegramID int64, state string) error {
	s, err := m.load(ctx, telegramID)
	if err != nil {
		return err
	}
	s.State = state
	return m.save(ctx, telegramID, s)
}

// SetTempData stores a value for the current conversation.
func (m *Manager) SetTempData(ctx context.Context, telegramID int64, name, value string) error {
	s, err := m.load(ctx, telegramID)
	if err != nil {
		return err
	}
	if s.Data == nil {
		s.Data = make(map[string]string)
	}
	s.Data[name] = value
	return m.save(ctx, telegramID, s)
}

// GetTempData returns a stored value.
func (m *Manager) GetTempData(ctx context.Context, telegramID int64, name string) (string, bool) {
	s, err := m.load(ctx, telegramID)
	if err != nil {
		return "", false
	}
	v, ok := s.Data[name]
	return v, ok
}

// Reset drops state and temporary data.
func (m *Manager) Reset(ctx context.Context, telegramID int64) error {
	return m.store.Delete(ctx, key(telegramID))
}
