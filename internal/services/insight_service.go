package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladimiradmaev/diabetes-backend/internal/cache"
	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
	"github.com/vladimiradmaev/diabetes-backend/internal/insights"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
	"github.com/vladimiradmaev/diabetes-backend/internal/repository"
)

// MaxInsightDays bounds the insight window.
const MaxInsightDays = 90

// InsightService builds insight reports, stores the latest one per user and
// caches snapshots for a short time.
type InsightService struct {
	history  domain.HistoryReader
	profiles domain.ProfileProvider
	reports  *repository.InsightRepository
	cache    cache.Store
	ttl      time.Duration
	now      func() time.Time
}

func NewInsightService(history domain.HistoryReader, profiles domain.ProfileProvider, reports *repository.InsightRepository, store cache.Store, ttl time.Duration) *InsightService {
	if store == nil {
		store = cache.NewMemoryStore()
	}
	return &InsightService{
		history:  history,
		profiles: profiles,
		reports:  reports,
		cache:    store,
		ttl:      ttl,
		now:      time.Now,
	}
}

func insightGenerationKey(userID uint) string {
	return fmt.Sprintf("insights:%d:gen", userID)
}

// insightKey embeds the user's cache generation, so bumping the generation
// drops every cached window at once.
func (s *InsightService) insightKey(ctx context.Context, userID uint, days int) string {
	gen := "0"
	if data, err := s.cache.Get(ctx, insightGenerationKey(userID)); err == nil {
		gen = string(data)
	}
	return fmt.Sprintf("insights:%d:%s:%d", userID, gen, days)
}

// Invalidate drops the user's cached snapshots. It is called after new
// readings are stored.
func (s *InsightService) Invalidate(ctx context.Context, userID uint) error {
	return s.cache.Set(ctx, insightGenerationKey(userID), []byte(uuid.NewString()), 0)
}

// Insights returns the snapshot for the last days days. A zero value uses
// the default window.
func (s *InsightService) Insights(ctx context.Context, userID uint, days int) (*insights.Snapshot, error) {
	if days == 0 {
		days = insights.DefaultDays
	}
	if days < 0 || days > MaxInsightDays {
		return nil, apperrors.NewValidationError(fmt.Sprintf("days must be between 1 and %d", MaxInsightDays))
	}
	log := logger.WithContext(ctx)

	key := s.insightKey(ctx, userID, days)
	var cached insights.Snapshot
	err := cache.GetJSON(ctx, s.cache, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		log.Warn("Insight cache read failed", "user_id", userID, "error", err)
	}

	now := s.now()
	from, to := insights.Window(days, now)
	samples, err := s.history.GlucoseSamples(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	meals, err := s.history.MealRecords(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.Profile(ctx, userID)
	if err != nil {
		log.Warn("Using default insight thresholds", "user_id", userID, "error", err)
		profile = domain.UserProfile{}
	}

	snap := insights.Aggregate(samples, meals, insights.ResolveThresholds(profile), days, now)

	if err := s.saveReport(ctx, userID, snap); err != nil {
		log.Warn("Failed to persist insight report", "user_id", userID, "error", err)
	}
	if err := cache.SetJSON(ctx, s.cache, key, snap, s.ttl); err != nil {
		log.Warn("Insight cache write failed", "user_id", userID, "error", err)
	}
	return &snap, nil
}

// LastReport returns the most recently stored snapshot.
func (s *InsightService) LastReport(ctx context.Context, userID uint) (*insights.Snapshot, error) {
	report, err := s.reports.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	var snap insights.Snapshot
	if err := json.Unmarshal(report.Payload, &snap); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &snap, nil
}

// Statistics summarizes readings in the requested period against the
// 70-180 mg/dL band.
func (s *InsightService) Statistics(ctx context.Context, userID uint, start, end string) (insights.RangeStatistics, error) {
	period := insights.ParsePeriod(start, end, s.now())
	samples, err := s.history.GlucoseSamples(ctx, userID, period.From, period.To)
	if err != nil {
		return insights.RangeStatistics{}, err
	}
	return insights.Statistics(samples, period), nil
}

func (s *InsightService) saveReport(ctx context.Context, userID uint, snap insights.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	report := repository.NewInsightReport(userID, snap.Days, payload)
	report.AvgGlucose = snap.Average
	report.MostFrequentMealType = snap.MostFrequentMealType
	report.TimeOfDayWithSpikes = snap.SpikeBucket
	return s.reports.Save(ctx, report)
}
