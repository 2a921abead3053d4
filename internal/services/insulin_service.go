package services

import (
	"context"
	"time"

	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
	"github.com/vladimiradmaev/diabetes-backend/internal/insulin"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
)

// ReadingFreshness bounds how old the latest reading may be to count as
// current glucose for a dose.
const ReadingFreshness = 30 * time.Minute

// DoseRecorder receives dose calculation outcomes.
type DoseRecorder interface {
	RecordDose(flags []string)
}

type nopDoseRecorder struct{}

func (nopDoseRecorder) RecordDose([]string) {}

// LatestReader returns the newest glucose reading or nil.
type LatestReader interface {
	Latest(ctx context.Context, userID uint) (*domain.GlucoseSample, error)
}

// InsulinService fills dose inputs from the user's profile before running
// the calculator.
type InsulinService struct {
	profiles domain.ProfileProvider
	glucose  LatestReader
	recorder DoseRecorder
	now      func() time.Time
}

func NewInsulinService(profiles domain.ProfileProvider, glucose LatestReader, recorder DoseRecorder) *InsulinService {
	if recorder == nil {
		recorder = nopDoseRecorder{}
	}
	return &InsulinService{
		profiles: profiles,
		glucose:  glucose,
		recorder: recorder,
		now:      time.Now,
	}
}

// Calculate computes a dose. Fields the caller left out are taken from the
// profile. A profile lookup failure is logged and the request is computed
// as given, so bad input never turns into an error.
func (s *InsulinService) Calculate(ctx context.Context, userID uint, in insulin.Input) insulin.DoseRecommendation {
	profile, err := s.profiles.Profile(ctx, userID)
	if err != nil {
		logger.WithContext(ctx).Warn("Calculating dose without profile", "user_id", userID, "error", err)
	} else {
		in = withProfile(in, profile)
	}

	rec := insulin.Calculate(in)
	s.recorder.RecordDose(rec.SafetyFlags)
	return rec
}

// CalculateForMeal computes the dose for carbs eaten now, using the latest
// fresh reading as current glucose.
func (s *InsulinService) CalculateForMeal(ctx context.Context, userID uint, carbs float64) (insulin.DoseRecommendation, *float64) {
	in := insulin.Input{TotalCarbs: carbs}
	current := s.currentGlucose(ctx, userID)
	if current != nil {
		in.CurrentGlucose = *current
	}
	return s.Calculate(ctx, userID, in), current
}

func (s *InsulinService) currentGlucose(ctx context.Context, userID uint) *float64 {
	latest, err := s.glucose.Latest(ctx, userID)
	if err != nil {
		logger.WithContext(ctx).Warn("Failed to read latest glucose", "user_id", userID, "error", err)
		return nil
	}
	if latest == nil || s.now().Sub(latest.Timestamp) > ReadingFreshness {
		return nil
	}
	return domain.Float(latest.Level)
}

func withProfile(in insulin.Input, p domain.UserProfile) insulin.Input {
	if in.CarbRatio == nil && p.CarbRatio != nil {
		in.CarbRatio = *p.CarbRatio
	}
	if in.CorrectionFactor == nil && p.CorrectionFactor != nil {
		in.CorrectionFactor = *p.CorrectionFactor
	}
	if in.TargetBG == nil && in.TargetRange == nil {
		if low, high, ok := p.TargetRange(); ok {
			in.TargetRange = []float64{low, high}
		}
	}
	return in
}
