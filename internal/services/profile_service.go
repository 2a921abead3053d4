package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
	"github.com/vladimiradmaev/diabetes-backend/internal/repository"
)

const minutesPerDay = 24 * 60

// ProfileService owns the user's dosing constants and time-of-day carb
// ratio periods.
type ProfileService struct {
	store *repository.Store
	now   func() time.Time
}

func NewProfileService(store *repository.Store) *ProfileService {
	return &ProfileService{store: store, now: time.Now}
}

var _ domain.ProfileProvider = (*ProfileService)(nil)

// Profile returns the stored profile with the carb ratio replaced by the
// period active now, if any.
func (s *ProfileService) Profile(ctx context.Context, userID uint) (domain.UserProfile, error) {
	profile, err := s.store.Users.Profile(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	ratio, err := s.ActiveRatio(ctx, userID, s.now())
	if err != nil {
		return domain.UserProfile{}, err
	}
	if ratio != nil {
		profile.CarbRatio = ratio
	}
	return profile, nil
}

// UpdateProfile validates and stores the user's constants.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID uint, p domain.UserProfile) error {
	for name, v := range map[string]*float64{
		"carb ratio":        p.CarbRatio,
		"correction factor": p.CorrectionFactor,
		"target min":        p.TargetMin,
		"target max":        p.TargetMax,
	} {
		if v != nil && (math.IsNaN(*v) || *v <= 0) {
			return apperrors.NewValidationError(fmt.Sprintf("%s must be positive", name))
		}
	}
	if low, high, ok := p.TargetRange(); ok && low >= high {
		return apperrors.NewValidationError("target min must be below target max")
	}
	return s.store.Users.UpdateProfile(ctx, userID, p)
}

// Ratios lists the user's periods ordered by start time.
func (s *ProfileService) Ratios(ctx context.Context, userID uint) ([]domain.CarbRatioPeriod, error) {
	return s.store.Ratios.List(ctx, userID, 0)
}

// AddRatio stores a new period after checking it against the existing ones.
func (s *ProfileService) AddRatio(ctx context.Context, userID uint, startTime, endTime string, ratio float64) (domain.CarbRatioPeriod, error) {
	existing, err := s.store.Ratios.List(ctx, userID, 0)
	if err != nil {
		return domain.CarbRatioPeriod{}, err
	}
	p := domain.CarbRatioPeriod{StartTime: startTime, EndTime: endTime, Ratio: ratio}
	if err := validatePeriod(p, existing); err != nil {
		return domain.CarbRatioPeriod{}, err
	}

	created, err := s.store.Ratios.Create(ctx, userID, p)
	if err != nil {
		return domain.CarbRatioPeriod{}, err
	}
	logger.WithContext(ctx).Info("Carb ratio period added",
		"user_id", userID, "start", startTime, "end", endTime, "ratio", ratio)
	return created, nil
}

// UpdateRatio replaces a period, checking it against the others.
func (s *ProfileService) UpdateRatio(ctx context.Context, userID, ratioID uint, startTime, endTime string, ratio float64) error {
	others, err := s.store.Ratios.List(ctx, userID, ratioID)
	if err != nil {
		return err
	}
	p := domain.CarbRatioPeriod{ID: ratioID, StartTime: startTime, EndTime: endTime, Ratio: ratio}
	if err := validatePeriod(p, others); err != nil {
		return err
	}
	return s.store.Ratios.Update(ctx, userID, p)
}

func (s *ProfileService) DeleteRatio(ctx context.Context, userID, ratioID uint) error {
	return s.store.Ratios.Delete(ctx, userID, ratioID)
}

// ActiveRatio returns the ratio of the period containing at's time of day,
// or nil when no period covers it.
func (s *ProfileService) ActiveRatio(ctx context.Context, userID uint, at time.Time) (*float64, error) {
	periods, err := s.store.Ratios.List(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	minute := at.Hour()*60 + at.Minute()
	for _, p := range periods {
		if periodContains(p, minute) {
			return domain.Float(p.Ratio), nil
		}
	}
	return nil, nil
}

// TimeToMinutes parses HH:MM into minutes since midnight.
func TimeToMinutes(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// segment is a half-open [start, end) interval of minutes within one day.
type segment struct{ start, end int }

// periodSegments splits a period at midnight. Periods with equal bounds
// are rejected by validatePeriod before reaching here.
func periodSegments(p domain.CarbRatioPeriod) []segment {
	start, _ := TimeToMinutes(p.StartTime)
	end, _ := TimeToMinutes(p.EndTime)
	if end > start {
		return []segment{{start, end}}
	}
	return []segment{{start, minutesPerDay}, {0, end}}
}

func periodLength(p domain.CarbRatioPeriod) int {
	total := 0
	for _, seg := range periodSegments(p) {
		total += seg.end - seg.start
	}
	return total
}

// CoverageMinutes returns how many minutes of the day the periods cover.
func CoverageMinutes(periods []domain.CarbRatioPeriod) int {
	total := 0
	for _, p := range periods {
		total += periodLength(p)
	}
	return total
}

func periodContains(p domain.CarbRatioPeriod, minute int) bool {
	for _, seg := range periodSegments(p) {
		if minute >= seg.start && minute < seg.end {
			return true
		}
	}
	return false
}

func overlaps(a, b domain.CarbRatioPeriod) bool {
	for _, x := range periodSegments(a) {
		for _, y := range periodSegments(b) {
			if x.start < y.end && y.start < x.end {
				return true
			}
		}
	}
	return false
}

// validatePeriod checks the time format, the ratio, overlaps with the
// other periods and that total coverage stays within a day.
func validatePeriod(p domain.CarbRatioPeriod, others []domain.CarbRatioPeriod) error {
	start, err := TimeToMinutes(p.StartTime)
	if err != nil {
		return apperrors.NewValidationError("invalid start time format, expected HH:MM")
	}
	end, err := TimeToMinutes(p.EndTime)
	if err != nil {
		return apperrors.NewValidationError("invalid end time format, expected HH:MM")
	}
	if start == end {
		return apperrors.NewValidationError("start and end time must differ")
	}
	if math.IsNaN(p.Ratio) || p.Ratio <= 0 {
		return apperrors.NewValidationError("ratio must be positive")
	}

	total := periodLength(p)
	for _, o := range others {
		if overlaps(p, o) {
			return apperrors.NewValidationError("time period overlaps with existing ratio").
				WithContext("conflict", fmt.Sprintf("%s-%s", o.StartTime, o.EndTime))
		}
		total += periodLength(o)
	}
	if total > minutesPerDay {
		return apperrors.NewValidationError("total time coverage exceeds 24 hours")
	}
	return nil
}
