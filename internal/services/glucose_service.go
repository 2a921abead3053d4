package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
	"github.com/vladimiradmaev/diabetes-backend/internal/repository"
)

// Alert thresholds used when the profile has no usable target band.
const (
	DefaultAlertLow  = 69.0
	DefaultAlertHigh = 200.0
)

// AlertCooldown suppresses repeated alerts of the same type.
const AlertCooldown = 15 * time.Minute

// Plausible bounds for a single reading in mg/dL.
const (
	minReading = 10.0
	maxReading = 1000.0
)

// IngestRecorder receives ingestion counters.
type IngestRecorder interface {
	RecordIngest(source string, created, duplicates int)
	RecordAlert(alertType string)
}

type nopIngestRecorder struct{}

func (nopIngestRecorder) RecordIngest(string, int, int) {}
func (nopIngestRecorder) RecordAlert(string)             {}

// Reading is one incoming glucose value.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Level     float64   `json:"glucose_level"`
	Trend     string    `json:"trend_arrow,omitempty"`
}

// IngestResult reports what a batch did.
type IngestResult struct {
	Created    int            `json:"created"`
	Duplicates int            `json:"duplicates"`
	Skipped    int            `json:"skipped"`
	Alerts     []domain.Alert `json:"alerts,omitempty"`
}

// InsightInvalidator drops cached reports that new readings make stale.
type InsightInvalidator interface {
	Invalidate(ctx context.Context, userID uint) error
}

type GlucoseService struct {
	store       *repository.Store
	profiles    domain.ProfileProvider
	recorder    IngestRecorder
	invalidator InsightInvalidator
	now         func() time.Time
}

func NewGlucoseService(store *repository.Store, profiles domain.ProfileProvider, recorder IngestRecorder) *GlucoseService {
	if recorder == nil {
		recorder = nopIngestRecorder{}
	}
	return &GlucoseService{
		store:    store,
		profiles: profiles,
		recorder: recorder,
		now:      time.Now,
	}
}

// SetInsightInvalidator registers the cache to clear after an ingest that
// created readings.
func (s *GlucoseService) SetInsightInvalidator(inv InsightInvalidator) {
	s.invalidator = inv
}

// AddManual records a reading taken now.
func (s *GlucoseService) AddManual(ctx context.Context, userID uint, level float64) (*IngestResult, error) {
	if err := validateLevel(level); err != nil {
		return nil, err
	}
	return s.ingest(ctx, userID, domain.SourceManual, []Reading{{Timestamp: s.now(), Level: level}})
}

// Ingest stores a batch from a monitor webhook or sync job. Readings with
// a missing timestamp or implausible level are skipped and counted.
func (s *GlucoseService) Ingest(ctx context.Context, userID uint, source string, readings []Reading) (*IngestResult, error) {
	if !validSource(source) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown glucose source: %s", source))
	}
	if len(readings) == 0 {
		return nil, apperrors.NewValidationError("glucose_level and timestamp required")
	}
	return s.ingest(ctx, userID, source, readings)
}

// IngestWebhook stores one monitor reading for a user named in the payload.
// The caller is not authenticated, so unknown users are rejected.
func (s *GlucoseService) IngestWebhook(ctx context.Context, userID uint, r Reading) (*IngestResult, error) {
	if _, err := s.store.Users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, apperrors.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, err
	}
	return s.Ingest(ctx, userID, domain.SourceLibreWebhook, []Reading{r})
}

func (s *GlucoseService) ingest(ctx context.Context, userID uint, source string, readings []Reading) (*IngestResult, error) {
	log := logger.WithContext(ctx)

	samples := make([]domain.GlucoseSample, 0, len(readings))
	skipped := 0
	for _, r := range readings {
		if r.Timestamp.IsZero() || validateLevel(r.Level) != nil {
			skipped++
			continue
		}
		samples = append(samples, domain.GlucoseSample{
			Timestamp: r.Timestamp,
			Level:     r.Level,
			Trend:     r.Trend,
			Source:    source,
		})
	}
	if len(samples) == 0 {
		return nil, apperrors.NewValidationError("no valid glucose readings in request")
	}

	res, err := s.store.Glucose.Insert(ctx, userID, samples)
	if err != nil {
		return nil, err
	}
	s.recorder.RecordIngest(source, res.Created, res.Duplicates)

	out := &IngestResult{Created: res.Created, Duplicates: res.Duplicates, Skipped: skipped}
	if res.Created > 0 && s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, userID); err != nil {
			log.Warn("Failed to invalidate cached insights", "user_id", userID, "error", err)
		}
	}
	if res.Created > 0 {
		// only the newest reading of a batch can raise an alert
		alert, err := s.checkAlert(ctx, userID, newest(samples))
		if err != nil {
			log.Warn("Failed to evaluate glucose alert", "user_id", userID, "error", err)
		} else if alert != nil {
			out.Alerts = append(out.Alerts, *alert)
		}
	}

	log.Info("Glucose readings ingested",
		"user_id", userID,
		"source", source,
		"created", res.Created,
		"duplicates", res.Duplicates,
		"skipped", skipped)
	return out, nil
}

// Latest returns the newest stored reading, or nil.
func (s *GlucoseService) Latest(ctx context.Context, userID uint) (*domain.GlucoseSample, error) {
	return s.store.Glucose.Latest(ctx, userID)
}

// checkAlert raises a low or high alert unless one of the same type was
// raised within AlertCooldown.
func (s *GlucoseService) checkAlert(ctx context.Context, userID uint, sample domain.GlucoseSample) (*domain.Alert, error) {
	profile, err := s.profiles.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	low, high := alertThresholds(profile)

	var a domain.Alert
	switch {
	case sample.Level < low:
		a = domain.Alert{Type: domain.AlertLowGlucose, Message: fmt.Sprintf("Low glucose %.0f mg/dl", sample.Level)}
	case sample.Level > high:
		a = domain.Alert{Type: domain.AlertHighGlucose, Message: fmt.Sprintf("High glucose %.0f mg/dl", sample.Level)}
	default:
		return nil, nil
	}

	now := s.now()
	last, err := s.store.Alerts.LastOfType(ctx, userID, a.Type)
	if err != nil {
		return nil, err
	}
	if last != nil && now.Sub(last.Timestamp) < AlertCooldown {
		return nil, nil
	}

	a.Timestamp = now
	created, err := s.store.Alerts.Create(ctx, userID, a, sample.Level)
	if err != nil {
		return nil, err
	}
	s.recorder.RecordAlert(a.Type)
	logger.WithContext(ctx).Info("Glucose alert raised", "user_id", userID, "type", a.Type, "level", sample.Level)
	return &created, nil
}

// alertThresholds takes each end from the profile when set. An inverted
// band falls back to the defaults.
func alertThresholds(p domain.UserProfile) (low, high float64) {
	low, high = DefaultAlertLow, DefaultAlertHigh
	if p.TargetMin != nil {
		low = *p.TargetMin
	}
	if p.TargetMax != nil {
		high = *p.TargetMax
	}
	if low >= high {
		return DefaultAlertLow, DefaultAlertHigh
	}
	return low, high
}

func newest(samples []domain.GlucoseSample) domain.GlucoseSample {
	latest := samples[0]
	for _, s := range samples[1:] {
		if s.Timestamp.After(latest.Timestamp) {
			latest = s
		}
	}
	return latest
}

func validateLevel(level float64) error {
	if math.IsNaN(level) || level < minReading || level > maxReading {
		return apperrors.NewValidationError(fmt.Sprintf("glucose level must be between %.0f and %.0f mg/dL", minReading, maxReading))
	}
	return nil
}

func validSource(source string) bool {
	switch source {
	case domain.SourceManual, domain.SourceLibre, domain.SourceLibreWebhook, domain.SourceLibreLive, domain.SourceOther:
		return true
	}
	return false
}
