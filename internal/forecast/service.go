package forecast

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"

	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
)

// ServiceConfig tunes the forecast service.
type ServiceConfig struct {
	Lookback      time.Duration
	MaxConcurrent int64
	InferTimeout  time.Duration
	Band          Band
}

// Service answers forecast requests for a user: it loads history, assembles
// the series and runs the ensemble under a concurrency bound.
type Service struct {
	history   domain.HistoryReader
	profiles  domain.ProfileProvider
	ensemble  *Ensemble
	assembler *Assembler
	sem       *semaphore.Weighted
	cfg       ServiceConfig
	now       func() time.Time
}

// Estimate is the forecast part of a Result.
type Estimate struct {
	Glucose            float64            `json:"glucose_mg_dl"`
	TimeHorizonMinutes int                `json:"time_horizon_minutes"`
	ByModel            map[string]float64 `json:"predictions_by_model"`
	Current            float64            `json:"current_glucose"`
	Change             float64            `json:"change"`
	Risk               RiskAssessment     `json:"risk_assessment"`
	Timeline           []TimelinePoint    `json:"timeline,omitempty"`
	MealImpact         *float64           `json:"meal_impact,omitempty"`
	Timestamp          time.Time          `json:"timestamp"`
}

// RiskAssessment pairs a level with its message.
type RiskAssessment struct {
	Level   RiskLevel `json:"level"`
	Message string    `json:"message"`
}

// MealInfo echoes the meal a projection was made for.
type MealInfo struct {
	CarbsG       float64 `json:"carbs_g"`
	InsulinUnits float64 `json:"insulin_units"`
}

// Metadata describes how a forecast was produced.
type Metadata struct {
	ModelUsed       string   `json:"model_used"`
	Source          string   `json:"source"`
	AvailableModels []string `json:"available_models"`
	DataPointsUsed  int      `json:"data_points_used"`
}

// Result is the response payload of a forecast.
type Result struct {
	Prediction Estimate  `json:"prediction"`
	MealInfo   *MealInfo `json:"meal_info,omitempty"`
	Metadata   Metadata  `json:"metadata"`
}

// NewService creates a forecast service over the given ensemble.
func NewService(history domain.HistoryReader, profiles domain.ProfileProvider, ensemble *Ensemble, cfg ServiceConfig) *Service {
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultLookback
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Band.Max <= cfg.Band.Min {
		cfg.Band = DefaultSanityBand
	}
	return &Service{
		history:   history,
		profiles:  profiles,
		ensemble:  ensemble,
		assembler: NewAssembler(cfg.Band),
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
		cfg:       cfg,
		now:       time.Now,
	}
}

// AvailableModels lists the loaded backends.
func (s *Service) AvailableModels() []string {
	return s.ensemble.Available()
}

// Status reports which models can be requested.
func (s *Service) Status() map[string]bool {
	status := map[string]bool{
		ModelSimple:   s.ensemble.Has(ModelSimple),
		ModelSequence: s.ensemble.Has(ModelSequence),
		ModelTree:     s.ensemble.Has(ModelTree),
	}
	status[ModelEnsemble] = status[ModelSequence] || status[ModelTree]
	return status
}

// PredictForUser forecasts the user's glucose HorizonMinutes ahead. A zero
// lookback uses the configured default.
func (s *Service) PredictForUser(ctx context.Context, userID uint, model string, lookback time.Duration) (*Result, error) {
	now := s.now()
	pred, valid, err := s.predict(ctx, userID, model, lookback, now)
	if err != nil {
		return nil, err
	}

	risk, msg := ClassifyRisk(pred.Estimate)
	return &Result{
		Prediction: Estimate{
			Glucose:            round1(pred.Estimate),
			TimeHorizonMinutes: HorizonMinutes,
			ByModel:            roundAll(pred.ByBackend),
			Current:            pred.Current,
			Change:             round1(pred.Estimate - pred.Current),
			Risk:               RiskAssessment{Level: risk, Message: msg},
			Timestamp:          now,
		},
		Metadata: s.metadata(model, pred, valid),
	}, nil
}

// PredictAfterMeal forecasts glucose 30 minutes after eating the meal now.
func (s *Service) PredictAfterMeal(ctx context.Context, userID uint, meal MealInput, model string, lookback time.Duration) (*Result, error) {
	if err := meal.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	pred, valid, err := s.predict(ctx, userID, model, lookback, now)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.Profile(ctx, userID)
	if err != nil {
		logger.WithContext(ctx).Warn("Using default sensitivity", "user_id", userID, "error", err)
		profile = domain.UserProfile{}
	}

	proj, err := Project(meal, pred.Estimate, pred.Current, SensitivityFor(profile), now)
	if err != nil {
		return nil, err
	}

	impact := round1(proj.NetImpact)
	return &Result{
		Prediction: Estimate{
			Glucose:            round1(proj.Adjusted),
			TimeHorizonMinutes: HorizonMinutes,
			ByModel:            roundAll(pred.ByBackend),
			Current:            pred.Current,
			Change:             round1(proj.Adjusted - pred.Current),
			Risk:               RiskAssessment{Level: proj.Risk, Message: proj.Message},
			Timeline:           proj.Timeline,
			MealImpact:         &impact,
			Timestamp:          now,
		},
		MealInfo: &MealInfo{CarbsG: meal.Carbs, InsulinUnits: meal.Insulin},
		Metadata: s.metadata(model, pred, valid),
	}, nil
}

func (s *Service) predict(ctx context.Context, userID uint, model string, lookback time.Duration, now time.Time) (Prediction, int, error) {
	if lookback <= 0 {
		lookback = s.cfg.Lookback
	}
	log := logger.WithContext(ctx)

	from := now.Add(-lookback)
	samples, err := s.history.GlucoseSamples(ctx, userID, from.Add(-SampleTolerance), now.Add(SampleTolerance))
	if err != nil {
		return Prediction{}, 0, err
	}
	meals, err := s.history.MealRecords(ctx, userID, from.Add(-CarbWindow), now.Add(CarbWindow))
	if err != nil {
		return Prediction{}, 0, err
	}

	series, err := s.assembler.Assemble(samples, domain.CarbEvents(meals), now, lookback)
	if err != nil {
		return Prediction{}, 0, err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Prediction{}, 0, apperrors.NewTimeoutError("prediction")
	}
	defer s.sem.Release(1)

	if s.cfg.InferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.InferTimeout)
		defer cancel()
	}

	pred, err := s.ensemble.Predict(ctx, series, model)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Prediction canceled", "user_id", userID)
		}
		return Prediction{}, 0, err
	}

	log.Debug("Prediction complete",
		"user_id", userID,
		"model", NormalizeModel(model),
		"source", pred.Source,
		"estimate", pred.Estimate)
	return pred, series.ValidCount(), nil
}

func (s *Service) metadata(model string, pred Prediction, valid int) Metadata {
	produced := pred.Produced
	if produced == nil {
		produced = []string{}
	}
	return Metadata{
		ModelUsed:       NormalizeModel(model),
		Source:          pred.Source,
		AvailableModels: produced,
		DataPointsUsed:  valid,
	}
}

func roundAll(values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for name, v := range values {
		out[name] = round1(v)
	}
	return out
}
