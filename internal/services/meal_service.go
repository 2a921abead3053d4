package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/vladimiradmaev/diabetes-backend/internal/database"
	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
	"github.com/vladimiradmaev/diabetes-backend/internal/forecast"
	"github.com/vladimiradmaev/diabetes-backend/internal/insulin"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
	"github.com/vladimiradmaev/diabetes-backend/internal/repository"
)

// MealLog is a meal entered by hand.
type MealLog struct {
	Timestamp time.Time `json:"timestamp"`
	MealType  string    `json:"meal_type"`
	FoodName  string    `json:"food_name"`
	Carbs     float64   `json:"carbs_g"`
	Insulin   *float64  `json:"insulin_units,omitempty"`
}

// MealResult is a stored meal with the dose computed for it.
type MealResult struct {
	MealID         uint                       `json:"meal_id"`
	MealType       string                     `json:"meal_type"`
	FoodItems      []string                   `json:"food_items,omitempty"`
	Components     []FoodComponent            `json:"components,omitempty"`
	Carbs          float64                    `json:"carbs_g"`
	Weight         float64                    `json:"weight_g,omitempty"`
	Confidence     float64                    `json:"confidence"`
	AnalysisText   string                     `json:"analysis_text,omitempty"`
	Provider       string                     `json:"provider"`
	CurrentGlucose *float64                   `json:"current_glucose,omitempty"`
	Dose           insulin.DoseRecommendation `json:"dose"`
}

// MealView is a stored meal as shown in the meal history.
type MealView struct {
	MealID          uint      `json:"meal_id"`
	Timestamp       time.Time `json:"timestamp"`
	MealType        string    `json:"meal_type"`
	FoodName        string    `json:"food_name,omitempty"`
	Weight          float64   `json:"weight_g,omitempty"`
	Carbs           float64   `json:"carbs_g"`
	InsulinUnits    *float64  `json:"insulin_units,omitempty"`
	RecommendedDose *float64  `json:"recommended_dose,omitempty"`
	RoundedDose     *float64  `json:"rounded_dose,omitempty"`
	Confidence      float64   `json:"confidence"`
	AnalysisText    string    `json:"analysis_text,omitempty"`
	Provider        string    `json:"provider"`
}

const (
	defaultMealDays  = 7
	maxMealDays      = 90
	defaultMealLimit = 50
	maxMealLimit     = 200
)

// MealService turns meal photos and manual entries into stored meals with a
// dose recommendation.
type MealService struct {
	store    *repository.Store
	analyzer FoodAnalyzer
	dosing   *InsulinService
	now      func() time.Time
}

// NewMealService creates the service. analyzer may be nil when vision is
// not configured; photo analysis then fails with a feature error.
func NewMealService(store *repository.Store, analyzer FoodAnalyzer, dosing *InsulinService) *MealService {
	return &MealService{
		store:    store,
		analyzer: analyzer,
		dosing:   dosing,
		now:      time.Now,
	}
}

// AnalyzePhoto estimates the carbs in a photo and stores the meal with the
// recommended dose.
func (s *MealService) AnalyzePhoto(ctx context.Context, userID uint, image []byte, weight float64, mealType string) (*MealResult, error) {
	if s.analyzer == nil {
		return nil, apperrors.New(apperrors.ErrorTypeValidation, apperrors.ErrFeatureDisabled.Code, "Vision analysis is not configured")
	}
	if len(image) == 0 {
		return nil, apperrors.NewValidationError("image is required")
	}
	if math.IsNaN(weight) || weight < 0 {
		return nil, apperrors.NewValidationError("weight must not be negative")
	}
	mealType, err := normalizeMealType(mealType)
	if err != nil {
		return nil, err
	}

	analysis, err := s.analyzer.AnalyzeFoodImage(ctx, image, weight)
	if err != nil {
		return nil, err
	}
	if analysis.Carbs > forecast.MaxMealCarbs {
		return nil, apperrors.Wrap(fmt.Errorf("carb estimate %.0f g", analysis.Carbs),
			apperrors.ErrorTypeExternal, apperrors.ErrExternalAPI.Code, "Vision model returned an implausible carb estimate")
	}

	dose, current := s.dosing.CalculateForMeal(ctx, userID, analysis.Carbs)
	entry := &database.MealEntry{
		UserID:          userID,
		Timestamp:       s.now(),
		MealType:        mealType,
		FoodName:        strings.Join(analysis.FoodItems, ", "),
		Weight:          analysis.Weight,
		Carbs:           analysis.Carbs,
		RecommendedDose: domain.Float(dose.RecommendedDose),
		RoundedDose:     domain.Float(dose.RoundedDose),
		Confidence:      confidenceScore(analysis.Confidence),
		AnalysisText:    analysis.AnalysisText,
		UsedProvider:    s.analyzer.Provider(),
	}
	if err := s.store.Meals.Create(ctx, entry); err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info("Meal photo analyzed",
		"user_id", userID,
		"meal_id", entry.ID,
		"carbs", analysis.Carbs,
		"confidence", analysis.Confidence,
		"rounded_dose", dose.RoundedDose)

	return &MealResult{
		MealID:         entry.ID,
		MealType:       entry.MealType,
		FoodItems:      analysis.FoodItems,
		Components:     analysis.Components,
		Carbs:          analysis.Carbs,
		Weight:         analysis.Weight,
		Confidence:     entry.Confidence,
		AnalysisText:   analysis.AnalysisText,
		Provider:       entry.UsedProvider,
		CurrentGlucose: current,
		Dose:           dose,
	}, nil
}

// LogMeal stores a manually entered meal with the dose for its carbs.
func (s *MealService) LogMeal(ctx context.Context, userID uint, m MealLog) (*MealResult, error) {
	in := forecast.MealInput{Carbs: m.Carbs}
	if m.Insulin != nil {
		in.Insulin = *m.Insulin
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	mealType, err := normalizeMealType(m.MealType)
	if err != nil {
		return nil, err
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now()
	}

	dose, current := s.dosing.CalculateForMeal(ctx, userID, m.Carbs)
	entry := &database.MealEntry{
		UserID:          userID,
		Timestamp:       m.Timestamp,
		MealType:        mealType,
		FoodName:        m.FoodName,
		Carbs:           m.Carbs,
		InsulinUnits:    m.Insulin,
		RecommendedDose: domain.Float(dose.RecommendedDose),
		RoundedDose:     domain.Float(dose.RoundedDose),
		Confidence:      1,
		UsedProvider:    providerManual,
	}
	if err := s.store.Meals.Create(ctx, entry); err != nil {
		return nil, err
	}

	return &MealResult{
		MealID:         entry.ID,
		MealType:       entry.MealType,
		Carbs:          entry.Carbs,
		Confidence:     entry.Confidence,
		Provider:       entry.UsedProvider,
		CurrentGlucose: current,
		Dose:           dose,
	}, nil
}

// ListMeals returns the user's meals from the last days, newest first.
// Zero days or limit selects the default.
func (s *MealService) ListMeals(ctx context.Context, userID uint, days, limit int) ([]MealView, error) {
	if days == 0 {
		days = defaultMealDays
	}
	if days < 0 || days > maxMealDays {
		return nil, apperrors.NewValidationError(fmt.Sprintf("days must be between 1 and %d", maxMealDays))
	}
	if limit == 0 {
		limit = defaultMealLimit
	}
	if limit < 0 || limit > maxMealLimit {
		return nil, apperrors.NewValidationError(fmt.Sprintf("limit must be between 1 and %d", maxMealLimit))
	}

	rows, err := s.store.Meals.Recent(ctx, userID, s.now().AddDate(0, 0, -days), limit)
	if err != nil {
		return nil, err
	}
	views := make([]MealView, 0, len(rows))
	for i := range rows {
		views = append(views, mealView(&rows[i]))
	}
	return views, nil
}

// GetMeal returns one of the user's meals. Meals of other users are
// reported as not found.
func (s *MealService) GetMeal(ctx context.Context, userID, mealID uint) (*MealView, error) {
	row, err := s.store.Meals.Get(ctx, userID, mealID)
	if err != nil {
		return nil, err
	}
	v := mealView(row)
	return &v, nil
}

func mealView(e *database.MealEntry) MealView {
	return MealView{
		MealID:          e.ID,
		Timestamp:       e.Timestamp.UTC(),
		MealType:        e.MealType,
		FoodName:        e.FoodName,
		Weight:          e.Weight,
		Carbs:           e.Carbs,
		InsulinUnits:    e.InsulinUnits,
		RecommendedDose: e.RecommendedDose,
		RoundedDose:     e.RoundedDose,
		Confidence:      e.Confidence,
		AnalysisText:    e.AnalysisText,
		Provider:        e.UsedProvider,
	}
}

func normalizeMealType(t string) (string, error) {
	t = strings.ToLower(strings.TrimSpace(t))
	switch t {
	case "":
		return domain.MealLunch, nil
	case domain.MealBreakfast, domain.MealLunch, domain.MealDinner, domain.MealSnack:
		return t, nil
	}
	return "", apperrors.NewValidationError("meal_type must be one of breakfast, lunch, dinner, snack")
}
