package domain

import (
	"time"
)

// Glucose source tags
const (
	SourceManual       = "manual"
	SourceLibre        = "libre"
	SourceLibreWebhook = "libre_webhook"
	SourceLibreLive    = "libre_live"
	SourceOther        = "other"
)

// Meal types
const (
	MealBreakfast = "breakfast"
	MealLunch     = "lunch"
	MealDinner    = "dinner"
	MealSnack     = "snack"
)

// Profile defaults used when the user has not configured a value
const (
	DefaultCarbRatio        = 15.0 // grams per unit
	DefaultCorrectionFactor = 50.0 // mg/dL per unit
)

// GlucoseSample is a single recorded glucose reading in mg/dL.
type GlucoseSample struct {
	Timestamp time.Time
	Level     float64
	Trend     string
	Source    string
}

// CarbEvent is a meal reduced to what the forecaster consumes.
type CarbEvent struct {
	Timestamp time.Time
	Carbs     float64
	Insulin   *float64
}

// MealRecord represents a logged meal
type MealRecord struct {
	ID        uint
	Timestamp time.Time
	MealType  string
	FoodName  string
	Carbs     float64
	Insulin   *float64
}

// UserProfile carries the per-user constants read by the calculators.
// Nil fields mean "not configured".
type UserProfile struct {
	CarbRatio        *float64
	CorrectionFactor *float64
	TargetMin        *float64
	TargetMax        *float64
}

// Sensitivity returns the carb ratio and correction factor, falling back to
// defaults for missing or non-positive values.
func (p UserProfile) Sensitivity() (carbRatio, correctionFactor float64) {
	carbRatio, correctionFactor = DefaultCarbRatio, DefaultCorrectionFactor
	if p.CarbRatio != nil && *p.CarbRatio > 0 {
		carbRatio = *p.CarbRatio
	}
	if p.CorrectionFactor != nil && *p.CorrectionFactor > 0 {
		correctionFactor = *p.CorrectionFactor
	}
	return carbRatio, correctionFactor
}

// TargetRange returns the configured target band when both ends are set.
func (p UserProfile) TargetRange() (low, high float64, ok bool) {
	if p.TargetMin == nil || p.TargetMax == nil {
		return 0, 0, false
	}
	return *p.TargetMin, *p.TargetMax, true
}

// CarbRatioPeriod overrides the profile carb ratio during a time of day.
type CarbRatioPeriod struct {
	ID        uint
	StartTime string // Format: "HH:MM"
	EndTime   string // Format: "HH:MM"
	Ratio     float64
}

// Alert types
const (
	AlertLowGlucose  = "low_glucose"
	AlertHighGlucose = "high_glucose"
)

// Alert is a threshold crossing recorded for a user.
type Alert struct {
	ID        uint
	Type      string
	Message   string
	Timestamp time.Time
}

// CarbEvents projects meal records onto forecaster input events.
func CarbEvents(meals []MealRecord) []CarbEvent {
	events := make([]CarbEvent, 0, len(meals))
	for _, m := range meals {
		events = append(events, CarbEvent{
			Timestamp: m.Timestamp,
			Carbs:     m.Carbs,
			Insulin:   m.Insulin,
		})
	}
	return events
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
