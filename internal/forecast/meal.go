package forecast

import (
	"fmt"
	"math"
	"time"

	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
)

// Meal input limits and the 30-minute physiological ceiling on the meal delta.
const (
	MaxMealCarbs   = 500.0
	MaxMealInsulin = 50.0
	MaxNetImpact   = 150.0

	// readings this close to a physiological bound are reported as extreme
	extremeMargin = 10.0
)

// TimelineMinutes are the offsets of the projected points.
var TimelineMinutes = []int{0, 10, 20, 30}

// MealInput is a meal about to be eaten.
type MealInput struct {
	Carbs   float64 `json:"carbs"`
	Insulin float64 `json:"insulin"`
}

// Validate checks the accepted ranges: carbs in [0, 500] g, insulin in
// [0, 50] units.
func (m MealInput) Validate() error {
	if math.IsNaN(m.Carbs) || m.Carbs < 0 || m.Carbs > MaxMealCarbs {
		return apperrors.NewInvalidMealInputError("Carbs must be between 0 and 500g")
	}
	if math.IsNaN(m.Insulin) || m.Insulin < 0 || m.Insulin > MaxMealInsulin {
		return apperrors.NewInvalidMealInputError("Insulin must be between 0 and 50 units")
	}
	return nil
}

// Sensitivity holds the constants used to turn a meal into a glucose delta.
type Sensitivity struct {
	CarbRatio        float64
	CorrectionFactor float64
}

// SensitivityFor returns the user's sensitivity with defaults for unset values.
func SensitivityFor(p domain.UserProfile) Sensitivity {
	ratio, factor := p.Sensitivity()
	return Sensitivity{CarbRatio: ratio, CorrectionFactor: factor}
}

// RiskLevel classifies a projected glucose value.
type RiskLevel string

const (
	RiskLow     RiskLevel = "low"
	RiskNormal  RiskLevel = "normal"
	RiskHigh    RiskLevel = "high"
	RiskExtreme RiskLevel = "extreme"
)

// TimelinePoint is one projected glucose value after the meal.
type TimelinePoint struct {
	Minutes   int       `json:"minutes"`
	Glucose   float64   `json:"glucose"`
	Timestamp time.Time `json:"timestamp"`
}

// Projection is the post-meal outcome.
type Projection struct {
	Adjusted      float64
	NetImpact     float64
	CarbImpact    float64
	InsulinImpact float64
	Risk          RiskLevel
	Message       string
	Timeline      []TimelinePoint
}

// Project applies the meal delta to base and builds the timeline from
// current towards the adjusted value.
func Project(meal MealInput, base, current float64, sens Sensitivity, now time.Time) (Projection, error) {
	if err := meal.Validate(); err != nil {
		return Projection{}, err
	}
	if sens.CarbRatio <= 0 {
		sens.CarbRatio = domain.DefaultCarbRatio
	}
	if sens.CorrectionFactor <= 0 {
		sens.CorrectionFactor = domain.DefaultCorrectionFactor
	}

	carbImpact := meal.Carbs * (1000 / sens.CarbRatio) / 10
	insulinImpact := meal.Insulin * sens.CorrectionFactor
	net := math.Min(math.Max(carbImpact-insulinImpact, -MaxNetImpact), MaxNetImpact)
	adjusted := Clamp(base + net)

	risk, msg := ClassifyRisk(adjusted)
	return Projection{
		Adjusted:      adjusted,
		NetImpact:     net,
		CarbImpact:    carbImpact,
		InsulinImpact: insulinImpact,
		Risk:          risk,
		Message:       msg,
		Timeline:      Timeline(current, adjusted, now),
	}, nil
}

// Timeline eases from current to target along a logistic curve. The first
// point is the clamped current reading.
func Timeline(current, target float64, now time.Time) []TimelinePoint {
	points := make([]TimelinePoint, 0, len(TimelineMinutes))
	for _, minute := range TimelineMinutes {
		value := current
		if minute > 0 {
			progress := float64(minute) / HorizonMinutes
			ease := 1 / (1 + math.Exp(-10*(progress-0.5)))
			value = current + (target-current)*ease
		}
		points = append(points, TimelinePoint{
			Minutes:   minute,
			Glucose:   round1(Clamp(value)),
			Timestamp: now.Add(time.Duration(minute) * time.Minute),
		})
	}
	return points
}

// ClassifyRisk grades a projected value and returns the user-facing message.
func ClassifyRisk(v float64) (RiskLevel, string) {
	shown := round1(v)
	switch {
	case v <= MinGlucose+extremeMargin || v >= MaxGlucose-extremeMargin:
		return RiskExtreme, fmt.Sprintf("CRITICAL: Predicted glucose (%.1f mg/dL) is at dangerous levels!", shown)
	case v < TargetMin:
		return RiskLow, fmt.Sprintf("Warning: Predicted glucose (%.1f mg/dL) is below target range.", shown)
	case v > TargetMax:
		return RiskHigh, fmt.Sprintf("Warning: Predicted glucose (%.1f mg/dL) is above target range.", shown)
	default:
		return RiskNormal, fmt.Sprintf("Predicted glucose (%.1f mg/dL) is within target range.", shown)
	}
}
