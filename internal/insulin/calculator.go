// Package insulin computes bolus recommendations from carbohydrate and
// glucose inputs. The calculation is pure and never fails: malformed input
// degrades to a smaller dose and the outcome is explained by safety flags.
package insulin

import "math"

// DefaultTarget is used when neither a target glucose nor a range is given.
const DefaultTarget = 100.0

// Safety flags
const (
	FlagBelowTargetNoCorrection = "glucose_below_target_range_no_correction"
	FlagBelowMinDose            = "below_min_dose"
	FlagClampedToMaxDose        = "clamped_to_max_dose"
)

// DoseRecommendation holds every intermediate value for audit.
type DoseRecommendation struct {
	CarbInsulin       float64  `json:"carb_insulin"`
	CorrectionInsulin float64  `json:"correction_insulin"`
	IOB               float64  `json:"iob"`
	RawRecommendation float64  `json:"raw_recommendation"`
	RecommendedDose   float64  `json:"recommended_dose"`
	RoundedDose       float64  `json:"rounded_dose"`
	SafetyFlags       []string `json:"safety_flags"`
}

// Calculate sanitizes raw input and computes the dose.
func Calculate(in Input) DoseRecommendation {
	return Compute(Sanitize(in))
}

// Compute runs the dose algorithm on sanitized parameters.
func Compute(p Params) DoseRecommendation {
	flags := []string{}

	carb := 0.0
	if p.CarbRatio > 0 {
		carb = p.TotalCarbs / p.CarbRatio
	}

	correction := 0.0
	if p.CurrentGlucose != nil && p.CorrectionFactor != nil && *p.CorrectionFactor > 0 {
		current := *p.CurrentGlucose
		if p.TargetRange != nil && current < p.TargetRange.Low {
			flags = append(flags, FlagBelowTargetNoCorrection)
		} else {
			correction = math.Max(0, (current-targetCenter(p))/(*p.CorrectionFactor))
		}
	}

	raw := carb + correction - p.IOB
	recommended := math.Max(raw, 0)

	// A dose under the minimum is dropped, not raised to it.
	if recommended < p.MinDose {
		recommended = 0
		flags = append(flags, FlagBelowMinDose)
	}
	if recommended > p.MaxDose {
		recommended = p.MaxDose
		flags = append(flags, FlagClampedToMaxDose)
	}

	return DoseRecommendation{
		CarbInsulin:       round4(carb),
		CorrectionInsulin: round4(correction),
		IOB:               round4(p.IOB),
		RawRecommendation: round4(raw),
		RecommendedDose:   round4(recommended),
		RoundedDose:       round4(roundWithin(recommended, p.RoundTo, p.MaxDose)),
		SafetyFlags:       flags,
	}
}

func targetCenter(p Params) float64 {
	switch {
	case p.TargetBG != nil:
		return *p.TargetBG
	case p.TargetRange != nil:
		return p.TargetRange.Midpoint()
	default:
		return DefaultTarget
	}
}

// RoundTo rounds value to the nearest multiple of increment, with ties
// going away from zero (2.25 at 0.5 becomes 2.5). A non-positive increment
// leaves the value unchanged.
func RoundTo(value, increment float64) float64 {
	if increment <= 0 {
		return value
	}
	return math.Round(value/increment) * increment
}

// roundWithin rounds to the increment but never past ceiling.
func roundWithin(value, increment, ceiling float64) float64 {
	rounded := RoundTo(value, increment)
	if rounded > ceiling && increment > 0 {
		rounded = math.Floor(value/increment) * increment
	}
	return rounded
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
