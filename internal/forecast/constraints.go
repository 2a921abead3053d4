package forecast

import "math"

// Physiological bounds in mg/dL. Every estimate leaving this package is
// clamped into [MinGlucose, MaxGlucose].
const (
	MinGlucose = 40.0
	MaxGlucose = 400.0
	TargetMin  = 70.0
	TargetMax  = 180.0
)

// HorizonMinutes is how far ahead a point estimate looks.
const HorizonMinutes = 30

// Clamp bounds v to the physiological range. NaN maps to MinGlucose.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return MinGlucose
	}
	return math.Min(math.Max(v, MinGlucose), MaxGlucose)
}

// Band is a closed interval used to reject implausible sensor readings.
type Band struct {
	Min float64
	Max float64
}

// DefaultSanityBand matches the physiological bounds.
var DefaultSanityBand = Band{Min: MinGlucose, Max: MaxGlucose}

// Contains reports whether v is a plausible reading.
func (b Band) Contains(v float64) bool {
	return !math.IsNaN(v) && v >= b.Min && v <= b.Max
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
