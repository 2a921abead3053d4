package forecast

import (
	"fmt"
	"math"
)

// Decay constants in slots for the on-board features.
const (
	iobTau = 48.0
	cobTau = 24.0
)

var (
	featureLags    = []int{1, 2, 3, 6, 12}
	featureWindows = []int{3, 6, 12}
)

// FeatureNames lists every feature BuildFeatures produces.
var FeatureNames = func() []string {
	names := []string{"glucose", "carbs", "insulin"}
	for _, lag := range featureLags {
		names = append(names, fmt.Sprintf("lag_%d", lag))
	}
	for _, w := range featureWindows {
		names = append(names, fmt.Sprintf("rollmean_%d", w), fmt.Sprintf("rollstd_%d", w))
	}
	return append(names, "diff_1", "hour", "minute", "dayofweek", "hour_sin", "hour_cos", "iob", "cob")
}()

// BuildFeatures computes tabular features at the last slot. Features that
// need more history than the series holds are NaN.
func BuildFeatures(s Series) map[string]float64 {
	out := make(map[string]float64, len(FeatureNames))
	for _, name := range FeatureNames {
		out[name] = math.NaN()
	}
	if len(s.Slots) == 0 {
		return out
	}

	g := denseGlucose(s)
	t := len(g) - 1
	last := s.Slots[t]

	out["glucose"] = g[t]
	out["carbs"] = last.Carbs
	out["insulin"] = last.Insulin

	for _, lag := range featureLags {
		if t-lag >= 0 {
			out[fmt.Sprintf("lag_%d", lag)] = g[t-lag]
		}
	}
	for _, w := range featureWindows {
		if t+1 >= w {
			mean, std := meanStd(g[t+1-w : t+1])
			out[fmt.Sprintf("rollmean_%d", w)] = mean
			out[fmt.Sprintf("rollstd_%d", w)] = std
		}
	}
	if t >= 1 {
		out["diff_1"] = g[t] - g[t-1]
	}

	ts := last.Timestamp
	hour := float64(ts.Hour())
	out["hour"] = hour
	out["minute"] = float64(ts.Minute())
	// Monday is 0
	out["dayofweek"] = float64((int(ts.Weekday()) + 6) % 7)
	out["hour_sin"] = math.Sin(2 * math.Pi * hour / 24)
	out["hour_cos"] = math.Cos(2 * math.Pi * hour / 24)

	iobDecay := math.Exp(-1 / iobTau)
	cobDecay := math.Exp(-1 / cobTau)
	iob, cob := 0.0, 0.0
	for _, slot := range s.Slots {
		iob = slot.Insulin + iob*iobDecay
		cob = slot.Carbs + cob*cobDecay
	}
	out["iob"] = iob
	out["cob"] = cob

	return out
}

// denseGlucose forward fills gaps and back fills a leading gap. A series
// without any reading yields NaN throughout.
func denseGlucose(s Series) []float64 {
	g := make([]float64, len(s.Slots))
	first := math.NaN()
	for _, slot := range s.Slots {
		if slot.Glucose != nil {
			first = *slot.Glucose
			break
		}
	}
	last := first
	for i, slot := range s.Slots {
		if slot.Glucose != nil {
			last = *slot.Glucose
		}
		g[i] = last
	}
	return g
}

// meanStd returns the mean and sample standard deviation.
func meanStd(values []float64) (float64, float64) {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if len(values) < 2 {
		return mean, math.NaN()
	}
	sq := 0.0
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)-1))
}
