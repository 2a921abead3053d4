// Package insights derives reporting statistics from a user's glucose and
// meal history.
package insights

import (
	"math"
	"sort"
	"time"

	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
)

// Fallback thresholds when the user's target range is missing or inverted.
const (
	DefaultLowThreshold  = 69.0
	DefaultHighThreshold = 200.0
	DefaultDays          = 14
)

// Spike buckets in reporting order.
const (
	BucketNight     = "Night (0-5)"
	BucketMorning   = "Morning (6-11)"
	BucketAfternoon = "Afternoon (12-17)"
	BucketEvening   = "Evening (18-23)"
)

var bucketOrder = []string{BucketNight, BucketMorning, BucketAfternoon, BucketEvening}

// Thresholds bound the in-range band. Readings strictly below Low or
// strictly above High are out of range.
type Thresholds struct {
	Low  float64 `json:"low_threshold"`
	High float64 `json:"high_threshold"`
}

// ResolveThresholds uses the profile target range when both ends are set
// and ordered.
func ResolveThresholds(p domain.UserProfile) Thresholds {
	if low, high, ok := p.TargetRange(); ok && low < high {
		return Thresholds{Low: low, High: high}
	}
	return Thresholds{Low: DefaultLowThreshold, High: DefaultHighThreshold}
}

// DayMean is the mean glucose of one calendar day.
type DayMean struct {
	Day  string  `json:"day"`
	Mean float64 `json:"mean"`
}

// Snapshot is the insight report for a window. Nil fields mean there was
// nothing to compute.
type Snapshot struct {
	Days                 int       `json:"days"`
	SampleCount          int       `json:"sample_count"`
	Average              *float64  `json:"average_glucose_mgdl"`
	TimeInRangePct       float64   `json:"time_in_range_pct"`
	LowCount             int       `json:"low_events"`
	HighCount            int       `json:"high_events"`
	GMI                  *float64  `json:"gmi_percent"`
	CV                   *float64  `json:"coefficient_of_variation"`
	DailyMeans           []DayMean `json:"meal_impact_series"`
	MostFrequentMealType *string   `json:"most_frequent_meal_type"`
	SpikeBucket          *string   `json:"time_of_day_with_spikes"`
	Thresholds
	UpdatedAt time.Time `json:"updated_at"`
}

// Window returns the reporting interval ending at now.
func Window(days int, now time.Time) (from, to time.Time) {
	if days <= 0 {
		days = DefaultDays
	}
	return now.AddDate(0, 0, -days), now
}

// Aggregate computes the snapshot over [now-days, now]. Records outside the
// window are ignored. Calendar days use now's location.
func Aggregate(samples []domain.GlucoseSample, meals []domain.MealRecord, th Thresholds, days int, now time.Time) Snapshot {
	if days <= 0 {
		days = DefaultDays
	}
	from, to := Window(days, now)
	snap := Snapshot{
		Days:       days,
		DailyMeans: []DayMean{},
		Thresholds: th,
		UpdatedAt:  now,
	}

	values := make([]float64, 0, len(samples))
	type dayAcc struct {
		sum float64
		n   int
	}
	byDay := map[string]*dayAcc{}
	buckets := make(map[string]int, len(bucketOrder))

	for _, s := range samples {
		if s.Timestamp.Before(from) || s.Timestamp.After(to) {
			continue
		}
		values = append(values, s.Level)

		switch {
		case s.Level < th.Low:
			snap.LowCount++
		case s.Level > th.High:
			snap.HighCount++
			buckets[bucketFor(s.Timestamp.In(now.Location()).Hour())]++
		}

		day := s.Timestamp.In(now.Location()).Format(time.DateOnly)
		acc, ok := byDay[day]
		if !ok {
			acc = &dayAcc{}
			byDay[day] = acc
		}
		acc.sum += s.Level
		acc.n++
	}

	total := len(values)
	snap.SampleCount = total
	if total == 0 {
		return snap
	}

	snap.MostFrequentMealType = mostFrequentMealType(meals, from, to)

	avg := mean(values)
	snap.Average = ptr(round1(avg))
	snap.GMI = ptr(round1(3.31 + 0.02392*avg))
	snap.TimeInRangePct = round1(float64(total-snap.LowCount-snap.HighCount) / float64(total) * 100)
	snap.CV = ptr(round1(coefficientOfVariation(values, avg)))

	dayKeys := make([]string, 0, len(byDay))
	for day := range byDay {
		dayKeys = append(dayKeys, day)
	}
	sort.Strings(dayKeys)
	for _, day := range dayKeys {
		acc := byDay[day]
		snap.DailyMeans = append(snap.DailyMeans, DayMean{Day: day, Mean: round1(acc.sum / float64(acc.n))})
	}

	snap.SpikeBucket = topBucket(buckets)
	return snap
}

func bucketFor(hour int) string {
	switch {
	case hour < 6:
		return BucketNight
	case hour < 12:
		return BucketMorning
	case hour < 18:
		return BucketAfternoon
	default:
		return BucketEvening
	}
}

// topBucket picks the highest count, the earlier bucket on a tie.
func topBucket(counts map[string]int) *string {
	best, bestCount := "", 0
	for _, b := range bucketOrder {
		if counts[b] > bestCount {
			best, bestCount = b, counts[b]
		}
	}
	if bestCount == 0 {
		return nil
	}
	return &best
}

// mostFrequentMealType returns the mode over meals in the window. The type
// seen first wins a tie.
func mostFrequentMealType(meals []domain.MealRecord, from, to time.Time) *string {
	counts := map[string]int{}
	var order []string
	for _, m := range meals {
		if m.MealType == "" || m.Timestamp.Before(from) || m.Timestamp.After(to) {
			continue
		}
		if counts[m.MealType] == 0 {
			order = append(order, m.MealType)
		}
		counts[m.MealType]++
	}

	best, bestCount := "", 0
	for _, t := range order {
		if counts[t] > bestCount {
			best, bestCount = t, counts[t]
		}
	}
	if bestCount == 0 {
		return nil
	}
	return &best
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// coefficientOfVariation uses the population standard deviation.
func coefficientOfVariation(values []float64, avg float64) float64 {
	if avg == 0 {
		return 0
	}
	sq := 0.0
	for _, v := range values {
		sq += (v - avg) * (v - avg)
	}
	return math.Sqrt(sq/float64(len(values))) / avg * 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func ptr[T any](v T) *T {
	return &v
}
