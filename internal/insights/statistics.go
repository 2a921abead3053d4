package insights

import (
	"fmt"
	"time"

	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
)

// Consensus range used by the statistics view regardless of user targets.
const (
	StatsLow          = 70.0
	StatsHigh         = 180.0
	DefaultStatsRange = 7 * 24 * time.Hour
)

// RangeStatistics summarizes readings against the 70-180 mg/dL band.
type RangeStatistics struct {
	TimeInRange            float64 `json:"time_in_range"`
	AvgGlucose             float64 `json:"avg_glucose"`
	AboveRange             float64 `json:"above_range"`
	BelowRange             float64 `json:"below_range"`
	CoefficientOfVariation float64 `json:"coefficient_of_variation"`
	Period                 string  `json:"period"`
}

// StatsPeriod is the interval a statistics request covers.
type StatsPeriod struct {
	From    time.Time
	To      time.Time
	Default bool
}

// ParsePeriod reads RFC 3339 or YYYY-MM-DD bounds. Missing or unparsable
// bounds fall back to the last 7 days.
func ParsePeriod(start, end string, now time.Time) StatsPeriod {
	fallback := StatsPeriod{From: now.Add(-DefaultStatsRange), To: now, Default: true}
	if start == "" || end == "" {
		return fallback
	}
	from, ok1 := parseBound(start, now.Location())
	to, ok2 := parseBound(end, now.Location())
	if !ok1 || !ok2 || to.Before(from) {
		return fallback
	}
	return StatsPeriod{From: from, To: to}
}

func parseBound(v string, loc *time.Location) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation(time.DateOnly, v, loc); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Label describes the period for display.
func (p StatsPeriod) Label() string {
	if p.Default {
		return "Last 7 days"
	}
	return fmt.Sprintf("%s to %s", p.From.Format(time.DateOnly), p.To.Format(time.DateOnly))
}

// Statistics computes range percentages over readings inside the period.
// No readings yields zeros with period "No data".
func Statistics(samples []domain.GlucoseSample, period StatsPeriod) RangeStatistics {
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Timestamp.Before(period.From) || s.Timestamp.After(period.To) {
			continue
		}
		values = append(values, s.Level)
	}
	if len(values) == 0 {
		return RangeStatistics{Period: "No data"}
	}

	above, below := 0, 0
	for _, v := range values {
		switch {
		case v > StatsHigh:
			above++
		case v < StatsLow:
			below++
		}
	}
	n := float64(len(values))
	abovePct := float64(above) / n * 100
	belowPct := float64(below) / n * 100
	avg := mean(values)

	return RangeStatistics{
		TimeInRange:            round1(100 - abovePct - belowPct),
		AvgGlucose:             round1(avg),
		AboveRange:             round1(abovePct),
		BelowRange:             round1(belowPct),
		CoefficientOfVariation: round1(coefficientOfVariation(values, avg)),
		Period:                 period.Label(),
	}
}
