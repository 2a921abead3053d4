package insights

import (
	"testing"
	"time"

	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
)

func TestStatistics(t *testing.T) {
	samples := []domain.GlucoseSample{
		at(9, 8, 60),
		at(9, 12, 100),
		at(9, 18, 200),
		at(10, 8, 140),
	}
	got := Statistics(samples, ParsePeriod("", "", now))
	want := RangeStatistics{
		TimeInRange:            50,
		AvgGlucose:             125,
		AboveRange:             25,
		BelowRange:             25,
		CoefficientOfVariation: 41.4,
		Period:                 "Last 7 days",
	}
	if got != want {
		t.Errorf("Statistics() = %+v, want %+v", got, want)
	}
}

func TestStatisticsNoData(t *testing.T) {
	got := Statistics([]domain.GlucoseSample{at(1, 8, 120)}, ParsePeriod("", "", now))
	if got != (RangeStatistics{Period: "No data"}) {
		t.Errorf("Statistics() = %+v", got)
	}
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		name        string
		start, end  string
		wantDefault bool
		wantFrom    time.Time
	}{
		{"missing", "", "", true, now.Add(-DefaultStatsRange)},
		{"only start", "2024-05-01", "", true, now.Add(-DefaultStatsRange)},
		{"garbage", "yesterday", "today", true, now.Add(-DefaultStatsRange)},
		{"reversed", "2024-05-09", "2024-05-01", true, now.Add(-DefaultStatsRange)},
		{"dates", "2024-05-01", "2024-05-09", false, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"rfc3339", "2024-05-01T06:00:00Z", "2024-05-09T06:00:00Z", false, time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParsePeriod(tt.start, tt.end, now)
			if p.Default != tt.wantDefault || !p.From.Equal(tt.wantFrom) {
				t.Errorf("ParsePeriod() = %+v", p)
			}
		})
	}

	p := ParsePeriod("2024-05-01", "2024-05-09", now)
	if p.Label() != "2024-05-01 to 2024-05-09" {
		t.Errorf("Label() = %q", p.Label())
	}
}
