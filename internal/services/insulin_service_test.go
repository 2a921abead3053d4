package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
	"github.com/vladimiradmaev/diabetes-backend/internal/insulin"
)

type fakeLatest struct {
	sample *domain.GlucoseSample
	err    error
}

func (f fakeLatest) Latest(context.Context, uint) (*domain.GlucoseSample, error) {
	return f.sample, f.err
}

var dosingProfile = domain.UserProfile{
	CarbRatio:        domain.Float(10),
	CorrectionFactor: domain.Float(50),
	TargetMin:        domain.Float(100),
	TargetMax:        domain.Float(140),
}

func TestCalculateFillsFromProfile(t *testing.T) {
	rec := &countingRecorder{}
	svc := NewInsulinService(fakeProfiles{profiles: map[uint]domain.UserProfile{1: dosingProfile}}, fakeLatest{}, rec)
	ctx := context.Background()

	got := svc.Calculate(ctx, 1, insulin.Input{TotalCarbs: 60, CurrentGlucose: 170})
	// carbs 60/10 = 6, correction (170-120)/50 = 1
	if got.CarbInsulin != 6 || got.CorrectionInsulin != 1 || got.RoundedDose != 7 {
		t.Errorf("Calculate() = %+v", got)
	}

	// explicit values win over the profile
	got = svc.Calculate(ctx, 1, insulin.Input{TotalCarbs: 60, CarbRatio: 12, CurrentGlucose: 170, TargetBG: 110})
	if got.CarbInsulin != 5 || got.CorrectionInsulin != 1.2 {
		t.Errorf("Calculate() with overrides = %+v", got)
	}
	if rec.doses != 2 {
		t.Errorf("recorded %d doses, want 2", rec.doses)
	}
}

func TestCalculateWithoutProfile(t *testing.T) {
	svc := NewInsulinService(fakeProfiles{err: errors.New("db down")}, fakeLatest{}, nil)
	got := svc.Calculate(context.Background(), 1, insulin.Input{TotalCarbs: "abc", CarbRatio: 10})
	if got.RecommendedDose != 0 || got.RoundedDose != 0 {
		t.Errorf("Calculate() with garbage carbs = %+v", got)
	}
}

func TestCalculateForMealUsesFreshReading(t *testing.T) {
	profiles := fakeProfiles{profiles: map[uint]domain.UserProfile{1: dosingProfile}}
	tests := []struct {
		name        string
		latest      fakeLatest
		wantCurrent bool
		wantDose    float64
	}{
		{"fresh reading corrects", fakeLatest{sample: &domain.GlucoseSample{Timestamp: testNow.Add(-10 * time.Minute), Level: 170}}, true, 7},
		{"stale reading ignored", fakeLatest{sample: &domain.GlucoseSample{Timestamp: testNow.Add(-2 * time.Hour), Level: 170}}, false, 6},
		{"no readings", fakeLatest{}, false, 6},
		{"reader error", fakeLatest{err: errors.New("timeout")}, false, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewInsulinService(profiles, tt.latest, nil)
			svc.now = func() time.Time { return testNow }
			dose, current := svc.CalculateForMeal(context.Background(), 1, 60)
			if (current != nil) != tt.wantCurrent {
				t.Errorf("current glucose = %v, want present %v", current, tt.wantCurrent)
			}
			if dose.RoundedDose != tt.wantDose {
				t.Errorf("RoundedDose = %v, want %v", dose.RoundedDose, tt.wantDose)
			}
		})
	}
}
