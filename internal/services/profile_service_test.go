package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
)

func TestTimeToMinutes(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"06:30", 390, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"7:5", 0, true},
		{"noon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := TimeToMinutes(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("TimeToMinutes(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("TimeToMinutes(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidatePeriod(t *testing.T) {
	existing := []domain.CarbRatioPeriod{
		{ID: 1, StartTime: "06:00", EndTime: "11:00", Ratio: 10},
		{ID: 2, StartTime: "22:00", EndTime: "02:00", Ratio: 14},
	}
	tests := []struct {
		name    string
		start   string
		end     string
		ratio   float64
		wantMsg string
	}{
		{"adjacent after morning", "11:00", "14:00", 12, ""},
		{"fills the gap before morning", "02:00", "06:00", 15, ""},
		{"overlaps morning start", "05:00", "07:00", 12, "overlaps"},
		{"inside morning", "07:00", "08:00", 12, "overlaps"},
		{"overlaps wrapped night", "01:00", "03:00", 12, "overlaps"},
		{"wraps into night", "21:00", "23:00", 12, "overlaps"},
		{"bad start", "6am", "07:00", 12, "start time"},
		{"bad end", "06:00", "25:00", 12, "end time"},
		{"empty period", "12:00", "12:00", 12, "must differ"},
		{"zero ratio", "12:00", "13:00", 0, "ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePeriod(domain.CarbRatioPeriod{StartTime: tt.start, EndTime: tt.end, Ratio: tt.ratio}, existing)
			if tt.wantMsg == "" {
				if err != nil {
					t.Errorf("validatePeriod() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("validatePeriod() error = %v, want %q", err, tt.wantMsg)
			}
			if apperrors.HTTPStatus(err) != 400 {
				t.Errorf("status = %d, want 400", apperrors.HTTPStatus(err))
			}
		})
	}
}

func TestPeriodContains(t *testing.T) {
	night := domain.CarbRatioPeriod{StartTime: "22:00", EndTime: "02:00"}
	for minute, want := range map[int]bool{
		21*60 + 59: false,
		22 * 60:    true,
		0:          true,
		60:         true,
		2 * 60:     false,
	} {
		if got := periodContains(night, minute); got != want {
			t.Errorf("periodContains(night, %d) = %v, want %v", minute, got, want)
		}
	}
	if got := periodLength(night); got != 240 {
		t.Errorf("periodLength(night) = %d, want 240", got)
	}
	morning := domain.CarbRatioPeriod{StartTime: "06:00", EndTime: "11:00"}
	if got := CoverageMinutes([]domain.CarbRatioPeriod{night, morning}); got != 540 {
		t.Errorf("CoverageMinutes() = %d, want 540", got)
	}
}

func TestProfileUsesActiveRatio(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := NewProfileService(store)

	user, err := store.Users.GetOrCreateByTelegramID(ctx, 77, "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.UpdateProfile(ctx, user.ID, domain.UserProfile{CarbRatio: domain.Float(15), CorrectionFactor: domain.Float(40)}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddRatio(ctx, user.ID, "06:00", "11:00", 10); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddRatio(ctx, user.ID, "22:00", "02:00", 14); err != nil {
		t.Fatal(err)
	}

	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want float64
	}{
		{day.Add(7 * time.Hour), 10},
		{day.Add(90 * time.Minute), 14},
		{day.Add(12 * time.Hour), 15},
	}
	for _, tt := range tests {
		svc.now = func() time.Time { return tt.at }
		p, err := svc.Profile(ctx, user.ID)
		if err != nil {
			t.Fatal(err)
		}
		if p.CarbRatio == nil || *p.CarbRatio != tt.want {
			t.Errorf("Profile() at %s carb ratio = %v, want %v", tt.at.Format("15:04"), p.CarbRatio, tt.want)
		}
		if p.CorrectionFactor == nil || *p.CorrectionFactor != 40 {
			t.Errorf("correction factor = %v", p.CorrectionFactor)
		}
	}
}

func TestRatioLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := NewProfileService(store)

	morning, err := svc.AddRatio(ctx, 1, "06:00", "11:00", 10)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddRatio(ctx, 1, "10:00", "12:00", 11); err == nil {
		t.Error("overlapping AddRatio() succeeded")
	}

	// extending a period must not collide with itself
	if err := svc.UpdateRatio(ctx, 1, morning.ID, "05:00", "12:00", 9); err != nil {
		t.Fatalf("UpdateRatio() error = %v", err)
	}
	ratios, err := svc.Ratios(ctx, 1)
	if err != nil || len(ratios) != 1 || ratios[0].StartTime != "05:00" || ratios[0].Ratio != 9 {
		t.Errorf("Ratios() = %+v, %v", ratios, err)
	}

	if err := svc.DeleteRatio(ctx, 1, morning.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteRatio(ctx, 1, morning.ID); !errors.Is(err, apperrors.ErrRecordNotFound) {
		t.Errorf("second DeleteRatio() error = %v", err)
	}
}

func TestUpdateProfileValidation(t *testing.T) {
	svc := NewProfileService(newTestStore(t))
	ctx := context.Background()

	tests := []struct {
		name    string
		profile domain.UserProfile
	}{
		{"negative ratio", domain.UserProfile{CarbRatio: domain.Float(-1)}},
		{"zero correction", domain.UserProfile{CorrectionFactor: domain.Float(0)}},
		{"inverted target", domain.UserProfile{TargetMin: domain.Float(180), TargetMax: domain.Float(80)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.UpdateProfile(ctx, 1, tt.profile); apperrors.HTTPStatus(err) != 400 {
				t.Errorf("UpdateProfile() error = %v, want validation error", err)
			}
		})
	}
}
