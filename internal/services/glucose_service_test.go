package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
)

func newGlucoseService(t *testing.T, profiles fakeProfiles) (*GlucoseService, *countingRecorder, *time.Time) {
	t.Helper()
	rec := &countingRecorder{}
	svc := NewGlucoseService(newTestStore(t), profiles, rec)
	now := testNow
	svc.now = func() time.Time { return now }
	return svc, rec, &now
}

func TestIngestIgnoresRedelivery(t *testing.T) {
	svc, rec, _ := newGlucoseService(t, fakeProfiles{})
	ctx := context.Background()

	batch := []Reading{
		{Timestamp: testNow.Add(-10 * time.Minute), Level: 110, Trend: "flat"},
		{Timestamp: testNow.Add(-5 * time.Minute), Level: 115, Trend: "flat"},
	}
	first, err := svc.Ingest(ctx, 1, domain.SourceLibreWebhook, batch)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if first.Created != 2 {
		t.Errorf("first delivery created %d, want 2", first.Created)
	}

	again, err := svc.Ingest(ctx, 1, domain.SourceLibreWebhook, batch)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if again.Created != 0 || again.Duplicates != 2 {
		t.Errorf("redelivery = %+v, want 0 created 2 duplicates", again)
	}
	if rec.created != 2 || rec.duplicates != 2 {
		t.Errorf("recorder = %d created %d duplicates", rec.created, rec.duplicates)
	}
}

func TestIngestSkipsInvalidReadings(t *testing.T) {
	svc, _, _ := newGlucoseService(t, fakeProfiles{})
	ctx := context.Background()

	res, err := svc.Ingest(ctx, 1, domain.SourceLibre, []Reading{
		{Level: 120},
		{Timestamp: testNow, Level: 5},
		{Timestamp: testNow, Level: 130},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Created != 1 || res.Skipped != 2 {
		t.Errorf("Ingest() = %+v, want 1 created 2 skipped", res)
	}

	_, err = svc.Ingest(ctx, 1, domain.SourceLibre, []Reading{{Level: 120}})
	if apperrors.HTTPStatus(err) != 400 {
		t.Errorf("all-invalid batch error = %v, want validation error", err)
	}
	if _, err := svc.Ingest(ctx, 1, "dexcom", []Reading{{Timestamp: testNow, Level: 100}}); apperrors.HTTPStatus(err) != 400 {
		t.Errorf("unknown source error = %v", err)
	}
	if _, err := svc.Ingest(ctx, 1, domain.SourceLibre, nil); apperrors.HTTPStatus(err) != 400 {
		t.Errorf("empty batch error = %v", err)
	}
}

func TestAddManual(t *testing.T) {
	svc, _, _ := newGlucoseService(t, fakeProfiles{})
	ctx := context.Background()

	res, err := svc.AddManual(ctx, 1, 142)
	if err != nil || res.Created != 1 {
		t.Fatalf("AddManual() = %+v, %v", res, err)
	}
	latest, err := svc.Latest(ctx, 1)
	if err != nil || latest == nil || latest.Level != 142 || latest.Source != domain.SourceManual {
		t.Errorf("Latest() = %+v, %v", latest, err)
	}
	if _, err := svc.AddManual(ctx, 1, 0); apperrors.HTTPStatus(err) != 400 {
		t.Errorf("AddManual(0) error = %v", err)
	}
}

func TestAlertsAreSuppressedWithinCooldown(t *testing.T) {
	svc, rec, now := newGlucoseService(t, fakeProfiles{})
	ctx := context.Background()

	ingest := func(level float64) *IngestResult {
		t.Helper()
		res, err := svc.Ingest(ctx, 1, domain.SourceLibre, []Reading{{Timestamp: *now, Level: level}})
		if err != nil {
			t.Fatalf("Ingest(%v) error = %v", level, err)
		}
		return res
	}

	res := ingest(60)
	if len(res.Alerts) != 1 || res.Alerts[0].Type != domain.AlertLowGlucose || res.Alerts[0].Message != "Low glucose 60 mg/dl" {
		t.Fatalf("first low reading alerts = %+v", res.Alerts)
	}

	*now = now.Add(5 * time.Minute)
	if res := ingest(55); len(res.Alerts) != 0 {
		t.Errorf("low alert repeated within cooldown: %+v", res.Alerts)
	}
	if res := ingest(250); len(res.Alerts) != 1 || res.Alerts[0].Message != "High glucose 250 mg/dl" {
		t.Errorf("high alert should not be suppressed by a low one: %+v", res.Alerts)
	}

	*now = now.Add(15 * time.Minute)
	if res := ingest(58); len(res.Alerts) != 1 {
		t.Errorf("low alert after cooldown = %+v", res.Alerts)
	}
	if res := ingest(120); len(res.Alerts) != 0 {
		t.Errorf("in-range reading raised %+v", res.Alerts)
	}

	if rec.alerts[domain.AlertLowGlucose] != 2 || rec.alerts[domain.AlertHighGlucose] != 1 {
		t.Errorf("recorded alerts = %v", rec.alerts)
	}
}

func TestAlertUsesNewestReadingOfBatch(t *testing.T) {
	svc, _, _ := newGlucoseService(t, fakeProfiles{})
	res, err := svc.Ingest(context.Background(), 1, domain.SourceLibre, []Reading{
		{Timestamp: testNow, Level: 110},
		{Timestamp: testNow.Add(-30 * time.Minute), Level: 50},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Alerts) != 0 {
		t.Errorf("old low reading raised %+v", res.Alerts)
	}
}

func TestAlertThresholds(t *testing.T) {
	tests := []struct {
		name      string
		profile   domain.UserProfile
		low, high float64
	}{
		{"defaults", domain.UserProfile{}, 69, 200},
		{"both set", domain.UserProfile{TargetMin: domain.Float(80), TargetMax: domain.Float(160)}, 80, 160},
		{"only low", domain.UserProfile{TargetMin: domain.Float(75)}, 75, 200},
		{"only high", domain.UserProfile{TargetMax: domain.Float(180)}, 69, 180},
		{"inverted", domain.UserProfile{TargetMin: domain.Float(180), TargetMax: domain.Float(90)}, 69, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			low, high := alertThresholds(tt.profile)
			if low != tt.low || high != tt.high {
				t.Errorf("alertThresholds() = %v, %v, want %v, %v", low, high, tt.low, tt.high)
			}
		})
	}
}

func TestAlertProfileFailureDoesNotFailIngest(t *testing.T) {
	svc, _, _ := newGlucoseService(t, fakeProfiles{err: errors.New("db down")})
	res, err := svc.Ingest(context.Background(), 1, domain.SourceLibre, []Reading{{Timestamp: testNow, Level: 40}})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Created != 1 || len(res.Alerts) != 0 {
		t.Errorf("Ingest() = %+v", res)
	}
}

func TestIngestWebhookRejectsUnknownUser(t *testing.T) {
	store := newTestStore(t)
	svc := NewGlucoseService(store, fakeProfiles{}, nil)
	ctx := context.Background()
	reading := Reading{Timestamp: testNow, Level: 140}

	_, err := svc.IngestWebhook(ctx, 424242, reading)
	if !errors.Is(err, apperrors.ErrUserNotFound) {
		t.Fatalf("IngestWebhook(unknown) error = %v, want ErrUserNotFound", err)
	}
	if apperrors.HTTPStatus(err) != 404 {
		t.Errorf("status = %d, want 404", apperrors.HTTPStatus(err))
	}
	samples, err := store.Glucose.GlucoseSamples(ctx, 424242, testNow.Add(-time.Hour), testNow.Add(time.Hour))
	if err != nil || len(samples) != 0 {
		t.Fatalf("stored %d samples for unknown user (err %v)", len(samples), err)
	}

	user, err := store.Users.GetOrCreateByTelegramID(ctx, 55, "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	res, err := svc.IngestWebhook(ctx, user.ID, reading)
	if err != nil || res.Created != 1 {
		t.Fatalf("IngestWebhook(known) = %+v, %v", res, err)
	}
}

type countingInvalidator struct{ users []uint }

func (c *countingInvalidator) Invalidate(_ context.Context, userID uint) error {
	c.users = append(c.users, userID)
	return nil
}

func TestIngestInvalidatesInsightsOnlyWhenCreated(t *testing.T) {
	svc, _, _ := newGlucoseService(t, fakeProfiles{})
	inv := &countingInvalidator{}
	svc.SetInsightInvalidator(inv)
	ctx := context.Background()

	batch := []Reading{{Timestamp: testNow, Level: 120}}
	if _, err := svc.Ingest(ctx, 3, domain.SourceLibre, batch); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Ingest(ctx, 3, domain.SourceLibre, batch); err != nil {
		t.Fatal(err)
	}
	if len(inv.users) != 1 || inv.users[0] != 3 {
		t.Errorf("invalidated %v, want [3] once", inv.users)
	}
}
