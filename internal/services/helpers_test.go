package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vladimiradmaev/diabetes-backend/internal/database"
	"github.com/vladimiradmaev/diabetes-backend/internal/domain"
	"github.com/vladimiradmaev/diabetes-backend/internal/repository"
)

var testNow = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return repository.NewStore(db)
}

type fakeProfiles struct {
	profiles map[uint]domain.UserProfile
	err      error
}

func (f fakeProfiles) Profile(_ context.Context, userID uint) (domain.UserProfile, error) {
	if f.err != nil {
		return domain.UserProfile{}, f.err
	}
	return f.profiles[userID], nil
}

type fakeHistory struct {
	mu      sync.Mutex
	samples []domain.GlucoseSample
	meals   []domain.MealRecord
	calls   int
}

func (f *fakeHistory) GlucoseSamples(_ context.Context, _ uint, from, to time.Time) ([]domain.GlucoseSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var out []domain.GlucoseSample
	for _, s := range f.samples {
		if !s.Timestamp.Before(from) && !s.Timestamp.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeHistory) MealRecords(_ context.Context, _ uint, from, to time.Time) ([]domain.MealRecord, error) {
	var out []domain.MealRecord
	for _, m := range f.meals {
		if !m.Timestamp.Before(from) && !m.Timestamp.After(to) {
			out = append(out, m)
		}
	}
	return out, nil
}

type countingRecorder struct {
	mu         sync.Mutex
	created    int
	duplicates int
	alerts     map[string]int
	doses      int
	flags      []string
}

func (r *countingRecorder) RecordIngest(_ string, created, duplicates int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created += created
	r.duplicates += duplicates
}

func (r *countingRecorder) RecordAlert(alertType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.alerts == nil {
		r.alerts = map[string]int{}
	}
	r.alerts[alertType]++
}

func (r *countingRecorder) RecordDose(flags []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doses++
	r.flags = append(r.flags, flags...)
}
