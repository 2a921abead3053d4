package database

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vladimiradmaev/diabetes-backend/internal/database/migrations"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 2; i++ {
		if err := Migrate(db); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i+1, err)
		}
	}

	var records []migrations.MigrationRecord
	if err := db.Order("id").Find(&records).Error; err != nil {
		t.Fatal(err)
	}
	want := []string{"0001_backfill_meal_type", "0002_import_blood_sugar_records", "0003_glucose_source_tags"}
	if len(records) != len(want) {
		t.Fatalf("executed migrations = %v, want %v", records, want)
	}
	for i, id := range want {
		if records[i].ID != id {
			t.Errorf("migration %d = %q, want %q", i, records[i].ID, id)
		}
	}
}

func TestGlucoseRowUniqueness(t *testing.T) {
	db := openTestDB(t)
	if err := Migrate(db); err != nil {
		t.Fatal(err)
	}

	ts := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	row := GlucoseRecord{UserID: 1, Timestamp: ts, Level: 120, Source: "libre"}
	if err := db.Create(&row).Error; err != nil {
		t.Fatal(err)
	}
	dup := GlucoseRecord{UserID: 1, Timestamp: ts, Level: 120, Source: "libre"}
	if err := db.Create(&dup).Error; err == nil {
		t.Error("duplicate reading was accepted")
	}
	other := GlucoseRecord{UserID: 1, Timestamp: ts, Level: 120, Source: "manual"}
	if err := db.Create(&other).Error; err != nil {
		t.Errorf("same reading from another source rejected: %v", err)
	}
}

func TestImportBloodSugarRecords(t *testing.T) {
	db := openTestDB(t)
	err := db.Exec(`CREATE TABLE blood_sugar_records (
		id integer PRIMARY KEY,
		created_at datetime,
		updated_at datetime,
		deleted_at datetime,
		user_id integer,
		value real,
		timestamp datetime)`).Error
	if err != nil {
		t.Fatal(err)
	}
	err = db.Exec(`INSERT INTO blood_sugar_records (created_at, user_id, value, timestamp, deleted_at) VALUES
		('2024-03-01 08:00:00', 7, 110, '2024-03-01 08:00:00', NULL),
		('2024-03-01 09:00:00', 7, 180, '2024-03-01 09:00:00', NULL),
		('2024-03-01 10:00:00', 7, 90, '2024-03-01 10:00:00', '2024-03-02 00:00:00')`).Error
	if err != nil {
		t.Fatal(err)
	}

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	var rows []GlucoseRecord
	if err := db.Where("user_id = ?", 7).Order("level").Find(&rows).Error; err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Level != 110 || rows[1].Level != 180 || rows[0].Source != "manual" {
		t.Errorf("imported rows = %+v", rows)
	}
	if db.Migrator().HasTable("blood_sugar_records") {
		t.Error("legacy table should be dropped")
	}
}

func TestMigratorLoadSQL(t *testing.T) {
	m := migrations.New()
	if err := m.LoadSQL(migrations.SQLFiles, "sql"); err != nil {
		t.Fatal(err)
	}
	ids := m.IDs()
	if len(ids) != 2 || ids[0] != "0001_backfill_meal_type" {
		t.Errorf("IDs() = %v", ids)
	}
	if err := m.LoadSQL(migrations.SQLFiles, "missing"); err == nil {
		t.Error("LoadSQL() on a missing directory succeeded")
	}
}
