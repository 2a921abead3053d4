package database

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vladimiradmaev/diabetes-backend/internal/config"
	"github.com/vladimiradmaev/diabetes-backend/internal/database/migrations"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
)

type User struct {
	gorm.Model
	TelegramID       *int64 `gorm:"uniqueIndex"`
	Username         string
	FirstName        string
	LastName         string
	CarbRatio        *float64 // grams per unit
	CorrectionFactor *float64 // mg/dL per unit
	TargetMin        *float64
	TargetMax        *float64
}

// GlucoseRecord is one reading. A row is unique per user, timestamp, level
// and source so re-delivered readings are ignored on insert.
type GlucoseRecord struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null;uniqueIndex:uniq_glucose_row,priority:1;index:idx_glucose_user_time,priority:1"`
	Timestamp time.Time `gorm:"not null;uniqueIndex:uniq_glucose_row,priority:2;index:idx_glucose_user_time,priority:2"`
	Level     float64   `gorm:"not null;uniqueIndex:uniq_glucose_row,priority:3"`
	Source    string    `gorm:"size:32;not null;uniqueIndex:uniq_glucose_row,priority:4"`
	Trend     string    `gorm:"size:32"`
	CreatedAt time.Time
}

type MealEntry struct {
	gorm.Model
	UserID          uint      `gorm:"not null;index:idx_meal_user_time,priority:1"`
	Timestamp       time.Time `gorm:"not null;index:idx_meal_user_time,priority:2"`
	MealType        string    `gorm:"size:16;not null;default:lunch"`
	FoodName        string
	Weight          float64
	Carbs           float64
	InsulinUnits    *float64
	RecommendedDose *float64
	RoundedDose     *float64
	Confidence      float64
	AnalysisText    string
	UsedProvider    string // "gemini" or "manual"
}

// CarbRatioPeriod overrides the profile carb ratio between two times of day.
type CarbRatioPeriod struct {
	gorm.Model
	UserID    uint    `gorm:"not null;index"`
	StartTime string  // Format: "HH:MM"
	EndTime   string  // Format: "HH:MM"
	Ratio     float64 // grams per unit
}

type Alert struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"not null;index:idx_alert_user_type,priority:1"`
	Type      string `gorm:"size:32;not null;index:idx_alert_user_type,priority:2"`
	Message   string
	Level     float64
	Timestamp time.Time `gorm:"not null"`
	CreatedAt time.Time
}

// InsightReport keeps the latest insight snapshot per user.
type InsightReport struct {
	ID                   uint `gorm:"primaryKey"`
	UserID               uint `gorm:"not null;uniqueIndex"`
	Days                 int
	AvgGlucose           *float64
	MostFrequentMealType *string
	TimeOfDayWithSpikes  *string
	Payload              datatypes.JSON
	UpdatedAt            time.Time
}

// Models lists every table owned by the service.
func Models() []any {
	return []any{&User{}, &GlucoseRecord{}, &MealEntry{}, &CarbRatioPeriod{}, &Alert{}, &InsightReport{}}
}

func NewPostgresDB(cfg config.DBConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logger.Info("Database connection established and migrations completed",
		"host", cfg.Host,
		"database", cfg.DBName)
	return db, nil
}

// Migrate creates the schema and applies pending data migrations.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	m := migrations.New()
	if err := m.LoadSQL(migrations.SQLFiles, "sql"); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	m.Register("0002_import_blood_sugar_records", importBloodSugarRecords, nil)

	if err := m.Run(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// importBloodSugarRecords moves readings from the bot-era table into
// glucose_records as manual entries.
func importBloodSugarRecords(db *gorm.DB) error {
	if !db.Migrator().HasTable("blood_sugar_records") {
		return nil
	}
	err := db.Exec(`INSERT INTO glucose_records (user_id, timestamp, level, source, trend, created_at)
		SELECT user_id, timestamp, value, 'manual', '', created_at
		FROM blood_sugar_records
		WHERE deleted_at IS NULL
		ON CONFLICT DO NOTHING`).Error
	if err != nil {
		return err
	}
	return db.Migrator().DropTable("blood_sugar_records")
}
