package services

import (
	"fmt"
	"testing"

	"github.com/coursepulse/coursepulse/internal/config"
	"github.com/coursepulse/coursepulse/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupTestDB opens an isolated in-memory database and migrates the full
// schema. A single connection keeps sqlite happy under concurrent claims.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	err = db.AutoMigrate(
		&models.Term{},
		&models.Course{},
		&models.SubjectSchedule{},
		&models.ScrapeJob{},
		&models.ScrapeResult{},
		&models.AuditEntry{},
		&models.SystemConfig{},
	)
	if err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

func testWorkerConfig() *config.WorkerConfig {
	return &config.WorkerConfig{
		Count:                  1,
		JobTimeoutMinutes:      5,
		MaxRetries:             3,
		LockExpiryMinutes:      10,
		BackoffBaseMinutes:     1,
		BackoffMaxMinutes:      30,
		ShutdownTimeoutSeconds: 2,
	}
}
