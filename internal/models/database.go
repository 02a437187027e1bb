package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/coursepulse/coursepulse/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB(cfg *config.DatabaseConfig) error {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	DB = db
	return nil
}

func AutoMigrate() error {
	return DB.AutoMigrate(
		&Term{},
		&Course{},
		&SubjectSchedule{},
		&ScrapeJob{},
		&ScrapeResult{},
		&AuditEntry{},
		&SystemConfig{},
	)
}

func GetDB() *gorm.DB {
	return DB
}

// SeedDefaultData creates default settings rows if they do not exist.
// Values originating in the config file are only used to seed; once a row
// exists the database copy wins, so admin edits survive restarts.
func SeedDefaultData(cfg *config.SchedulerConfig) error {
	defaults := []SystemConfig{
		{
			Key:   ConfigKeyPrioritySubjects,
			Value: strings.Join(cfg.PrioritySubjects, ","),
			Type:  "string",
			Group: "scheduler",
			Label: "Comma-separated subjects refreshed at urgent priority",
		},
		{
			Key:   ConfigKeyMinSpacingMin,
			Value: strconv.Itoa(cfg.MinSpacingMinutes),
			Type:  "int",
			Group: "scheduler",
			Label: "Minimum minutes between scrapes of one subject",
		},
		{
			Key:   ConfigKeyFullRefreshCron,
			Value: cfg.FullRefreshCron,
			Type:  "string",
			Group: "scheduler",
			Label: "Cron schedule for the full catalog refresh",
		},
	}

	for _, row := range defaults {
		var count int64
		DB.Model(&SystemConfig{}).Where("config_key = ?", row.Key).Count(&count)
		if count == 0 {
			if err := DB.Create(&row).Error; err != nil {
				return err
			}
		}
	}

	return nil
}
