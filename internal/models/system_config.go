package models

import "time"

// SystemConfig represents runtime-editable settings (stored in database)
type SystemConfig struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	// Key and Group avoid the bare column names "key" and "group", which
	// are reserved words in at least one of the supported dialects.
	Key       string    `gorm:"column:config_key;uniqueIndex;size:100;not null" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:20;default:string" json:"type"`             // string, int, bool, json
	Group     string    `gorm:"column:config_group;size:50;index" json:"group"` // scheduler, limiter, general
	Label     string    `gorm:"size:200" json:"label"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SystemConfig) TableName() string { return "system_configs" }

// Well-known setting keys.
const (
	ConfigKeyPrioritySubjects = "priority_subjects"
	ConfigKeyMinSpacingMin    = "min_spacing_minutes"
	ConfigKeyFullRefreshCron  = "full_refresh_cron"
)
