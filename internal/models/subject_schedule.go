package models

import "time"

// Schedule states.
const (
	ScheduleEligible = "eligible"
	ScheduleCooldown = "cooldown"
	SchedulePaused   = "paused"
	ScheduleReadOnly = "read_only"
)

// SubjectSchedule tracks per-subject refresh cadence. NextEligibleAt is
// always LastScrapedAt + CurrentInterval, clamped to the configured bounds.
type SubjectSchedule struct {
	ID                     uint          `gorm:"primaryKey" json:"id"`
	Subject                string        `gorm:"size:20;not null;uniqueIndex:idx_schedule_subject_term" json:"subject"`
	Term                   string        `gorm:"size:20;not null;uniqueIndex:idx_schedule_subject_term" json:"term"`
	CurrentInterval        time.Duration `gorm:"not null" json:"current_interval"`
	LastScrapedAt          *time.Time    `json:"last_scraped_at"`
	NextEligibleAt         time.Time     `gorm:"index" json:"next_eligible_at"`
	CourseCount            int           `gorm:"default:0" json:"course_count"`
	AvgChangeRatio         float64       `gorm:"default:0" json:"avg_change_ratio"`
	ConsecutiveZeroChanges int           `gorm:"default:0" json:"consecutive_zero_changes"`
	RecentRuns             int           `gorm:"default:0" json:"recent_runs"`
	RecentFailures         int           `gorm:"default:0" json:"recent_failures"`
	State                  string        `gorm:"size:20;not null;default:eligible;index" json:"state"`
	CreatedAt              time.Time     `json:"created_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

func (SubjectSchedule) TableName() string { return "subject_schedules" }
