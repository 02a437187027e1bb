package models

import "time"

// Job priorities. Higher values win at claim time. The zero value is
// deliberately unused: gorm omits zero-valued fields that carry a default
// tag from the INSERT, so a zero priority would silently take the column
// default instead.
const (
	PriorityLow    = 1
	PriorityNormal = 2
	PriorityHigh   = 3
	PriorityUrgent = 4
)

// Job statuses. A locked job stays in "pending"; the lock columns carry
// ownership. Completed and failed are terminal.
const (
	JobStatusPending   = "pending"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job target types.
const (
	TargetSubject   = "subject"
	TargetCatalog   = "catalog"
	TargetReference = "reference"
)

// ScrapeJob is one unit of queued scrape work. Jobs are claimed by workers
// through a conditional update on the lock columns, so a row with a
// non-expired LockedAt belongs to exactly one worker.
type ScrapeJob struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	TargetType string     `gorm:"size:50;not null;index:idx_jobs_target" json:"target_type"`
	TargetKey  string     `gorm:"size:100;not null;index:idx_jobs_target" json:"target_key"`
	Priority   int        `gorm:"not null;default:2;index:idx_jobs_claim,priority:1" json:"priority"`
	Status     string     `gorm:"size:20;not null;default:pending;index" json:"status"`
	ExecuteAt  time.Time  `gorm:"index:idx_jobs_claim,priority:2" json:"execute_at"`
	LockedAt   *time.Time `json:"locked_at"`
	LockedBy   string     `gorm:"size:100" json:"locked_by"`
	RetryCount int        `gorm:"default:0" json:"retry_count"`
	MaxRetries int        `gorm:"default:3" json:"max_retries"`
	LastError  string     `gorm:"type:text" json:"last_error"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (ScrapeJob) TableName() string { return "scrape_jobs" }

// PriorityName returns the human-readable priority label.
func PriorityName(p int) string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}
