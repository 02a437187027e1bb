package models

import "time"

// ScrapeResult is the immutable outcome record of one job attempt.
type ScrapeResult struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	JobID           uint      `gorm:"index;not null" json:"job_id"`
	Subject         string    `gorm:"size:20;index" json:"subject"`
	Term            string    `gorm:"size:20" json:"term"`
	CompletedAt     time.Time `gorm:"index" json:"completed_at"`
	DurationMs      int64     `json:"duration_ms"`
	Success         bool      `gorm:"index" json:"success"`
	CoursesFetched  int       `json:"courses_fetched"`
	CoursesChanged  int       `json:"courses_changed"`
	AuditsGenerated int       `json:"audits_generated"`
	ErrorMessage    string    `gorm:"type:text" json:"error_message"`
}

func (ScrapeResult) TableName() string { return "scrape_results" }
