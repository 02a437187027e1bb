package models

import "time"

// AuditEntry records one field-level change detected between two snapshots
// of the same course section. Append-only.
type AuditEntry struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Subject      string    `gorm:"size:20;index:idx_audits_subject" json:"subject"`
	CourseNumber string    `gorm:"size:20" json:"course_number"`
	CRN          string    `gorm:"size:20;index:idx_audits_crn_term" json:"crn"`
	Term         string    `gorm:"size:20;index:idx_audits_crn_term" json:"term"`
	FieldChanged string    `gorm:"size:50;not null" json:"field_changed"`
	OldValue     string    `gorm:"type:text" json:"old_value"`
	NewValue     string    `gorm:"type:text" json:"new_value"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (AuditEntry) TableName() string { return "audit_entries" }
