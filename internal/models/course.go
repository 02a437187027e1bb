package models

import "time"

// Course is the mirrored course section, upserted by CRN+Term.
type Course struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Subject       string    `gorm:"size:20;not null;index" json:"subject"`
	CourseNumber  string    `gorm:"size:20;not null" json:"course_number"`
	CRN           string    `gorm:"size:20;not null;uniqueIndex:idx_courses_crn_term" json:"crn"`
	Term          string    `gorm:"size:20;not null;uniqueIndex:idx_courses_crn_term" json:"term"`
	Title         string    `gorm:"size:255" json:"title"`
	Instructor    string    `gorm:"size:255" json:"instructor"`
	Enrollment    int       `gorm:"default:0" json:"enrollment"`
	EnrollmentMax int       `gorm:"default:0" json:"enrollment_max"`
	Waitlist      int       `gorm:"default:0" json:"waitlist"`
	WaitlistMax   int       `gorm:"default:0" json:"waitlist_max"`
	CreditHours   float64   `gorm:"default:0" json:"credit_hours"`
	MeetingTimes  string    `gorm:"type:text" json:"meeting_times"` // serialized schedule blocks
	Open          bool      `gorm:"default:true" json:"open"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Course) TableName() string { return "courses" }
