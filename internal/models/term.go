package models

import "time"

// Term is an academic term known to the upstream system. Archived terms
// are scraped far less often and their subjects are marked read-only.
type Term struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Code        string    `gorm:"size:20;not null;uniqueIndex" json:"code"`
	Description string    `gorm:"size:255" json:"description"`
	Archived    bool      `gorm:"default:false" json:"archived"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Term) TableName() string { return "terms" }
