package services

import (
	"strconv"
	"time"

	"github.com/coursepulse/coursepulse/internal/models"
)

// Tracked field names emitted in audit entries.
const (
	FieldEnrollment    = "enrollment"
	FieldEnrollmentMax = "enrollment_max"
	FieldWaitlist      = "waitlist"
	FieldWaitlistMax   = "waitlist_max"
	FieldInstructor    = "instructor"
	FieldMeetingTimes  = "meeting_times"
	FieldOpen          = "open"
	FieldTitle         = "title"
)

// DiffCourses compares the tracked fields of two snapshots of the same
// course section and returns one audit entry per differing field. Both
// snapshots must share CRN and term. Identical snapshots yield nil.
func DiffCourses(prev, curr *models.Course, now time.Time) []models.AuditEntry {
	var entries []models.AuditEntry

	add := func(field, oldVal, newVal string) {
		entries = append(entries, models.AuditEntry{
			Subject:      curr.Subject,
			CourseNumber: curr.CourseNumber,
			CRN:          curr.CRN,
			Term:         curr.Term,
			FieldChanged: field,
			OldValue:     oldVal,
			NewValue:     newVal,
			CreatedAt:    now,
		})
	}

	if prev.Enrollment != curr.Enrollment {
		add(FieldEnrollment, strconv.Itoa(prev.Enrollment), strconv.Itoa(curr.Enrollment))
	}
	if prev.EnrollmentMax != curr.EnrollmentMax {
		add(FieldEnrollmentMax, strconv.Itoa(prev.EnrollmentMax), strconv.Itoa(curr.EnrollmentMax))
	}
	if prev.Waitlist != curr.Waitlist {
		add(FieldWaitlist, strconv.Itoa(prev.Waitlist), strconv.Itoa(curr.Waitlist))
	}
	if prev.WaitlistMax != curr.WaitlistMax {
		add(FieldWaitlistMax, strconv.Itoa(prev.WaitlistMax), strconv.Itoa(curr.WaitlistMax))
	}
	if prev.Instructor != curr.Instructor {
		add(FieldInstructor, prev.Instructor, curr.Instructor)
	}
	if prev.MeetingTimes != curr.MeetingTimes {
		add(FieldMeetingTimes, prev.MeetingTimes, curr.MeetingTimes)
	}
	if prev.Open != curr.Open {
		add(FieldOpen, strconv.FormatBool(prev.Open), strconv.FormatBool(curr.Open))
	}
	if prev.Title != curr.Title {
		add(FieldTitle, prev.Title, curr.Title)
	}

	return entries
}
