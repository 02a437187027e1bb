package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coursepulse/coursepulse/internal/config"
	"github.com/coursepulse/coursepulse/internal/models"
	"github.com/coursepulse/coursepulse/internal/upstream"
	"gorm.io/gorm"
)

// newTestProcessor wires a processor against a stub upstream server with
// a limiter generous enough that no test call ever blocks.
func newTestProcessor(t *testing.T, handler http.Handler) (*gorm.DB, *ScrapeProcessor, *httptest.Server) {
	t.Helper()

	db := setupTestDB(t)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	upCfg := &config.UpstreamConfig{
		BaseURL:           server.URL,
		TimeoutSeconds:    5,
		SessionTTLMinutes: 25,
		PageSize:          200,
		UserAgent:         "coursepulse-test",
	}
	limCfg := &config.LimiterConfig{
		RefillPerSecond: 1000,
		BucketSize:      1000,
		ForegroundBurst: 10,
		Costs: config.CostConfig{
			Terms: 1, Subjects: 1, SearchBase: 1, SearchPer100: 1.5, MeetingTimes: 0.5,
		},
	}

	sessions := upstream.NewSessionKeeper(25 * time.Minute)
	client := upstream.NewClient(upCfg, sessions)
	limiter := NewCostLimiter(limCfg)
	hub := NewEventHub()
	settings := NewSettingsService(db)
	policy := fixedPolicy(testSchedulerConfig())

	proc := NewScrapeProcessor(db, client, limiter, hub, policy, settings, testSchedulerConfig())
	return db, proc, server
}

func stubRecord(crn string, enrollment int) upstream.CourseRecord {
	return upstream.CourseRecord{
		CRN:           crn,
		Subject:       "CS",
		CourseNumber:  "2500",
		Title:         "Fundamentals of Computer Science 1",
		Instructor:    "A. Lovelace",
		Enrollment:    enrollment,
		MaxEnrollment: 150,
		WaitCapacity:  25,
		CreditHours:   4,
		OpenSection:   true,
		MeetingBlocks: []upstream.MeetingBlock{
			{Days: "MWR", BeginTime: "0915", EndTime: "1020", Building: "Shillman", Room: "105"},
		},
	}
}

func searchHandler(records []upstream.CourseRecord) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/searchResults" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":    true,
			"totalCount": len(records),
			"data":       records,
		})
	})
}

func subjectJob(t *testing.T, db *gorm.DB) *models.ScrapeJob {
	t.Helper()
	job := models.ScrapeJob{
		TargetType: models.TargetSubject,
		TargetKey:  JobKey("202610", "CS"),
		Priority:   models.PriorityNormal,
		Status:     models.JobStatusPending,
		ExecuteAt:  time.Now(),
		MaxRetries: 3,
	}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}
	return &job
}

func TestProcessSubjectDetectsChanges(t *testing.T) {
	records := make([]upstream.CourseRecord, 120)
	for i := range records {
		records[i] = stubRecord(fmt.Sprintf("3%04d", i), 100)
	}
	db, proc, _ := newTestProcessor(t, searchHandler(records))

	sched := mustCreateSchedule(t, db, models.SubjectSchedule{
		Subject:        "CS",
		Term:           "202610",
		CourseCount:    120,
		NextEligibleAt: time.Now().Add(-time.Hour),
	})

	// Seed the mirror from the same records, then bump enrollment on
	// three of them upstream so exactly three sections differ.
	for i := range records {
		rec := records[i]
		course := recordToCourse(&rec, "202610")
		if err := db.Create(course).Error; err != nil {
			t.Fatalf("seed course: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		records[i].Enrollment = 101
	}

	job := subjectJob(t, db)
	if err := proc.Process(context.Background(), job, LaneBackground); err != nil {
		t.Fatalf("process: %v", err)
	}

	var result models.ScrapeResult
	if err := db.Where("job_id = ?", job.ID).First(&result).Error; err != nil {
		t.Fatalf("load result: %v", err)
	}
	if !result.Success {
		t.Error("result not marked successful")
	}
	if result.CoursesFetched != 120 {
		t.Errorf("fetched = %d, expected 120", result.CoursesFetched)
	}
	if result.CoursesChanged != 3 {
		t.Errorf("changed = %d, expected 3", result.CoursesChanged)
	}
	if result.AuditsGenerated != 3 {
		t.Errorf("audits = %d, expected 3", result.AuditsGenerated)
	}

	var audits []models.AuditEntry
	if err := db.Find(&audits).Error; err != nil {
		t.Fatalf("load audits: %v", err)
	}
	if len(audits) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(audits))
	}
	for _, a := range audits {
		if a.FieldChanged != FieldEnrollment {
			t.Errorf("field = %s, expected enrollment", a.FieldChanged)
		}
		if a.OldValue != "100" || a.NewValue != "101" {
			t.Errorf("values = %s -> %s, expected 100 -> 101", a.OldValue, a.NewValue)
		}
	}

	// The schedule is recomputed from the run.
	if err := db.First(sched, sched.ID).Error; err != nil {
		t.Fatalf("reload schedule: %v", err)
	}
	if sched.CourseCount != 120 {
		t.Errorf("course count = %d, expected 120", sched.CourseCount)
	}
	if sched.RecentRuns != 1 {
		t.Errorf("recent runs = %d, expected 1", sched.RecentRuns)
	}
	if sched.ConsecutiveZeroChanges != 0 {
		t.Errorf("zero-change streak = %d, expected reset", sched.ConsecutiveZeroChanges)
	}
	wantRatio := changeRatioWeight * 3.0 / 120.0
	if diff := sched.AvgChangeRatio - wantRatio; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("avg change ratio = %v, expected %v", sched.AvgChangeRatio, wantRatio)
	}
	if sched.LastScrapedAt == nil {
		t.Fatal("last scraped not set")
	}
	gap := sched.NextEligibleAt.Sub(sched.LastScrapedAt.Add(sched.CurrentInterval))
	if gap < -time.Second || gap > time.Second {
		t.Errorf("next eligible %v != last %v + interval %v",
			sched.NextEligibleAt, sched.LastScrapedAt, sched.CurrentInterval)
	}
}

func TestProcessSubjectNewCoursesNoAudits(t *testing.T) {
	records := []upstream.CourseRecord{
		stubRecord("30001", 10),
		stubRecord("30002", 20),
		stubRecord("30003", 30),
	}
	db, proc, _ := newTestProcessor(t, searchHandler(records))

	mustCreateSchedule(t, db, models.SubjectSchedule{
		Subject:        "CS",
		Term:           "202610",
		NextEligibleAt: time.Now().Add(-time.Hour),
	})

	job := subjectJob(t, db)
	if err := proc.Process(context.Background(), job, LaneBackground); err != nil {
		t.Fatalf("process: %v", err)
	}

	var courseCount, auditCount int64
	db.Model(&models.Course{}).Count(&courseCount)
	db.Model(&models.AuditEntry{}).Count(&auditCount)
	if courseCount != 3 {
		t.Errorf("expected 3 mirrored courses, got %d", courseCount)
	}
	if auditCount != 0 {
		t.Errorf("first sighting generated %d audits", auditCount)
	}

	var sched models.SubjectSchedule
	if err := db.Where("subject = ?", "CS").First(&sched).Error; err != nil {
		t.Fatalf("reload schedule: %v", err)
	}
	if sched.ConsecutiveZeroChanges != 1 {
		t.Errorf("zero-change streak = %d, expected 1", sched.ConsecutiveZeroChanges)
	}

	var course models.Course
	if err := db.Where("crn = ?", "30001").First(&course).Error; err != nil {
		t.Fatalf("load course: %v", err)
	}
	if course.MeetingTimes != "MWR 0915-1020 Shillman 105" {
		t.Errorf("meeting times = %q", course.MeetingTimes)
	}
}

func TestProcessSubjectMeetingTimesFallback(t *testing.T) {
	rec := stubRecord("30001", 10)
	rec.MeetingBlocks = nil

	var meetingCalls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/searchResults":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true, "totalCount": 1, "data": []upstream.CourseRecord{rec},
			})
		case "/searchResults/getFacultyMeetingTimes":
			meetingCalls++
			if r.URL.Query().Get("courseReferenceNumber") != "30001" {
				t.Errorf("meeting times called with crn %q", r.URL.Query().Get("courseReferenceNumber"))
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data": []upstream.MeetingBlock{
					{Days: "TF", BeginTime: "1335", EndTime: "1515", Building: "Ryder", Room: "155"},
				},
			})
		default:
			http.NotFound(w, r)
		}
	})
	db, proc, _ := newTestProcessor(t, handler)

	mustCreateSchedule(t, db, models.SubjectSchedule{
		Subject:        "CS",
		Term:           "202610",
		NextEligibleAt: time.Now().Add(-time.Hour),
	})

	job := subjectJob(t, db)
	if err := proc.Process(context.Background(), job, LaneBackground); err != nil {
		t.Fatalf("process: %v", err)
	}
	if meetingCalls != 1 {
		t.Errorf("meeting times endpoint called %d times, expected 1", meetingCalls)
	}

	var course models.Course
	if err := db.Where("crn = ?", "30001").First(&course).Error; err != nil {
		t.Fatalf("load course: %v", err)
	}
	if course.MeetingTimes != "TF 1335-1515 Ryder 155" {
		t.Errorf("meeting times = %q", course.MeetingTimes)
	}
}

func TestProcessSubjectZeroCoursesCooldown(t *testing.T) {
	db, proc, _ := newTestProcessor(t, searchHandler(nil))

	mustCreateSchedule(t, db, models.SubjectSchedule{
		Subject:        "CS",
		Term:           "202610",
		CourseCount:    40,
		NextEligibleAt: time.Now().Add(-time.Hour),
	})

	job := subjectJob(t, db)
	if err := proc.Process(context.Background(), job, LaneBackground); err != nil {
		t.Fatalf("process: %v", err)
	}

	var sched models.SubjectSchedule
	if err := db.Where("subject = ?", "CS").First(&sched).Error; err != nil {
		t.Fatalf("reload schedule: %v", err)
	}
	if sched.State != models.ScheduleCooldown {
		t.Errorf("state = %s, expected cooldown", sched.State)
	}
	if sched.CurrentInterval != 12*time.Hour {
		t.Errorf("interval = %v, expected the fixed 12h retry", sched.CurrentInterval)
	}
}

func TestProcessReferenceArchivesOldTerms(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/classSearch/getTerms" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": []upstream.TermInfo{
				{Code: "202580", Description: "Fall 2025"},
				{Code: "202610", Description: "Spring 2026"},
				{Code: "202630", Description: "Summer 2026"},
			},
		})
	})
	db, proc, _ := newTestProcessor(t, handler)

	// Fall 2025 already has an active subject; it must drop to read-only.
	mustCreateSchedule(t, db, models.SubjectSchedule{
		Subject:        "HIST",
		Term:           "202580",
		NextEligibleAt: time.Now().Add(24 * time.Hour),
	})

	job := &models.ScrapeJob{TargetType: models.TargetReference, TargetKey: "terms"}
	if err := proc.Process(context.Background(), job, LaneBackground); err != nil {
		t.Fatalf("process: %v", err)
	}

	var terms []models.Term
	if err := db.Order("code").Find(&terms).Error; err != nil {
		t.Fatalf("load terms: %v", err)
	}
	if len(terms) != 3 {
		t.Fatalf("expected 3 terms, got %d", len(terms))
	}
	archived := map[string]bool{}
	for _, term := range terms {
		archived[term.Code] = term.Archived
	}
	if archived["202580"] != true || archived["202610"] != false || archived["202630"] != false {
		t.Errorf("archive flags wrong: %v", archived)
	}

	var sched models.SubjectSchedule
	if err := db.Where("subject = ?", "HIST").First(&sched).Error; err != nil {
		t.Fatalf("reload schedule: %v", err)
	}
	if sched.State != models.ScheduleReadOnly {
		t.Errorf("archived-term schedule state = %s, expected read_only", sched.State)
	}
}

func TestProcessCatalogDiscoversSubjects(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/classSearch/getSubjects" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": []upstream.SubjectInfo{
				{Code: "CS", Description: "Computer Science"},
				{Code: "MATH", Description: "Mathematics"},
			},
		})
	})
	db, proc, _ := newTestProcessor(t, handler)

	if err := db.Create(&models.Term{Code: "202610", Description: "Spring 2026"}).Error; err != nil {
		t.Fatalf("seed term: %v", err)
	}
	// CS already tracked; only MATH should be created.
	mustCreateSchedule(t, db, models.SubjectSchedule{
		Subject:        "CS",
		Term:           "202610",
		NextEligibleAt: time.Now().Add(time.Hour),
	})

	job := &models.ScrapeJob{TargetType: models.TargetCatalog, TargetKey: "full"}
	if err := proc.Process(context.Background(), job, LaneBackground); err != nil {
		t.Fatalf("process: %v", err)
	}

	var schedules []models.SubjectSchedule
	if err := db.Order("subject").Find(&schedules).Error; err != nil {
		t.Fatalf("load schedules: %v", err)
	}
	if len(schedules) != 2 {
		t.Fatalf("expected 2 schedules, got %d", len(schedules))
	}
	if schedules[1].Subject != "MATH" {
		t.Errorf("expected MATH discovered, got %s", schedules[1].Subject)
	}
	if schedules[1].State != models.ScheduleEligible {
		t.Errorf("new subject state = %s, expected eligible", schedules[1].State)
	}
	if schedules[1].NextEligibleAt.After(time.Now().Add(time.Minute)) {
		t.Error("new subject should be immediately eligible")
	}
}

func TestRecordFailure(t *testing.T) {
	db, proc, _ := newTestProcessor(t, http.NotFoundHandler())

	mustCreateSchedule(t, db, models.SubjectSchedule{
		Subject:        "CS",
		Term:           "202610",
		NextEligibleAt: time.Now().Add(-time.Hour),
	})
	job := subjectJob(t, db)

	started := time.Now().Add(-2 * time.Second)
	proc.RecordFailure(job, started, errors.New("upstream returned status 502"))

	var result models.ScrapeResult
	if err := db.Where("job_id = ?", job.ID).First(&result).Error; err != nil {
		t.Fatalf("load result: %v", err)
	}
	if result.Success {
		t.Error("failure recorded as success")
	}
	if !strings.Contains(result.ErrorMessage, "502") {
		t.Errorf("error message = %q", result.ErrorMessage)
	}
	if result.Subject != "CS" || result.Term != "202610" {
		t.Errorf("result identity wrong: %+v", result)
	}
	if result.DurationMs < 2000 {
		t.Errorf("duration = %dms, expected at least 2000", result.DurationMs)
	}

	var sched models.SubjectSchedule
	if err := db.Where("subject = ?", "CS").First(&sched).Error; err != nil {
		t.Fatalf("reload schedule: %v", err)
	}
	if sched.RecentFailures != 1 {
		t.Errorf("recent failures = %d, expected 1", sched.RecentFailures)
	}
}
