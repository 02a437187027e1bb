package services

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/coursepulse/coursepulse/internal/models"
	"gorm.io/gorm"
)

// waitForJob polls until the job leaves the given status set or the
// deadline passes.
func waitForJob(t *testing.T, db *gorm.DB, jobID uint, done func(*models.ScrapeJob) bool) *models.ScrapeJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var job models.ScrapeJob
		if err := db.First(&job, jobID).Error; err != nil {
			t.Fatalf("reload job: %v", err)
		}
		if done(&job) {
			return &job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("job did not settle in time")
	return nil
}

func TestWorkerPoolCompletesJob(t *testing.T) {
	db, proc, _ := newTestProcessor(t, searchHandler(nil))
	queue := NewJobQueue(db, testWorkerConfig())

	mustCreateSchedule(t, db, models.SubjectSchedule{
		Subject:        "CS",
		Term:           "202610",
		NextEligibleAt: time.Now().Add(-time.Hour),
	})
	job := subjectJob(t, db)

	pool := NewWorkerPool(queue, proc, testWorkerConfig())
	pool.Start(context.Background())
	defer pool.Stop()

	settled := waitForJob(t, db, job.ID, func(j *models.ScrapeJob) bool {
		return j.Status == models.JobStatusCompleted
	})
	if settled.LockedAt != nil {
		t.Error("completed job still holds its lock")
	}

	var result models.ScrapeResult
	if err := db.Where("job_id = ?", job.ID).First(&result).Error; err != nil {
		t.Fatalf("load result: %v", err)
	}
	if !result.Success {
		t.Error("result not marked successful")
	}
}

func TestWorkerPermanentFailureFailsJob(t *testing.T) {
	// success=false in the envelope is a permanent upstream failure.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false})
	})
	db, proc, _ := newTestProcessor(t, handler)
	queue := NewJobQueue(db, testWorkerConfig())

	mustCreateSchedule(t, db, models.SubjectSchedule{
		Subject:        "CS",
		Term:           "202610",
		NextEligibleAt: time.Now().Add(-time.Hour),
	})
	job := subjectJob(t, db)

	pool := NewWorkerPool(queue, proc, testWorkerConfig())
	pool.Start(context.Background())
	defer pool.Stop()

	settled := waitForJob(t, db, job.ID, func(j *models.ScrapeJob) bool {
		return j.Status == models.JobStatusFailed
	})
	if settled.RetryCount != 0 {
		t.Errorf("permanent failure consumed %d retries", settled.RetryCount)
	}

	var result models.ScrapeResult
	if err := db.Where("job_id = ?", job.ID).First(&result).Error; err != nil {
		t.Fatalf("load result: %v", err)
	}
	if result.Success {
		t.Error("failed attempt recorded as success")
	}
}

func TestWorkerTransientFailureRetries(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	db, proc, _ := newTestProcessor(t, handler)
	queue := NewJobQueue(db, testWorkerConfig())

	mustCreateSchedule(t, db, models.SubjectSchedule{
		Subject:        "CS",
		Term:           "202610",
		NextEligibleAt: time.Now().Add(-time.Hour),
	})
	job := subjectJob(t, db)

	pool := NewWorkerPool(queue, proc, testWorkerConfig())
	pool.Start(context.Background())
	defer pool.Stop()

	settled := waitForJob(t, db, job.ID, func(j *models.ScrapeJob) bool {
		return j.Status == models.JobStatusPending && j.RetryCount > 0
	})
	if settled.RetryCount != 1 {
		t.Errorf("retry count = %d, expected 1", settled.RetryCount)
	}
	if !settled.ExecuteAt.After(time.Now()) {
		t.Error("retried job not pushed into the future")
	}
	if settled.LastError == "" {
		t.Error("last error not recorded")
	}

	var sched models.SubjectSchedule
	if err := db.Where("subject = ?", "CS").First(&sched).Error; err != nil {
		t.Fatalf("reload schedule: %v", err)
	}
	if sched.RecentFailures != 1 {
		t.Errorf("recent failures = %d, expected 1", sched.RecentFailures)
	}
}

func TestWorkerPoolStartIdempotent(t *testing.T) {
	db, proc, _ := newTestProcessor(t, searchHandler(nil))
	queue := NewJobQueue(db, testWorkerConfig())

	pool := NewWorkerPool(queue, proc, testWorkerConfig())
	pool.Start(context.Background())
	pool.Start(context.Background()) // second start is a no-op
	pool.Stop()
	pool.Stop() // second stop is a no-op
}
