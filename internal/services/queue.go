package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/coursepulse/coursepulse/internal/config"
	"github.com/coursepulse/coursepulse/internal/models"
	"github.com/coursepulse/coursepulse/pkg/logger"
	"gorm.io/gorm"
)

// claimBatchSize is how many candidates one claim attempt inspects before
// giving up; losing a race on all of them means another worker is ahead
// anyway and the next poll will see fresh state.
const claimBatchSize = 5

// JobQueue is the durable, priority-ordered work list. The database row is
// the single source of truth for ownership: claiming is a conditional
// update guarded on the lock columns, so exactly one of any number of
// racing workers wins a job.
type JobQueue struct {
	db         *gorm.DB
	lockExpiry time.Duration
	backoff    time.Duration
	backoffMax time.Duration
}

func NewJobQueue(db *gorm.DB, cfg *config.WorkerConfig) *JobQueue {
	return &JobQueue{
		db:         db,
		lockExpiry: time.Duration(cfg.LockExpiryMinutes) * time.Minute,
		backoff:    time.Duration(cfg.BackoffBaseMinutes) * time.Minute,
		backoffMax: time.Duration(cfg.BackoffMaxMinutes) * time.Minute,
	}
}

// Enqueue adds a job unless a pending one already exists for the same
// target. When a duplicate exists at lower priority, the existing row is
// promoted instead. Returns the job and whether a new row was created.
func (q *JobQueue) Enqueue(targetType, targetKey string, priority int, executeAt time.Time, maxRetries int) (*models.ScrapeJob, bool, error) {
	var existing models.ScrapeJob
	err := q.db.
		Where("target_type = ? AND target_key = ? AND status = ?", targetType, targetKey, models.JobStatusPending).
		First(&existing).Error
	if err == nil {
		if priority > existing.Priority {
			if err := q.db.Model(&existing).Update("priority", priority).Error; err != nil {
				return nil, false, err
			}
			existing.Priority = priority
		}
		return &existing, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, err
	}

	job := models.ScrapeJob{
		TargetType: targetType,
		TargetKey:  targetKey,
		Priority:   priority,
		Status:     models.JobStatusPending,
		ExecuteAt:  executeAt,
		MaxRetries: maxRetries,
	}
	if err := q.db.Create(&job).Error; err != nil {
		return nil, false, err
	}
	return &job, true, nil
}

// Claim atomically takes ownership of the best available job for workerID,
// or returns nil when nothing is due. Candidates are ordered by priority
// then age; a job is available when unlocked or when its lock has outlived
// the expiry window (worker crash safety net). The conditional update is
// the linearization point: RowsAffected==0 means another worker won.
func (q *JobQueue) Claim(workerID string) (*models.ScrapeJob, error) {
	now := time.Now()
	cutoff := now.Add(-q.lockExpiry)

	var candidates []models.ScrapeJob
	err := q.db.
		Where("status = ? AND execute_at <= ? AND (locked_at IS NULL OR locked_at < ?)",
			models.JobStatusPending, now, cutoff).
		Order("priority DESC, execute_at ASC").
		Limit(claimBatchSize).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		job := &candidates[i]
		res := q.db.Model(&models.ScrapeJob{}).
			Where("id = ? AND status = ? AND (locked_at IS NULL OR locked_at < ?)",
				job.ID, models.JobStatusPending, cutoff).
			Updates(map[string]interface{}{
				"locked_at": now,
				"locked_by": workerID,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			job.LockedAt = &now
			job.LockedBy = workerID
			return job, nil
		}
		// Lost the race on this row; try the next candidate.
	}
	return nil, nil
}

// ClaimByID takes ownership of one specific pending job, used by the
// foreground dispatch path. Same guard as Claim.
func (q *JobQueue) ClaimByID(jobID uint, workerID string) (*models.ScrapeJob, error) {
	now := time.Now()
	cutoff := now.Add(-q.lockExpiry)

	res := q.db.Model(&models.ScrapeJob{}).
		Where("id = ? AND status = ? AND (locked_at IS NULL OR locked_at < ?)",
			jobID, models.JobStatusPending, cutoff).
		Updates(map[string]interface{}{
			"locked_at": now,
			"locked_by": workerID,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var job models.ScrapeJob
	if err := q.db.First(&job, jobID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// Complete marks a job finished. Terminal.
func (q *JobQueue) Complete(job *models.ScrapeJob) error {
	return q.db.Model(job).Updates(map[string]interface{}{
		"status":    models.JobStatusCompleted,
		"locked_at": nil,
	}).Error
}

// Retry releases a failed attempt back to pending. When the retry budget
// is spent the job is marked permanently failed instead. Returns whether
// the job will run again.
func (q *JobQueue) Retry(job *models.ScrapeJob, attemptErr error) (bool, error) {
	job.RetryCount++
	if job.RetryCount >= job.MaxRetries {
		if err := q.fail(job, attemptErr); err != nil {
			return false, err
		}
		return false, nil
	}

	delay := q.backoffFor(job.RetryCount)
	err := q.db.Model(job).Updates(map[string]interface{}{
		"retry_count": job.RetryCount,
		"execute_at":  time.Now().Add(delay),
		"locked_at":   nil,
		"locked_by":   "",
		"last_error":  attemptErr.Error(),
	}).Error
	if err != nil {
		return false, err
	}

	logger.Warn().
		Uint("job_id", job.ID).
		Str("target", job.TargetKey).
		Int("retry", job.RetryCount).
		Dur("backoff", delay).
		Msg("job rescheduled after failure")
	return true, nil
}

// FailPermanently marks a job failed with no further retries, used for
// permanent upstream errors regardless of remaining budget.
func (q *JobQueue) FailPermanently(job *models.ScrapeJob, attemptErr error) error {
	return q.fail(job, attemptErr)
}

func (q *JobQueue) fail(job *models.ScrapeJob, attemptErr error) error {
	logger.Error().
		Uint("job_id", job.ID).
		Str("target", job.TargetKey).
		Err(attemptErr).
		Msg("job permanently failed")
	return q.db.Model(job).Updates(map[string]interface{}{
		"status":      models.JobStatusFailed,
		"retry_count": job.RetryCount,
		"locked_at":   nil,
		"last_error":  attemptErr.Error(),
	}).Error
}

// Release puts a claimed job back untouched, used on graceful shutdown so
// the next worker does not wait out the lock expiry.
func (q *JobQueue) Release(job *models.ScrapeJob) error {
	return q.db.Model(job).Updates(map[string]interface{}{
		"locked_at": nil,
		"locked_by": "",
	}).Error
}

// HasPending reports whether a pending job (locked or not) exists for the
// target, so the scheduler never double-enqueues a subject.
func (q *JobQueue) HasPending(targetType, targetKey string) (bool, error) {
	var count int64
	err := q.db.Model(&models.ScrapeJob{}).
		Where("target_type = ? AND target_key = ? AND status = ?", targetType, targetKey, models.JobStatusPending).
		Count(&count).Error
	return count > 0, err
}

// QueueStats summarizes queue depth for the admin surface.
type QueueStats struct {
	Pending   int64 `json:"pending"`
	Locked    int64 `json:"locked"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

func (q *JobQueue) Stats() (*QueueStats, error) {
	var stats QueueStats
	cutoff := time.Now().Add(-q.lockExpiry)

	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := q.db.Model(&models.ScrapeJob{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		switch r.Status {
		case models.JobStatusPending:
			stats.Pending = r.N
		case models.JobStatusCompleted:
			stats.Completed = r.N
		case models.JobStatusFailed:
			stats.Failed = r.N
		}
	}

	err = q.db.Model(&models.ScrapeJob{}).
		Where("status = ? AND locked_at IS NOT NULL AND locked_at >= ?", models.JobStatusPending, cutoff).
		Count(&stats.Locked).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// JobListRequest filters the admin job listing.
type JobListRequest struct {
	Status   string `form:"status"`
	Target   string `form:"target"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

type JobListResponse struct {
	Total int64              `json:"total"`
	Jobs  []models.ScrapeJob `json:"jobs"`
}

func (q *JobQueue) List(req *JobListRequest) (*JobListResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 200 {
		req.PageSize = 50
	}

	query := q.db.Model(&models.ScrapeJob{})
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.Target != "" {
		query = query.Where("target_key = ?", req.Target)
	}

	var resp JobListResponse
	if err := query.Count(&resp.Total).Error; err != nil {
		return nil, err
	}
	err := query.
		Order("priority DESC, execute_at ASC").
		Offset((req.Page - 1) * req.PageSize).
		Limit(req.PageSize).
		Find(&resp.Jobs).Error
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// backoffFor doubles the base delay per attempt, capped at the maximum.
func (q *JobQueue) backoffFor(attempt int) time.Duration {
	delay := q.backoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= q.backoffMax {
			return q.backoffMax
		}
	}
	if delay > q.backoffMax {
		delay = q.backoffMax
	}
	return delay
}

// JobKey builds the target key for a subject scrape ("term:subject").
func JobKey(term, subject string) string {
	return fmt.Sprintf("%s:%s", term, subject)
}

// ParseJobKey splits a subject-scrape target key back into term and subject.
func ParseJobKey(key string) (term, subject string) {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}
