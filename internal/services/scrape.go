package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/coursepulse/coursepulse/internal/config"
	"github.com/coursepulse/coursepulse/internal/models"
	"github.com/coursepulse/coursepulse/internal/upstream"
	"github.com/coursepulse/coursepulse/pkg/logger"
	"gorm.io/gorm"
)

// changeRatioWeight is the EWMA weight of the latest run when updating a
// subject's average change ratio.
const changeRatioWeight = 0.3

// ScrapeProcessor executes claimed jobs: it pulls fresh data from the
// upstream through the rate limiter, upserts the mirror, runs the diff
// engine, and records the outcome.
type ScrapeProcessor struct {
	db       *gorm.DB
	client   *upstream.Client
	limiter  *CostLimiter
	hub      *EventHub
	policy   *IntervalPolicy
	settings *SettingsService
	cfg      *config.SchedulerConfig
}

func NewScrapeProcessor(db *gorm.DB, client *upstream.Client, limiter *CostLimiter, hub *EventHub, policy *IntervalPolicy, settings *SettingsService, cfg *config.SchedulerConfig) *ScrapeProcessor {
	return &ScrapeProcessor{
		db:       db,
		client:   client,
		limiter:  limiter,
		hub:      hub,
		policy:   policy,
		settings: settings,
		cfg:      cfg,
	}
}

// Process runs one claimed job on the given lane. The returned error is
// classified by the caller to decide between retry and permanent failure.
func (p *ScrapeProcessor) Process(ctx context.Context, job *models.ScrapeJob, lane Lane) error {
	switch job.TargetType {
	case models.TargetSubject:
		return p.processSubject(ctx, job, lane)
	case models.TargetCatalog:
		return p.processCatalog(ctx, lane)
	case models.TargetReference:
		return p.processReference(ctx, lane)
	default:
		return fmt.Errorf("unknown job target type %q", job.TargetType)
	}
}

// processSubject refreshes one subject's course mirror and emits audits
// for every tracked-field change.
func (p *ScrapeProcessor) processSubject(ctx context.Context, job *models.ScrapeJob, lane Lane) error {
	term, subject := ParseJobKey(job.TargetKey)
	started := time.Now()

	var sched models.SubjectSchedule
	if err := p.db.Where("subject = ? AND term = ?", subject, term).First(&sched).Error; err != nil {
		return fmt.Errorf("no schedule for %s/%s: %w", term, subject, err)
	}

	if err := p.limiter.Admit(ctx, lane, p.limiter.SearchCost(sched.CourseCount)); err != nil {
		return err
	}

	records, err := p.client.AllCourses(ctx, term, subject)
	if err != nil {
		return err
	}

	now := time.Now()
	changed := 0
	var audits []models.AuditEntry

	for i := range records {
		rec := &records[i]
		if len(rec.MeetingBlocks) == 0 {
			// The search payload omits meetings for some sections; fetch
			// them through the dedicated endpoint.
			if err := p.limiter.Admit(ctx, lane, p.limiter.MeetingsCost()); err != nil {
				return err
			}
			if blocks, err := p.client.GetMeetingTimes(ctx, term, rec.CRN); err == nil {
				rec.MeetingBlocks = blocks
			}
		}

		incoming := recordToCourse(rec, term)

		var existing models.Course
		err := p.db.Where("crn = ? AND term = ?", rec.CRN, term).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			if err := p.db.Create(incoming).Error; err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}

		entries := DiffCourses(&existing, incoming, now)
		if len(entries) == 0 {
			continue
		}
		changed++
		audits = append(audits, entries...)

		incoming.ID = existing.ID
		incoming.CreatedAt = existing.CreatedAt
		if err := p.db.Save(incoming).Error; err != nil {
			return err
		}
	}

	if len(audits) > 0 {
		if err := p.db.Create(&audits).Error; err != nil {
			return err
		}
	}

	result := &models.ScrapeResult{
		JobID:           job.ID,
		Subject:         subject,
		Term:            term,
		CompletedAt:     now,
		DurationMs:      time.Since(started).Milliseconds(),
		Success:         true,
		CoursesFetched:  len(records),
		CoursesChanged:  changed,
		AuditsGenerated: len(audits),
	}
	if err := p.db.Create(result).Error; err != nil {
		return err
	}

	if err := p.updateSchedule(&sched, len(records), changed, now); err != nil {
		return err
	}

	p.hub.PublishResult(result)
	p.hub.PublishAudits(subject, audits)

	logger.Info().
		Str("subject", subject).
		Str("term", term).
		Int("fetched", len(records)).
		Int("changed", changed).
		Dur("took", time.Since(started)).
		Msg("subject scraped")
	return nil
}

// updateSchedule recomputes the subject's cadence from the run outcome.
func (p *ScrapeProcessor) updateSchedule(sched *models.SubjectSchedule, fetched, changed int, now time.Time) error {
	ratio := 0.0
	if fetched > 0 {
		ratio = float64(changed) / float64(fetched)
	}
	sched.AvgChangeRatio = (1-changeRatioWeight)*sched.AvgChangeRatio + changeRatioWeight*ratio
	if changed == 0 {
		sched.ConsecutiveZeroChanges++
	} else {
		sched.ConsecutiveZeroChanges = 0
	}
	sched.RecentRuns++
	sched.CourseCount = fetched

	isPriority := false
	for _, subj := range p.settings.PrioritySubjects() {
		if subj == sched.Subject {
			isPriority = true
			break
		}
	}

	interval := p.policy.Next(IntervalInputs{
		CourseCount:            fetched,
		Priority:               isPriority,
		ReadOnly:               sched.State == models.ScheduleReadOnly,
		ConsecutiveZeroChanges: sched.ConsecutiveZeroChanges,
		AvgChangeRatio:         sched.AvgChangeRatio,
	})

	state := sched.State
	switch {
	case fetched == 0:
		state = models.ScheduleCooldown
	case state == models.ScheduleCooldown:
		state = models.ScheduleEligible
	}

	sched.CurrentInterval = interval
	sched.LastScrapedAt = &now
	sched.NextEligibleAt = now.Add(interval)
	sched.State = state

	return p.db.Save(sched).Error
}

// RecordFailure writes the failed-attempt result and bumps the schedule's
// failure counters without touching its cadence. Called by the worker for
// every processing error so no failure goes unrecorded.
func (p *ScrapeProcessor) RecordFailure(job *models.ScrapeJob, started time.Time, attemptErr error) {
	term, subject := "", ""
	if job.TargetType == models.TargetSubject {
		term, subject = ParseJobKey(job.TargetKey)
	}

	result := &models.ScrapeResult{
		JobID:        job.ID,
		Subject:      subject,
		Term:         term,
		CompletedAt:  time.Now(),
		DurationMs:   time.Since(started).Milliseconds(),
		Success:      false,
		ErrorMessage: attemptErr.Error(),
	}
	if err := p.db.Create(result).Error; err != nil {
		logger.Errorf("[Scrape] Failed to record failure result: %v", err)
	}

	if subject != "" {
		err := p.db.Model(&models.SubjectSchedule{}).
			Where("subject = ? AND term = ?", subject, term).
			Update("recent_failures", gorm.Expr("recent_failures + 1")).Error
		if err != nil {
			logger.Errorf("[Scrape] Failed to bump failure count: %v", err)
		}
	}
	p.hub.PublishResult(result)
}

// processCatalog re-syncs the subject list of every active term, creating
// schedules for subjects that appeared since the last refresh.
func (p *ScrapeProcessor) processCatalog(ctx context.Context, lane Lane) error {
	var terms []models.Term
	if err := p.db.Where("archived = ?", false).Find(&terms).Error; err != nil {
		return err
	}

	for _, term := range terms {
		if err := p.limiter.Admit(ctx, lane, p.limiter.SubjectsCost()); err != nil {
			return err
		}
		subjects, err := p.client.ListSubjects(ctx, term.Code)
		if err != nil {
			return err
		}

		for _, subj := range subjects {
			var count int64
			p.db.Model(&models.SubjectSchedule{}).
				Where("subject = ? AND term = ?", subj.Code, term.Code).
				Count(&count)
			if count > 0 {
				continue
			}

			sched := models.SubjectSchedule{
				Subject:         subj.Code,
				Term:            term.Code,
				CurrentInterval: time.Duration(p.cfg.MinIntervalMinutes) * time.Minute,
				NextEligibleAt:  time.Now(),
				State:           models.ScheduleEligible,
			}
			if err := p.db.Create(&sched).Error; err != nil {
				return err
			}
			logger.Infof("[Scrape] New subject discovered: %s/%s", term.Code, subj.Code)
		}
	}
	return nil
}

// processReference re-syncs the term list. All but the two most recent
// terms are archived and their subjects dropped to read-only cadence.
func (p *ScrapeProcessor) processReference(ctx context.Context, lane Lane) error {
	if err := p.limiter.Admit(ctx, lane, p.limiter.TermsCost()); err != nil {
		return err
	}
	terms, err := p.client.ListTerms(ctx)
	if err != nil {
		return err
	}

	codes := make([]string, 0, len(terms))
	for _, t := range terms {
		codes = append(codes, t.Code)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(codes)))

	active := make(map[string]bool)
	for i, code := range codes {
		if i < 2 {
			active[code] = true
		}
	}

	for _, t := range terms {
		archived := !active[t.Code]

		var existing models.Term
		err := p.db.Where("code = ?", t.Code).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			if err := p.db.Create(&models.Term{Code: t.Code, Description: t.Description, Archived: archived}).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		} else if existing.Archived != archived || existing.Description != t.Description {
			if err := p.db.Model(&existing).Updates(map[string]interface{}{
				"archived":    archived,
				"description": t.Description,
			}).Error; err != nil {
				return err
			}
		}

		if archived {
			if err := p.db.Model(&models.SubjectSchedule{}).
				Where("term = ? AND state <> ?", t.Code, models.SchedulePaused).
				Update("state", models.ScheduleReadOnly).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// recordToCourse maps an upstream search record onto the mirror row.
func recordToCourse(rec *upstream.CourseRecord, term string) *models.Course {
	return &models.Course{
		Subject:       rec.Subject,
		CourseNumber:  rec.CourseNumber,
		CRN:           rec.CRN,
		Term:          term,
		Title:         rec.Title,
		Instructor:    rec.Instructor,
		Enrollment:    rec.Enrollment,
		EnrollmentMax: rec.MaxEnrollment,
		Waitlist:      rec.WaitCount,
		WaitlistMax:   rec.WaitCapacity,
		CreditHours:   rec.CreditHours,
		MeetingTimes:  serializeMeetings(rec.MeetingBlocks),
		Open:          rec.OpenSection,
	}
}

// serializeMeetings renders meeting blocks as stable text so the diff
// engine can compare them as one field.
func serializeMeetings(blocks []upstream.MeetingBlock) string {
	if len(blocks) == 0 {
		return ""
	}
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, strings.TrimSpace(fmt.Sprintf("%s %s-%s %s %s", b.Days, b.BeginTime, b.EndTime, b.Building, b.Room)))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
