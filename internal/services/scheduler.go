package services

import (
	"context"
	"time"

	"github.com/coursepulse/coursepulse/internal/config"
	"github.com/coursepulse/coursepulse/internal/models"
	"github.com/coursepulse/coursepulse/pkg/logger"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Scheduler walks the subject schedules on a fixed tick and enqueues a
// scrape job for every subject that is due. Wall-clock work (the full
// catalog refresh and reference-data refresh) runs on cron entries.
type Scheduler struct {
	db       *gorm.DB
	queue    *JobQueue
	settings *SettingsService
	cfg      *config.SchedulerConfig
	retries  int

	calendar *cal.BusinessCalendar
	cron     *cron.Cron

	// now is injectable for tests.
	now func() time.Time
}

func NewScheduler(db *gorm.DB, queue *JobQueue, settings *SettingsService, cfg *config.SchedulerConfig, workerCfg *config.WorkerConfig) *Scheduler {
	c := cal.NewBusinessCalendar()
	c.AddHoliday(us.Holidays...)

	return &Scheduler{
		db:       db,
		queue:    queue,
		settings: settings,
		cfg:      cfg,
		retries:  workerCfg.MaxRetries,
		calendar: c,
		now:      time.Now,
	}
}

// Run drives the tick loop until ctx is cancelled. The cron runner for
// catalog and reference refreshes starts alongside it.
func (s *Scheduler) Run(ctx context.Context) {
	s.startCrons()

	ticker := time.NewTicker(time.Duration(s.cfg.TickSeconds) * time.Second)
	defer ticker.Stop()

	logger.Infof("[Scheduler] Started, tick every %ds", s.cfg.TickSeconds)

	for {
		select {
		case <-ctx.Done():
			s.stopCrons()
			logger.Infof("[Scheduler] Stopped")
			return
		case <-ticker.C:
			if n, err := s.Tick(s.now()); err != nil {
				logger.Errorf("[Scheduler] Tick failed: %v", err)
			} else if n > 0 {
				logger.Infof("[Scheduler] Enqueued %d jobs", n)
			}
		}
	}
}

// Tick enqueues a job for each due subject and returns how many it added.
func (s *Scheduler) Tick(now time.Time) (int, error) {
	var schedules []models.SubjectSchedule
	err := s.db.
		Where("state <> ? AND next_eligible_at <= ?", models.SchedulePaused, now).
		Find(&schedules).Error
	if err != nil {
		return 0, err
	}

	priority := make(map[string]bool)
	for _, subj := range s.settings.PrioritySubjects() {
		priority[subj] = true
	}
	minSpacing := s.settings.MinSpacing(time.Duration(s.cfg.MinSpacingMinutes) * time.Minute)
	offDay := !s.calendar.IsWorkday(now)

	enqueued := 0
	for i := range schedules {
		sched := &schedules[i]

		if sched.LastScrapedAt != nil && now.Sub(*sched.LastScrapedAt) < minSpacing {
			continue
		}

		// Off days see almost no registration movement, so background
		// subjects get their interval stretched. Priority subjects are
		// exempt.
		if offDay && !priority[sched.Subject] && sched.LastScrapedAt != nil {
			damped := time.Duration(float64(sched.CurrentInterval) * s.cfg.HolidayMultiplier)
			if now.Sub(*sched.LastScrapedAt) < damped {
				continue
			}
		}

		key := JobKey(sched.Term, sched.Subject)
		pending, err := s.queue.HasPending(models.TargetSubject, key)
		if err != nil {
			return enqueued, err
		}
		if pending {
			continue
		}

		prio := s.priorityFor(sched, priority, now)
		if _, created, err := s.queue.Enqueue(models.TargetSubject, key, prio, now, s.retries); err != nil {
			return enqueued, err
		} else if created {
			enqueued++
		}
	}
	return enqueued, nil
}

// priorityFor assigns the job priority tier for a due subject.
func (s *Scheduler) priorityFor(sched *models.SubjectSchedule, priority map[string]bool, now time.Time) int {
	if priority[sched.Subject] {
		return models.PriorityUrgent
	}
	if sched.State == models.ScheduleReadOnly {
		return models.PriorityLow
	}
	if sched.LastScrapedAt != nil && sched.CurrentInterval > 0 {
		age := now.Sub(*sched.LastScrapedAt)
		if float64(age) > float64(sched.CurrentInterval)*s.cfg.StaleElevationFactor {
			return models.PriorityHigh
		}
	}
	return models.PriorityNormal
}

func (s *Scheduler) startCrons() {
	s.cron = cron.New()

	fullCron := s.settings.GetWithDefault(models.ConfigKeyFullRefreshCron, s.cfg.FullRefreshCron)
	if _, err := s.cron.AddFunc(fullCron, s.enqueueCatalogRefresh); err != nil {
		logger.Errorf("[Scheduler] Bad full refresh cron %q: %v", fullCron, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.ReferenceRefreshCron, s.enqueueReferenceRefresh); err != nil {
		logger.Errorf("[Scheduler] Bad reference refresh cron %q: %v", s.cfg.ReferenceRefreshCron, err)
	}

	s.cron.Start()
}

func (s *Scheduler) stopCrons() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// enqueueCatalogRefresh queues a full subject-list sync for active terms.
func (s *Scheduler) enqueueCatalogRefresh() {
	if _, _, err := s.queue.Enqueue(models.TargetCatalog, "full", models.PriorityNormal, s.now(), s.retries); err != nil {
		logger.Errorf("[Scheduler] Failed to enqueue catalog refresh: %v", err)
	}
}

// enqueueReferenceRefresh queues a term-list sync.
func (s *Scheduler) enqueueReferenceRefresh() {
	if _, _, err := s.queue.Enqueue(models.TargetReference, "terms", models.PriorityLow, s.now(), s.retries); err != nil {
		logger.Errorf("[Scheduler] Failed to enqueue reference refresh: %v", err)
	}
}

// PauseSubject stops a subject's scheduling until resumed.
func (s *Scheduler) PauseSubject(subject, term string) error {
	return s.setState(subject, term, models.SchedulePaused)
}

// ResumeSubject makes a paused subject immediately eligible again.
func (s *Scheduler) ResumeSubject(subject, term string) error {
	res := s.db.Model(&models.SubjectSchedule{}).
		Where("subject = ? AND term = ? AND state = ?", subject, term, models.SchedulePaused).
		Updates(map[string]interface{}{
			"state":            models.ScheduleEligible,
			"next_eligible_at": s.now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Scheduler) setState(subject, term, state string) error {
	res := s.db.Model(&models.SubjectSchedule{}).
		Where("subject = ? AND term = ?", subject, term).
		Update("state", state)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
