package handlers

import (
	"errors"

	"github.com/coursepulse/coursepulse/internal/models"
	"github.com/coursepulse/coursepulse/internal/services"
	"github.com/coursepulse/coursepulse/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ScheduleHandler struct {
	db        *gorm.DB
	scheduler *services.Scheduler
}

func NewScheduleHandler(db *gorm.DB, scheduler *services.Scheduler) *ScheduleHandler {
	return &ScheduleHandler{db: db, scheduler: scheduler}
}

// List returns all subject schedules
// GET /api/schedules
func (h *ScheduleHandler) List(c *gin.Context) {
	query := h.db.Model(&models.SubjectSchedule{})
	if term := c.Query("term"); term != "" {
		query = query.Where("term = ?", term)
	}
	if state := c.Query("state"); state != "" {
		query = query.Where("state = ?", state)
	}

	var schedules []models.SubjectSchedule
	if err := query.Order("subject ASC").Find(&schedules).Error; err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, schedules)
}

// Get returns one subject's schedule
// GET /api/schedules/:subject?term=...
func (h *ScheduleHandler) Get(c *gin.Context) {
	subject := c.Param("subject")
	term := c.Query("term")

	query := h.db.Where("subject = ?", subject)
	if term != "" {
		query = query.Where("term = ?", term)
	}

	var sched models.SubjectSchedule
	if err := query.First(&sched).Error; err != nil {
		response.NotFound(c, "schedule not found")
		return
	}

	response.Success(c, sched)
}

// Pause stops a subject's scheduling
// POST /api/schedules/:subject/pause
func (h *ScheduleHandler) Pause(c *gin.Context) {
	subject := c.Param("subject")
	term := c.Query("term")
	if term == "" {
		response.BadRequest(c, "term is required")
		return
	}

	if err := h.scheduler.PauseSubject(subject, term); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "schedule not found")
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"subject": subject, "term": term, "state": models.SchedulePaused})
}

// Resume makes a paused subject eligible again
// POST /api/schedules/:subject/resume
func (h *ScheduleHandler) Resume(c *gin.Context) {
	subject := c.Param("subject")
	term := c.Query("term")
	if term == "" {
		response.BadRequest(c, "term is required")
		return
	}

	if err := h.scheduler.ResumeSubject(subject, term); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "no paused schedule found")
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"subject": subject, "term": term, "state": models.ScheduleEligible})
}
