package handlers

import (
	"strings"
	"time"

	"github.com/coursepulse/coursepulse/internal/models"
	"github.com/coursepulse/coursepulse/internal/services"
	"github.com/coursepulse/coursepulse/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ScrapeHandler triggers immediate out-of-band scrapes on the
// interactive lane.
type ScrapeHandler struct {
	db         *gorm.DB
	queue      *services.JobQueue
	dispatcher services.Dispatcher
	maxRetries int
}

func NewScrapeHandler(db *gorm.DB, queue *services.JobQueue, dispatcher services.Dispatcher, maxRetries int) *ScrapeHandler {
	return &ScrapeHandler{
		db:         db,
		queue:      queue,
		dispatcher: dispatcher,
		maxRetries: maxRetries,
	}
}

// Trigger enqueues an urgent scrape for one subject and nudges execution
// POST /api/scrape/:subject?term=...
func (h *ScrapeHandler) Trigger(c *gin.Context) {
	subject := strings.ToUpper(c.Param("subject"))
	term := c.Query("term")
	if term == "" {
		response.BadRequest(c, "term is required")
		return
	}

	var sched models.SubjectSchedule
	if err := h.db.Where("subject = ? AND term = ?", subject, term).First(&sched).Error; err != nil {
		response.NotFound(c, "unknown subject/term")
		return
	}

	key := services.JobKey(term, subject)
	job, created, err := h.queue.Enqueue(models.TargetSubject, key, models.PriorityUrgent, time.Now(), h.maxRetries)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	if err := h.dispatcher.Dispatch(&services.ForegroundTask{JobID: job.ID}); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Accepted(c, gin.H{
		"job_id":  job.ID,
		"created": created,
		"subject": subject,
		"term":    term,
	})
}
