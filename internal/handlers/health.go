package handlers

import (
	"github.com/coursepulse/coursepulse/internal/models"
	"github.com/coursepulse/coursepulse/internal/services"
	"github.com/coursepulse/coursepulse/internal/upstream"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler provides the health check endpoint.
type HealthHandler struct {
	db       *gorm.DB
	queue    *services.JobQueue
	hub      *services.EventHub
	sessions *upstream.SessionKeeper
}

func NewHealthHandler(db *gorm.DB, queue *services.JobQueue, hub *services.EventHub, sessions *upstream.SessionKeeper) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, hub: hub, sessions: sessions}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}

	stats, statsErr := h.queue.Stats()
	if statsErr != nil {
		stats = &services.QueueStats{}
		overall = "unhealthy"
	}

	var pausedCount int64
	h.db.Model(&models.SubjectSchedule{}).
		Where("state = ?", models.SchedulePaused).
		Count(&pausedCount)

	c.JSON(200, gin.H{
		"status":  overall,
		"service": "coursepulse",
		"components": gin.H{
			"database":         dbStatus,
			"queue":            stats,
			"sse_clients":      h.hub.ClientCount(),
			"session_age_secs": int(h.sessions.Age().Seconds()),
			"paused_subjects":  pausedCount,
		},
	})
}
