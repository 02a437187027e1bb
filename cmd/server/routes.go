package main

import (
	"github.com/coursepulse/coursepulse/internal/config"
	"github.com/coursepulse/coursepulse/internal/handlers"
	"github.com/coursepulse/coursepulse/internal/middleware"
	"github.com/coursepulse/coursepulse/pkg/logger"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// buildRouter assembles the admin/control API and the event stream.
func buildRouter(cfg *config.Config, db *gorm.DB, svc *appServices) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(logger.GinLogger())
	r.Use(logger.GinRecovery())
	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit(20, 40))

	healthHandler := handlers.NewHealthHandler(db, svc.queue, svc.hub, svc.sessions)
	r.GET("/health", healthHandler.CheckHealth)

	api := r.Group("/api")
	{
		queueHandler := handlers.NewQueueHandler(svc.queue)
		api.GET("/queue/jobs", queueHandler.ListJobs)
		api.GET("/queue/stats", queueHandler.Stats)

		historyHandler := handlers.NewHistoryHandler(db)
		api.GET("/results", historyHandler.ListResults)
		api.GET("/audits", historyHandler.ListAudits)

		scheduleHandler := handlers.NewScheduleHandler(db, svc.scheduler)
		api.GET("/schedules", scheduleHandler.List)
		api.GET("/schedules/:subject", scheduleHandler.Get)
		api.POST("/schedules/:subject/pause", scheduleHandler.Pause)
		api.POST("/schedules/:subject/resume", scheduleHandler.Resume)

		settingsHandler := handlers.NewSettingsHandler(svc.settings)
		api.GET("/settings/priority-subjects", settingsHandler.GetPrioritySubjects)
		api.PUT("/settings/priority-subjects", settingsHandler.SetPrioritySubjects)
		api.GET("/settings/intervals", settingsHandler.GetIntervals)
		api.PUT("/settings/intervals", settingsHandler.SetIntervals)

		scrapeHandler := handlers.NewScrapeHandler(db, svc.queue, svc.dispatcher, cfg.Worker.MaxRetries)
		api.POST("/scrape/:subject", scrapeHandler.Trigger)

		courseHandler := handlers.NewCourseHandler(db)
		api.GET("/courses", courseHandler.List)

		eventsHandler := handlers.NewEventsHandler(svc.hub)
		api.GET("/events", eventsHandler.Stream)
	}

	return r
}
