package main

import (
	"context"
	"time"

	"github.com/coursepulse/coursepulse/internal/config"
	"github.com/coursepulse/coursepulse/internal/services"
	"github.com/coursepulse/coursepulse/internal/upstream"
	"github.com/coursepulse/coursepulse/pkg/logger"
	"gorm.io/gorm"
)

// appServices holds the wired sync engine.
type appServices struct {
	sessions   *upstream.SessionKeeper
	client     *upstream.Client
	limiter    *services.CostLimiter
	hub        *services.EventHub
	settings   *services.SettingsService
	queue      *services.JobQueue
	policy     *services.IntervalPolicy
	processor  *services.ScrapeProcessor
	scheduler  *services.Scheduler
	pool       *services.WorkerPool
	dispatcher services.Dispatcher
	dispatchSv *services.DispatchServer
}

// buildServices wires every component of the sync engine. Ownership is
// explicit: the session keeper is the only shared mutable state, and it
// lives here, passed into the client that needs it.
func buildServices(cfg *config.Config, db *gorm.DB) *appServices {
	sessions := upstream.NewSessionKeeper(time.Duration(cfg.Upstream.SessionTTLMinutes) * time.Minute)
	client := upstream.NewClient(&cfg.Upstream, sessions)
	limiter := services.NewCostLimiter(&cfg.Limiter)
	hub := services.NewEventHub()
	settings := services.NewSettingsService(db)
	queue := services.NewJobQueue(db, &cfg.Worker)
	policy := services.NewIntervalPolicy(&cfg.Scheduler)

	processor := services.NewScrapeProcessor(db, client, limiter, hub, policy, settings, &cfg.Scheduler)
	scheduler := services.NewScheduler(db, queue, settings, &cfg.Scheduler, &cfg.Worker)
	pool := services.NewWorkerPool(queue, processor, &cfg.Worker)

	runner := services.ForegroundRunner(queue, processor)
	jobTimeout := time.Duration(cfg.Worker.JobTimeoutMinutes) * time.Minute
	dispatcher := services.NewDispatcher(&cfg.Redis, jobTimeout)

	var dispatchSv *services.DispatchServer
	if dispatcher.IsAsync() {
		dispatchSv = services.NewDispatchServer(&cfg.Redis, runner)
	} else if sync, ok := dispatcher.(*services.SyncDispatcher); ok {
		sync.SetRunner(runner)
	}

	return &appServices{
		sessions:   sessions,
		client:     client,
		limiter:    limiter,
		hub:        hub,
		settings:   settings,
		queue:      queue,
		policy:     policy,
		processor:  processor,
		scheduler:  scheduler,
		pool:       pool,
		dispatcher: dispatcher,
		dispatchSv: dispatchSv,
	}
}

// start launches the background parts of the engine.
func (s *appServices) start(ctx context.Context) {
	s.pool.Start(ctx)
	go s.scheduler.Run(ctx)

	if s.dispatchSv != nil {
		if err := s.dispatchSv.Start(); err != nil {
			logger.Errorf("Failed to start dispatch server: %v", err)
		}
	}
}

// stop shuts the engine down in dependency order.
func (s *appServices) stop() {
	if s.dispatchSv != nil {
		s.dispatchSv.Stop()
	}
	s.pool.Stop()
	if err := s.dispatcher.Close(); err != nil {
		logger.Errorf("Failed to close dispatcher: %v", err)
	}
}
