package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coursepulse/coursepulse/internal/config"
	"github.com/coursepulse/coursepulse/internal/upstream"
	"github.com/coursepulse/coursepulse/pkg/logger"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const TaskTypeForegroundScrape = "scrape:foreground"

// ForegroundTask carries an admin-triggered immediate scrape. The job row
// already exists in the durable queue; the task just nudges execution so
// the user does not wait for the next background poll.
type ForegroundTask struct {
	JobID uint `json:"job_id"`
}

// Dispatcher hands foreground tasks to whatever executes them.
type Dispatcher interface {
	// Dispatch submits a task for prompt execution.
	Dispatch(task *ForegroundTask) error
	// IsAsync returns true if tasks run through Redis.
	IsAsync() bool
	// Close gracefully shuts down the dispatcher.
	Close() error
}

// ForegroundRunner executes one foreground task: it claims the specific
// job row (losing the claim just means a background worker got there
// first) and processes it on the foreground lane.
func ForegroundRunner(queue *JobQueue, processor *ScrapeProcessor) func(context.Context, *ForegroundTask) error {
	return func(ctx context.Context, task *ForegroundTask) error {
		workerID := "fg-" + uuid.New().String()[:8]

		job, err := queue.ClaimByID(task.JobID, workerID)
		if err != nil {
			return err
		}
		if job == nil {
			logger.Debugf("[Dispatch] Job %d already taken, skipping", task.JobID)
			return nil
		}

		started := time.Now()
		if err := processor.Process(ctx, job, LaneForeground); err != nil {
			processor.RecordFailure(job, started, err)
			if upstream.Classify(err) == upstream.KindPermanent {
				return queue.FailPermanently(job, err)
			}
			_, retryErr := queue.Retry(job, err)
			return retryErr
		}
		return queue.Complete(job)
	}
}

// NewDispatcher builds the Redis-backed dispatcher when Redis is enabled
// and reachable, falling back to in-process execution otherwise. jobTimeout
// bounds each in-process task the same way the worker pool bounds its jobs.
func NewDispatcher(cfg *config.RedisConfig, jobTimeout time.Duration) Dispatcher {
	if cfg.Enabled {
		dispatcher, err := NewAsyncDispatcher(cfg)
		if err != nil {
			logger.Infof("[Dispatch] Redis unavailable, falling back to sync mode: %v", err)
			return NewSyncDispatcher(jobTimeout)
		}
		logger.Infof("[Dispatch] Async dispatcher initialized with Redis at %s", cfg.Addr)
		return dispatcher
	}
	logger.Infof("[Dispatch] Sync dispatcher initialized (Redis disabled)")
	return NewSyncDispatcher(jobTimeout)
}

// AsyncDispatcher implements Dispatcher using asynq (Redis-based).
type AsyncDispatcher struct {
	client *asynq.Client
}

func NewAsyncDispatcher(cfg *config.RedisConfig) (*AsyncDispatcher, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := asynq.NewClient(redisOpt)

	// Verify the connection before trusting it with traffic.
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncDispatcher{client: client}, nil
}

func (d *AsyncDispatcher) Dispatch(task *ForegroundTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	t := asynq.NewTask(TaskTypeForegroundScrape, payload)
	info, err := d.client.Enqueue(t, asynq.Queue("foreground"), asynq.MaxRetry(1))
	if err != nil {
		return err
	}

	logger.Infof("[Dispatch] Task enqueued: id=%s, queue=%s", info.ID, info.Queue)
	return nil
}

func (d *AsyncDispatcher) IsAsync() bool { return true }

func (d *AsyncDispatcher) Close() error { return d.client.Close() }

// SyncDispatcher runs tasks in-process when Redis is disabled.
type SyncDispatcher struct {
	mu         sync.Mutex
	runner     func(context.Context, *ForegroundTask) error
	jobTimeout time.Duration
}

func NewSyncDispatcher(jobTimeout time.Duration) *SyncDispatcher {
	return &SyncDispatcher{jobTimeout: jobTimeout}
}

// SetRunner sets the function executing dispatched tasks.
func (d *SyncDispatcher) SetRunner(runner func(context.Context, *ForegroundTask) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runner = runner
}

func (d *SyncDispatcher) Dispatch(task *ForegroundTask) error {
	d.mu.Lock()
	runner := d.runner
	d.mu.Unlock()

	if runner == nil {
		logger.Warnf("[Dispatch] No runner set, task for job %d dropped", task.JobID)
		return nil
	}

	// Run off the request goroutine so the admin call returns promptly.
	// The timeout mirrors the worker pool's per-job bound: a hung upstream
	// call must not hold the job's lock until lock expiry.
	go func() {
		ctx := context.Background()
		if d.jobTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.jobTimeout)
			defer cancel()
		}
		if err := runner(ctx, task); err != nil {
			logger.Errorf("[Dispatch] Foreground task for job %d failed: %v", task.JobID, err)
		}
	}()
	return nil
}

func (d *SyncDispatcher) IsAsync() bool { return false }

func (d *SyncDispatcher) Close() error { return nil }

// DispatchServer consumes foreground tasks from Redis when async mode is
// active.
type DispatchServer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner func(context.Context, *ForegroundTask) error
}

func NewDispatchServer(cfg *config.RedisConfig, runner func(context.Context, *ForegroundTask) error) *DispatchServer {
	if !cfg.Enabled {
		return nil
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		},
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				"foreground": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Errorf("[Dispatch] Error processing task %s: %v", task.Type(), err)
			}),
		},
	)

	s := &DispatchServer{
		server: server,
		mux:    asynq.NewServeMux(),
		runner: runner,
	}
	s.mux.HandleFunc(TaskTypeForegroundScrape, s.handle)
	return s
}

func (s *DispatchServer) Start() error {
	return s.server.Start(s.mux)
}

func (s *DispatchServer) Stop() {
	s.server.Shutdown()
}

func (s *DispatchServer) handle(ctx context.Context, t *asynq.Task) error {
	var task ForegroundTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		logger.Errorf("[Dispatch] Failed to unmarshal task: %v", err)
		return err
	}
	return s.runner(ctx, &task)
}
