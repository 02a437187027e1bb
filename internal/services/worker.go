package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coursepulse/coursepulse/internal/config"
	"github.com/coursepulse/coursepulse/internal/models"
	"github.com/coursepulse/coursepulse/internal/upstream"
	"github.com/coursepulse/coursepulse/pkg/logger"
	"github.com/google/uuid"
)

// claimPollInterval is how long an idle worker sleeps between claim
// attempts when the queue is empty.
const claimPollInterval = 2 * time.Second

// WorkerPool runs a bounded set of workers that claim jobs from the
// durable queue and execute them through the scrape processor. Workers
// coordinate only through the database; there is no in-process job state.
type WorkerPool struct {
	queue     *JobQueue
	processor *ScrapeProcessor
	cfg       *config.WorkerConfig

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

func NewWorkerPool(queue *JobQueue, processor *ScrapeProcessor, cfg *config.WorkerConfig) *WorkerPool {
	return &WorkerPool{
		queue:     queue,
		processor: processor,
		cfg:       cfg,
	}
}

// Start launches the configured number of workers.
func (w *WorkerPool) Start(parent context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}
	w.running = true

	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel

	for i := 0; i < w.cfg.Count; i++ {
		workerID := "worker-" + uuid.New().String()[:8]
		w.wg.Add(1)
		go w.run(ctx, workerID)
	}
	logger.Infof("[Worker] Pool started with %d workers", w.cfg.Count)
}

// Stop shuts the pool down, waiting up to the configured bound for
// in-flight jobs. Jobs still held past the bound are reclaimed later via
// lock expiry.
func (w *WorkerPool) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	timeout := time.Duration(w.cfg.ShutdownTimeoutSeconds) * time.Second
	select {
	case <-done:
		logger.Infof("[Worker] Pool stopped")
	case <-time.After(timeout):
		logger.Warnf("[Worker] Pool stop timed out after %v; locks will expire", timeout)
	}
}

func (w *WorkerPool) run(ctx context.Context, workerID string) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Claim(workerID)
		if err != nil {
			// The store being unreachable is fatal for this loop; there
			// is no fallback queue. Back off and retry until it returns.
			logger.Errorf("[Worker] %s claim failed: %v", workerID, err)
			if !sleepCtx(ctx, 5*time.Second) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepCtx(ctx, claimPollInterval) {
				return
			}
			continue
		}

		w.execute(ctx, workerID, job)
	}
}

// execute runs one claimed job under the per-job timeout and settles its
// terminal or retry state.
func (w *WorkerPool) execute(ctx context.Context, workerID string, job *models.ScrapeJob) {
	started := time.Now()
	timeout := time.Duration(w.cfg.JobTimeoutMinutes) * time.Minute
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Debug().
		Str("worker", workerID).
		Uint("job_id", job.ID).
		Str("target", job.TargetKey).
		Str("priority", models.PriorityName(job.Priority)).
		Msg("job claimed")

	err := w.processor.Process(jobCtx, job, LaneBackground)
	if err == nil {
		if err := w.queue.Complete(job); err != nil {
			logger.Errorf("[Worker] %s failed to complete job %d: %v", workerID, job.ID, err)
		}
		return
	}

	// Graceful shutdown: hand the job back untouched so another worker
	// picks it up immediately instead of waiting out the lock.
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		if relErr := w.queue.Release(job); relErr != nil {
			logger.Errorf("[Worker] %s failed to release job %d: %v", workerID, job.ID, relErr)
		}
		return
	}

	w.processor.RecordFailure(job, started, err)

	switch upstream.Classify(err) {
	case upstream.KindPermanent:
		if failErr := w.queue.FailPermanently(job, err); failErr != nil {
			logger.Errorf("[Worker] %s failed to fail job %d: %v", workerID, job.ID, failErr)
		}
	default:
		// Transient, timeout, or a session problem that survived the
		// client's own rotate-and-retry: spend one retry.
		if _, retryErr := w.queue.Retry(job, err); retryErr != nil {
			logger.Errorf("[Worker] %s failed to reschedule job %d: %v", workerID, job.ID, retryErr)
		}
	}
}

// sleepCtx sleeps for d unless ctx is done first; reports whether the
// caller should keep running.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
