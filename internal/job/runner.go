package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/tasktrail-api/internal/config"
	"github.com/phrazzld/tasktrail-api/internal/metrics"
)

// RunnerConfig holds configuration for the job runner
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process jobs
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory job queue
	QueueSize int

	// StuckJobAge defines how long a job can be in processing state
	// before it's considered stuck and reset
	StuckJobAge time.Duration

	// StuckJobCheckInterval defines how often to check for stuck jobs
	StuckJobCheckInterval time.Duration

	// OverflowRetryInterval defines how often jobs that did not fit in the
	// queue are offered to it again
	OverflowRetryInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:           2,
		QueueSize:             100,
		StuckJobAge:           30 * time.Minute,
		StuckJobCheckInterval: 5 * time.Minute,
		OverflowRetryInterval: time.Second,
	}
}

// RunnerConfigFromQueue maps the queue settings onto a RunnerConfig.
func RunnerConfigFromQueue(cfg config.QueueConfig) RunnerConfig {
	rc := DefaultRunnerConfig()
	if cfg.WorkerCount > 0 {
		rc.WorkerCount = cfg.WorkerCount
	}
	if cfg.QueueSize > 0 {
		rc.QueueSize = cfg.QueueSize
	}
	if cfg.StuckJobAgeMinutes > 0 {
		rc.StuckJobAge = time.Duration(cfg.StuckJobAgeMinutes) * time.Minute
	}
	return rc
}

// Runner is the local Queue: jobs are persisted through a Store and executed
// by a pool of worker goroutines.
type Runner struct {
	store      Store
	registry   *Registry
	jobs       chan *Job
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	config     RunnerConfig
	logger     *slog.Logger
	metrics    *metrics.Metrics
	deadLetter DeadLetterFunc

	mu      sync.RWMutex
	started bool
	stopped bool

	overflowMu sync.Mutex
	overflow   []*Job
}

var _ Queue = (*Runner)(nil)

// NewRunner creates a Runner. Call Start before jobs are processed.
func NewRunner(store Store, registry *Registry, config RunnerConfig, logger *slog.Logger, m *metrics.Metrics) *Runner {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultRunnerConfig().QueueSize
	}
	if config.StuckJobCheckInterval <= 0 {
		config.StuckJobCheckInterval = DefaultRunnerConfig().StuckJobCheckInterval
	}
	if config.OverflowRetryInterval <= 0 {
		config.OverflowRetryInterval = DefaultRunnerConfig().OverflowRetryInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger = logger.With("component", "job_runner")

	return &Runner{
		store:    store,
		registry: registry,
		jobs:     make(chan *Job, config.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		config:   config,
		logger:   logger,
		metrics:  m,
		deadLetter: func(_ context.Context, job *Job, err error) {
			logger.Error("job moved to dead letter",
				"job_id", job.ID,
				"job_name", job.Name,
				"attempts", job.Attempts,
				"error", err)
		},
	}
}

// SetDeadLetterHandler replaces the default dead-letter logging. Call it before Start.
func (r *Runner) SetDeadLetterHandler(fn DeadLetterFunc) {
	r.deadLetter = fn
}

// Enqueue persists a new job and schedules it. When the in-memory queue is
// full the job is held back and offered to the queue again every
// OverflowRetryInterval; it stays pending in the store meanwhile.
func (r *Runner) Enqueue(ctx context.Context, name string, payload any, opts Options) error {
	r.mu.RLock()
	stopped := r.stopped
	r.mu.RUnlock()
	if stopped {
		return ErrQueueClosed
	}

	job, err := New(name, payload, opts)
	if err != nil {
		return err
	}
	if err := r.store.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	select {
	case r.jobs <- job:
		r.logger.Debug("job enqueued",
			"job_id", job.ID,
			"job_name", job.Name,
			"queue_len", len(r.jobs))
	default:
		r.holdBack(job, "enqueue")
	}
	return nil
}

// Start recovers unfinished jobs and launches the workers and the stuck-job monitor.
func (r *Runner) Start() error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.mu.Unlock()

	if err := r.Recover(r.ctx); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(2)
	go r.stuckJobMonitor()
	go r.overflowLoop()

	r.logger.Info("job runner started", "worker_count", r.config.WorkerCount)
	return nil
}

// Stop cancels pending retries, waits for in-flight jobs and rejects new ones.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	r.logger.Info("job runner stopped")
}

// Recover requeues pending jobs and resets jobs left in processing by a
// previous run.
func (r *Runner) Recover(ctx context.Context) error {
	pending, err := r.store.GetPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending jobs: %w", err)
	}

	processing, err := r.store.GetProcessing(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing jobs: %w", err)
	}

	r.logger.Info("recovering unfinished jobs",
		"pending_count", len(pending),
		"processing_count", len(processing))

	for _, job := range pending {
		if delay := time.Until(job.RunAt); delay > 0 {
			r.scheduleAfter(job, delay)
			continue
		}
		r.requeue(job, "pending")
	}
	for _, job := range processing {
		r.reset(ctx, job, "reset after recovery")
	}
	return nil
}

func (r *Runner) reset(ctx context.Context, job *Job, reason string) {
	job.Status = StatusPending
	job.LastError = reason
	if err := r.store.UpdateStatus(ctx, job); err != nil {
		r.logger.Error("failed to reset job status",
			"job_id", job.ID,
			"job_name", job.Name,
			"error", err)
		return
	}
	r.requeue(job, "reset")
}

func (r *Runner) requeue(job *Job, kind string) {
	select {
	case r.jobs <- job:
	default:
		r.holdBack(job, kind)
	}
}

// holdBack parks a job that found the queue full until overflowLoop can
// place it.
func (r *Runner) holdBack(job *Job, kind string) {
	r.overflowMu.Lock()
	r.overflow = append(r.overflow, job)
	n := len(r.overflow)
	r.overflowMu.Unlock()

	r.logger.Warn("job queue is full, job held back",
		"job_id", job.ID,
		"job_name", job.Name,
		"kind", kind,
		"held_back", n)
}

// overflowLoop periodically moves held-back jobs into the queue as space frees up.
func (r *Runner) overflowLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.OverflowRetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.drainOverflow()
		}
	}
}

func (r *Runner) drainOverflow() {
	r.overflowMu.Lock()
	defer r.overflowMu.Unlock()

	placed := 0
	for _, job := range r.overflow {
		select {
		case r.jobs <- job:
			placed++
			continue
		default:
		}
		break
	}
	r.overflow = r.overflow[placed:]
	if placed > 0 {
		r.logger.Debug("held-back jobs queued", "count", placed, "remaining", len(r.overflow))
	}
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return
		case job := <-r.jobs:
			r.process(job, id)
		}
	}
}

// process runs one attempt of a job and schedules a retry or dead-letters it.
func (r *Runner) process(job *Job, workerID int) {
	ctx := context.Background()
	log := r.logger.With(
		"job_id", job.ID,
		"job_name", job.Name,
		"worker_id", workerID,
	)

	job.Status = StatusProcessing
	job.Attempts++
	if err := r.store.UpdateStatus(ctx, job); err != nil {
		log.Error("failed to update job status to processing", "error", err)
		return
	}

	err := r.execute(ctx, job)
	if err == nil {
		job.Status = StatusCompleted
		job.LastError = ""
		if updateErr := r.store.UpdateStatus(ctx, job); updateErr != nil {
			log.Error("failed to update job status to completed", "error", updateErr)
		}
		r.metrics.JobOutcome(job.Name, metrics.JobCompleted)
		log.Info("job completed", "attempt", job.Attempts)
		return
	}

	job.LastError = err.Error()
	if job.Exhausted() || errors.Is(err, ErrUnknownHandler) {
		job.Status = StatusFailed
		if updateErr := r.store.UpdateStatus(ctx, job); updateErr != nil {
			log.Error("failed to update job status to failed", "error", updateErr)
		}
		r.metrics.JobOutcome(job.Name, metrics.JobFailed)
		r.deadLetter(ctx, job, err)
		return
	}

	job.Status = StatusPending
	job.RunAt = time.Now().UTC().Add(job.Backoff)
	if updateErr := r.store.UpdateStatus(ctx, job); updateErr != nil {
		log.Error("failed to update job status for retry", "error", updateErr)
	}
	r.metrics.JobOutcome(job.Name, metrics.JobRetried)
	log.Warn("job attempt failed, retrying",
		"attempt", job.Attempts,
		"max_attempts", job.MaxAttempts,
		"backoff", job.Backoff,
		"error", err)
	r.scheduleAfter(job, job.Backoff)
}

func (r *Runner) execute(ctx context.Context, job *Job) (err error) {
	handler, err := r.registry.Lookup(job.Name)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job handler panicked: %v", p)
		}
	}()
	return handler.Handle(ctx, job.Payload)
}

func (r *Runner) scheduleAfter(job *Job, delay time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-r.ctx.Done():
			// Left pending in the store; recovered on next start.
		case <-timer.C:
			r.requeue(job, "retry")
		}
	}()
}

// stuckJobMonitor periodically resets jobs that have been processing for too long.
func (r *Runner) stuckJobMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckJobCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			stuck, err := r.store.GetProcessing(r.ctx, r.config.StuckJobAge)
			if err != nil {
				r.logger.Error("failed to check for stuck jobs", "error", err)
				continue
			}
			if len(stuck) > 0 {
				r.logger.Info("found stuck jobs", "count", len(stuck))
			}
			for _, job := range stuck {
				r.reset(r.ctx, job, "reset after being stuck in processing state")
			}
		}
	}
}
