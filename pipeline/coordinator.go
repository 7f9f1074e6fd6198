package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/clipfab/shorts-api/cache"
	"github.com/clipfab/shorts-api/config"
	xerrors "github.com/clipfab/shorts-api/errors"
	"github.com/clipfab/shorts-api/log"
	"github.com/clipfab/shorts-api/metrics"
	"github.com/clipfab/shorts-api/progress"
	"github.com/google/uuid"
)

var (
	// ErrQueueFull is returned when the dispatch queue is at capacity.
	ErrQueueFull = fmt.Errorf("job queue is full")
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = fmt.Errorf("job not found")
	// ErrNotTerminal is returned when a retry targets a job that is still
	// queued or running.
	ErrNotTerminal = fmt.Errorf("job is not in a terminal state")
)

// Runner executes a single job to a terminal state. Implemented by Worker;
// stubbed in tests.
type Runner interface {
	Run(ctx context.Context, job *JobInfo)
}

// Coordinator is the in-memory job registry and dispatcher. Jobs enter a
// bounded FIFO queue and are drained by a fixed pool of worker goroutines,
// so at most MaxConcurrentJobs run at once and the rest wait in order.
type Coordinator struct {
	jobs        *cache.Cache[*JobInfo]
	idempotency *cache.Cache[string]
	queue       chan *JobInfo

	runner       Runner
	workerCount  int
	defaultModel string
}

func NewCoordinator(runner Runner, cli config.Cli) *Coordinator {
	return &Coordinator{
		jobs:         cache.New[*JobInfo](),
		idempotency:  cache.New[string](),
		queue:        make(chan *JobInfo, cli.MaxQueueDepth),
		runner:       runner,
		workerCount:  cli.MaxConcurrentJobs,
		defaultModel: cli.WhisperModel,
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled;
// queued jobs are left behind for the process to drop on shutdown.
func (c *Coordinator) Start(ctx context.Context) {
	for i := 0; i < c.workerCount; i++ {
		go c.runWorker(ctx, i)
	}
}

// CreateJob validates, registers and enqueues a new job. The returned bool
// is false when an idempotency key matched an existing job and no new job
// was created.
func (c *Coordinator) CreateJob(req JobRequest) (JobSnapshot, bool, error) {
	if err := req.validate(); err != nil {
		return JobSnapshot{}, false, err
	}
	opts := req.Options.withDefaults(c.defaultModel)
	if err := opts.validate(); err != nil {
		return JobSnapshot{}, false, err
	}

	jobID := uuid.New().String()
	now := time.Now().UTC()
	job := &JobInfo{
		JobID:     jobID,
		TraceID:   "trace-" + jobID[:13],
		Request:   req,
		Options:   opts,
		Attempt:   1,
		status:    StatusQueued,
		stage:     progress.StageQueued,
		createdAt: now,
		updatedAt: now,
	}

	// Register before claiming the idempotency key so that a concurrent
	// request that loses the claim always finds the winner's record.
	c.jobs.Store(jobID, job)
	if req.IdempotencyKey != "" {
		if !c.idempotency.StoreIfAbsent(req.IdempotencyKey, jobID) {
			c.jobs.Remove(jobID)
			existing := c.jobs.Get(c.idempotency.Get(req.IdempotencyKey))
			if existing == nil {
				return JobSnapshot{}, false, fmt.Errorf("idempotency key %q is held by an unknown job", req.IdempotencyKey)
			}
			return existing.Snapshot(), false, nil
		}
	}

	if err := c.enqueue(job); err != nil {
		c.jobs.Remove(jobID)
		if req.IdempotencyKey != "" {
			c.idempotency.Remove(req.IdempotencyKey)
		}
		return JobSnapshot{}, false, err
	}
	metrics.Metrics.JobsSubmitted.Inc()
	log.AddContext(jobID, "trace_id", job.TraceID, "source_type", req.SourceType)
	log.Log(jobID, "job accepted", "queue_depth", c.QueueDepth(), "jobs_tracked", c.jobs.Len())
	return job.Snapshot(), true, nil
}

// GetJob returns the current snapshot of a job.
func (c *Coordinator) GetJob(jobID string) (JobSnapshot, error) {
	job := c.jobs.Get(jobID)
	if job == nil {
		return JobSnapshot{}, ErrJobNotFound
	}
	return job.Snapshot(), nil
}

// RetryJob creates a new job from a finished one: same source, options
// merged field by field with override, attempt counter carried forward.
// The new job gets its own id; the terminal record stays in the registry
// untouched, so pollers of the old id keep seeing its final state.
func (c *Coordinator) RetryJob(jobID string, override *Options) (JobSnapshot, error) {
	prev := c.jobs.Get(jobID)
	if prev == nil {
		return JobSnapshot{}, ErrJobNotFound
	}
	if !prev.currentStatus().Terminal() {
		return JobSnapshot{}, ErrNotTerminal
	}

	opts := prev.Options.merge(override)
	if err := opts.validate(); err != nil {
		return JobSnapshot{}, err
	}

	newID := uuid.New().String()
	now := time.Now().UTC()
	job := &JobInfo{
		JobID:     newID,
		TraceID:   prev.TraceID,
		Request:   prev.Request,
		Options:   opts,
		Attempt:   prev.Attempt + 1,
		status:    StatusQueued,
		stage:     progress.StageQueued,
		createdAt: now,
		updatedAt: now,
	}
	c.jobs.Store(newID, job)
	if err := c.enqueue(job); err != nil {
		c.jobs.Remove(newID)
		return JobSnapshot{}, err
	}
	metrics.Metrics.JobsSubmitted.Inc()
	log.AddContext(newID, "trace_id", job.TraceID, "source_type", prev.Request.SourceType)
	log.Log(newID, "job retry accepted", "attempt", job.Attempt, "retry_of", prev.JobID)
	return job.Snapshot(), nil
}

// QueueDepth is the number of jobs waiting for a worker slot.
func (c *Coordinator) QueueDepth() int {
	return len(c.queue)
}

func (c *Coordinator) enqueue(job *JobInfo) error {
	select {
	case c.queue <- job:
	default:
		return ErrQueueFull
	}
	metrics.Metrics.QueueDepth.Set(float64(len(c.queue)))
	return nil
}

func (c *Coordinator) runWorker(ctx context.Context, slot int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-c.queue:
			metrics.Metrics.QueueDepth.Set(float64(len(c.queue)))
			c.runJob(ctx, job, slot)
		}
	}
}

func (c *Coordinator) runJob(ctx context.Context, job *JobInfo, slot int) {
	if !job.setRunning() {
		return
	}
	metrics.Metrics.JobsRunning.Inc()
	defer metrics.Metrics.JobsRunning.Dec()

	log.Log(job.JobID, "job started", "worker_slot", slot, "attempt", job.Attempt)
	start := time.Now()
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				job.SetFailed(xerrors.NewJobError(xerrors.InternalError, job.Snapshot().Stage,
					fmt.Errorf("panic while processing job: %v", rec)))
			}
		}()
		c.runner.Run(ctx, job)
	}()

	// The runner owns terminal transitions. Catch the case where it
	// returned without setting one, so pollers never see a stuck job.
	if !job.currentStatus().Terminal() {
		job.SetFailed(xerrors.NewJobError(xerrors.InternalError, job.Snapshot().Stage,
			fmt.Errorf("worker returned without completing the job")))
	}
	metrics.Metrics.JobsCompleted.WithLabelValues(string(job.currentStatus())).Inc()
	log.Log(job.JobID, "job finished",
		"status", string(job.currentStatus()),
		"duration", time.Since(start).Round(time.Millisecond).String())
}
