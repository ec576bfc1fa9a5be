// Package jobx runs background jobs: account-registration notifications and
// the periodic purge of expired invitations.
package jobx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/logx"
)

// HandlerFunc processes a job. Return nil on success, an error to trigger retry/fail.
type HandlerFunc func(ctx context.Context, job *JobInfo) error

// JobEnqueuer enqueues jobs for processing.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job Job) (string, error)
	EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) (string, error)
}

// Publisher enqueues a typed payload. Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, jobType string, payload any) (string, error)
}

// JobStatusReader reads job status.
type JobStatusReader interface {
	GetJob(ctx context.Context, jobID string) (*JobInfo, error)
}

// JobProcessor provides backend operations for the worker loop.
type JobProcessor interface {
	Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*JobInfo, error)
	Complete(ctx context.Context, jobID string, result []byte) error
	Fail(ctx context.Context, jobID string, errMsg string) (retry bool, err error)
	Retry(ctx context.Context, jobID string, delay time.Duration) error
	PromoteScheduled(ctx context.Context, queues []string) error
}

// Queue combines all backend operations.
type Queue interface {
	JobEnqueuer
	JobStatusReader
	JobProcessor
}

// Client enqueues jobs and, once started, runs the registered handlers.
type Client struct {
	queue    Queue
	opts     WorkerOptions
	handlers map[string]HandlerFunc
	mu       sync.RWMutex
	running  bool
}

func NewClient(queue Queue, options ...WorkerOption) *Client {
	opts := defaultWorkerOptions()
	for _, o := range options {
		o(&opts)
	}
	return &Client{
		queue:    queue,
		opts:     opts,
		handlers: make(map[string]HandlerFunc),
	}
}

// Register adds a handler for a given job type.
func (c *Client) Register(jobType string, handler HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[jobType] = handler
}

// Enqueue enqueues a job for immediate processing.
func (c *Client) Enqueue(ctx context.Context, job Job) (string, error) {
	job, err := c.normalize(job)
	if err != nil {
		return "", err
	}
	return c.queue.Enqueue(ctx, job)
}

// EnqueueDelayed enqueues a job with a delay before it becomes available.
func (c *Client) EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) (string, error) {
	job, err := c.normalize(job)
	if err != nil {
		return "", err
	}
	return c.queue.EnqueueDelayed(ctx, job, delay)
}

// Publish builds a job from payload and enqueues it.
func (c *Client) Publish(ctx context.Context, jobType string, payload any) (string, error) {
	job, err := NewJob(jobType, payload)
	if err != nil {
		return "", err
	}
	return c.Enqueue(ctx, job)
}

// GetJob returns the current state of a job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*JobInfo, error) {
	return c.queue.GetJob(ctx, jobID)
}

func (c *Client) normalize(job Job) (Job, error) {
	if job.Type == "" {
		return job, jobxErrors.New(ErrInvalidJob).WithDetail("reason", "empty job type")
	}
	if job.Queue == "" {
		job.Queue = c.opts.Queues[0]
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = 3
	}
	return job, nil
}

// Start begins processing jobs. It blocks until ctx is cancelled.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return jobxErrors.New(ErrAlreadyRunning)
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	logx.WithFields(logx.Fields{
		"workers": c.opts.Concurrency,
		"queues":  c.opts.Queues,
	}).Info("jobx: starting workers")

	var wg sync.WaitGroup

	// Scheduler goroutine: promotes delayed jobs to the ready queue.
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.schedulerLoop(ctx)
	}()

	for i := range c.opts.Concurrency {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.workerLoop(ctx, id)
		}(i)
	}

	<-ctx.Done()
	logx.Info("jobx: shutting down workers...")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logx.Info("jobx: all workers stopped")
	case <-time.After(c.opts.ShutdownTimeout):
		logx.Warn("jobx: shutdown timed out, some jobs may not have completed")
	}

	return nil
}

func (c *Client) schedulerLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.queue.PromoteScheduled(ctx, c.opts.Queues); err != nil {
				if ctx.Err() != nil {
					return
				}
				logx.WithError(err).Warn("jobx: failed to promote scheduled jobs")
			}
		}
	}
}

func (c *Client) workerLoop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := c.queue.Dequeue(ctx, c.opts.Queues, c.opts.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logx.WithError(err).Warnf("jobx: worker %d dequeue error", id)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.opts.PollInterval):
			}
			continue
		}
		if job == nil {
			continue
		}

		// In-flight jobs finish even when shutdown has begun.
		c.processJob(context.WithoutCancel(ctx), job)
	}
}

func (c *Client) processJob(ctx context.Context, job *JobInfo) {
	log := logx.WithFields(logx.Fields{
		"job_id":   job.ID,
		"job_type": job.Type,
		"attempt":  job.Attempts,
	})

	c.mu.RLock()
	handler, ok := c.handlers[job.Type]
	c.mu.RUnlock()

	if !ok {
		log.Warn("jobx: no handler registered for job type")
		_, _ = c.queue.Fail(ctx, job.ID, "no handler registered for job type")
		return
	}

	if err := c.run(ctx, handler, job); err != nil {
		log.WithError(err).Warn("jobx: job failed")

		shouldRetry, failErr := c.queue.Fail(ctx, job.ID, err.Error())
		if failErr != nil {
			log.WithError(failErr).Error("jobx: failed to mark job as failed")
			return
		}

		if shouldRetry {
			if retryErr := c.queue.Retry(ctx, job.ID, c.opts.DefaultRetryDelay); retryErr != nil {
				log.WithError(retryErr).Error("jobx: failed to retry job")
			}
		}
		return
	}

	if err := c.queue.Complete(ctx, job.ID, nil); err != nil {
		log.WithError(err).Error("jobx: failed to complete job")
		return
	}
	log.Debug("jobx: job completed")
}

func (c *Client) run(ctx context.Context, handler HandlerFunc, job *JobInfo) (err error) {
	if c.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.JobTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = jobxErrors.NewWithCause(ErrHandlerPanic, fmt.Errorf("%v", r)).WithDetail("job_id", job.ID)
		}
	}()

	return handler(ctx, job)
}
