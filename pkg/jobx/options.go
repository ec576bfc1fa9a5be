package jobx

import (
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/config"
)

// WorkerOptions configures the job processing client.
type WorkerOptions struct {
	Queues            []string
	Concurrency       int
	PollInterval      time.Duration
	ShutdownTimeout   time.Duration
	DequeueTimeout    time.Duration
	DefaultRetryDelay time.Duration
	// JobTimeout bounds a single handler invocation. Zero means no bound.
	JobTimeout time.Duration
}

func defaultWorkerOptions() WorkerOptions {
	return WorkerOptions{
		Queues:            []string{"default"},
		Concurrency:       4,
		PollInterval:      time.Second,
		ShutdownTimeout:   30 * time.Second,
		DequeueTimeout:    5 * time.Second,
		DefaultRetryDelay: 30 * time.Second,
		JobTimeout:        time.Minute,
	}
}

// WorkerOption is a functional option for configuring the client.
type WorkerOption func(*WorkerOptions)

// FromConfig applies the non-zero values of the jobx configuration section.
func FromConfig(cfg config.JobxConfig) WorkerOption {
	return func(o *WorkerOptions) {
		if len(cfg.Queues) > 0 {
			o.Queues = cfg.Queues
		}
		if cfg.Concurrency > 0 {
			o.Concurrency = cfg.Concurrency
		}
		if cfg.PollInterval > 0 {
			o.PollInterval = cfg.PollInterval
		}
		if cfg.ShutdownTimeout > 0 {
			o.ShutdownTimeout = cfg.ShutdownTimeout
		}
		if cfg.DequeueTimeout > 0 {
			o.DequeueTimeout = cfg.DequeueTimeout
		}
		if cfg.DefaultRetryDelay > 0 {
			o.DefaultRetryDelay = cfg.DefaultRetryDelay
		}
	}
}

// WithQueues sets the queues to process.
func WithQueues(queues ...string) WorkerOption {
	return func(o *WorkerOptions) {
		o.Queues = queues
	}
}

// WithConcurrency sets the number of worker goroutines.
func WithConcurrency(n int) WorkerOption {
	return func(o *WorkerOptions) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithPollInterval sets the interval between dequeue attempts when idle.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		o.PollInterval = d
	}
}

// WithShutdownTimeout sets the maximum time to wait for workers to finish on shutdown.
func WithShutdownTimeout(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		o.ShutdownTimeout = d
	}
}

// WithDequeueTimeout sets the timeout passed to the blocking dequeue call.
func WithDequeueTimeout(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		o.DequeueTimeout = d
	}
}

// WithDefaultRetryDelay sets the default delay before retrying a failed job.
func WithDefaultRetryDelay(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		o.DefaultRetryDelay = d
	}
}

// WithJobTimeout bounds each handler invocation.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		o.JobTimeout = d
	}
}
