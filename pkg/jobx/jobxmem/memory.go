// Package jobxmem is an in-process jobx.Queue for single-node deployments
// and tests. Jobs do not survive a restart.
package jobxmem

import (
	"context"
	"sync"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/jobx"
	"github.com/google/uuid"
)

var memErrors = errx.NewRegistry("JOBX_MEM")

var ErrNotFound = memErrors.Register("NOT_FOUND", errx.TypeNotFound, 404, "Job not found")

type scheduled struct {
	id  string
	due time.Time
}

// Queue implements jobx.Queue in memory.
type Queue struct {
	mu        sync.Mutex
	jobs      map[string]*jobx.JobInfo
	ready     map[string][]string
	scheduled map[string][]scheduled
	notify    chan struct{}
	now       func() time.Time
}

func New() *Queue {
	return &Queue{
		jobs:      make(map[string]*jobx.JobInfo),
		ready:     make(map[string][]string),
		scheduled: make(map[string][]scheduled),
		notify:    make(chan struct{}, 1),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) Enqueue(_ context.Context, job jobx.Job) (string, error) {
	info := jobx.NewInfo(uuid.NewString(), job, q.now())

	q.mu.Lock()
	q.jobs[info.ID] = &info
	q.ready[job.Queue] = append(q.ready[job.Queue], info.ID)
	q.mu.Unlock()

	q.signal()
	return info.ID, nil
}

func (q *Queue) EnqueueDelayed(_ context.Context, job jobx.Job, delay time.Duration) (string, error) {
	now := q.now()
	info := jobx.NewInfo(uuid.NewString(), job, now)

	q.mu.Lock()
	q.jobs[info.ID] = &info
	q.scheduled[job.Queue] = append(q.scheduled[job.Queue], scheduled{id: info.ID, due: now.Add(delay)})
	q.mu.Unlock()

	return info.ID, nil
}

func (q *Queue) GetJob(_ context.Context, jobID string) (*jobx.JobInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	info, ok := q.jobs[jobID]
	if !ok {
		return nil, memErrors.New(ErrNotFound).WithDetail("job_id", jobID)
	}
	cp := *info
	return &cp, nil
}

// Dequeue returns the oldest ready job across queues, waiting up to timeout.
func (q *Queue) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*jobx.JobInfo, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if info := q.pop(queues); info != nil {
			return info, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-timer.C:
			return nil, nil
		case <-q.notify:
		}
	}
}

func (q *Queue) pop(queues []string) *jobx.JobInfo {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, name := range queues {
		ids := q.ready[name]
		if len(ids) == 0 {
			continue
		}
		q.ready[name] = ids[1:]

		info, ok := q.jobs[ids[0]]
		if !ok {
			continue
		}
		info.Status = jobx.JobStatusActive
		info.Attempts++
		info.UpdatedAt = q.now()
		cp := *info
		return &cp
	}
	return nil
}

func (q *Queue) Complete(_ context.Context, jobID string, result []byte) error {
	return q.update(jobID, func(info *jobx.JobInfo) {
		info.Status = jobx.JobStatusCompleted
		info.Result = result
	})
}

func (q *Queue) Fail(_ context.Context, jobID string, errMsg string) (bool, error) {
	var retry bool
	err := q.update(jobID, func(info *jobx.JobInfo) {
		retry = info.Attempts < info.MaxRetries
		if retry {
			info.Status = jobx.JobStatusRetrying
		} else {
			info.Status = jobx.JobStatusFailed
		}
		info.Error = errMsg
	})
	return retry, err
}

func (q *Queue) Retry(_ context.Context, jobID string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	info, ok := q.jobs[jobID]
	if !ok {
		return memErrors.New(ErrNotFound).WithDetail("job_id", jobID)
	}
	q.scheduled[info.Queue] = append(q.scheduled[info.Queue], scheduled{id: jobID, due: q.now().Add(delay)})
	return nil
}

func (q *Queue) PromoteScheduled(_ context.Context, queues []string) error {
	now := q.now()
	promoted := false

	q.mu.Lock()
	for _, name := range queues {
		pending := q.scheduled[name][:0]
		for _, s := range q.scheduled[name] {
			if s.due.After(now) {
				pending = append(pending, s)
				continue
			}
			q.ready[name] = append(q.ready[name], s.id)
			promoted = true
		}
		q.scheduled[name] = pending
	}
	q.mu.Unlock()

	if promoted {
		q.signal()
	}
	return nil
}

func (q *Queue) update(jobID string, fn func(*jobx.JobInfo)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	info, ok := q.jobs[jobID]
	if !ok {
		return memErrors.New(ErrNotFound).WithDetail("job_id", jobID)
	}
	fn(info)
	info.UpdatedAt = q.now()
	return nil
}
