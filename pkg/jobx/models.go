package jobx

import (
	"encoding/json"
	"time"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// Job represents a unit of work to be enqueued.
type Job struct {
	Type    string          `json:"type"`
	Queue   string          `json:"queue"`
	Payload json.RawMessage `json:"payload"`

	// MaxRetries is the maximum number of retry attempts. Default is 3.
	MaxRetries int `json:"max_retries"`
}

// NewJob encodes payload as JSON into a job of the given type.
func NewJob(jobType string, payload any) (Job, error) {
	if jobType == "" {
		return Job{}, jobxErrors.New(ErrInvalidJob).WithDetail("reason", "empty job type")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, jobxErrors.NewWithCause(ErrInvalidJob, err).WithDetail("type", jobType)
	}
	return Job{Type: jobType, Payload: raw}, nil
}

// JobInfo is the full representation of a job stored in the backend.
type JobInfo struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	MaxRetries int             `json:"max_retries"`
	Attempts   int             `json:"attempts"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Decode unmarshals the job payload into v.
func (j *JobInfo) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return jobxErrors.NewWithCause(ErrInvalidJob, err).
			WithDetail("job_id", j.ID).
			WithDetail("type", j.Type)
	}
	return nil
}

// NewInfo builds the stored representation of a freshly enqueued job.
func NewInfo(id string, job Job, now time.Time) JobInfo {
	return JobInfo{
		ID:         id,
		Type:       job.Type,
		Queue:      job.Queue,
		Payload:    job.Payload,
		Status:     JobStatusPending,
		MaxRetries: job.MaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
