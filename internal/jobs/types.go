package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypePersist hands a committed ledger state to the configured savers.
	JobTypePersist JobType = "persist"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
	// JobStatusSkipped indicates a newer version made the job redundant.
	JobStatusSkipped JobStatus = "skipped"
)

var (
	// ErrJobNotFound is returned by JobStore lookups of unknown ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrSuperseded is returned by handlers for a job whose work a newer job
	// already covers. Queues record it as skipped and never retry it.
	ErrSuperseded = errors.New("job superseded")
	// ErrQueueClosed is returned when publishing to a stopped queue.
	ErrQueueClosed = errors.New("queue is closed")
)

// PersistJob saves one committed ledger version.
type PersistJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Version is the store version the state was committed at.
	Version uint64 `json:"version"`

	// State is the committed state. It is not part of the job record.
	State domain.State `json:"-"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *PersistJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *PersistJob) GetType() JobType {
	return JobTypePersist
}

// GetStatus implements the Job interface.
func (j *PersistJob) GetStatus() JobStatus {
	return j.Status
}

// Record returns a copy of the job without its state payload.
func (j *PersistJob) Record() *PersistJob {
	c := *j
	c.State = domain.State{}
	return &c
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishPersist publishes a persist job.
	PublishPersist(ctx context.Context, job *PersistJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job records.
type JobStore interface {
	// SaveJob saves or updates a job's record.
	SaveJob(ctx context.Context, job *PersistJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*PersistJob, error)

	// ListJobs retrieves jobs with optional filtering, newest version first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*PersistJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Status filters jobs by status.
	Status JobStatus

	// MinVersion drops jobs for versions below it.
	MinVersion uint64

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
