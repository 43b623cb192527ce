package entities

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the closed set of bias analysis job states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusRetry     JobStatus = "RETRY"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusDLQ       JobStatus = "DLQ"
	JobStatusCancelled JobStatus = "CANCELLED"
	JobStatusTimeout   JobStatus = "TIMEOUT"
	JobStatusPartial   JobStatus = "PARTIAL"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusDLQ, JobStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusRetry,
		JobStatusCompleted, JobStatusFailed, JobStatusDLQ,
		JobStatusCancelled, JobStatusTimeout, JobStatusPartial:
		return true
	}
	return false
}

// BiasAnalysisJob is a deferred bias analysis over one persisted PALD
// payload. Rows are created PENDING by a producer and mutated only through
// the job repository; workers treat a fetched job as an immutable snapshot.
type BiasAnalysisJob struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	SessionID     string         `json:"session_id" db:"session_id"`
	PALDData      map[string]any `json:"pald_data" db:"pald_data"`
	AnalysisTypes []string       `json:"analysis_types" db:"analysis_types"`
	Priority      int            `json:"priority" db:"priority"`
	Status        JobStatus      `json:"status" db:"status"`
	RetryCount    int            `json:"retry_count" db:"retry_count"`
	MaxRetries    int            `json:"max_retries" db:"max_retries"`
	ScheduledAt   time.Time      `json:"scheduled_at" db:"scheduled_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	ErrorMessage  string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// BiasAnalysisResult is one detector outcome for a (job, analysis type)
// pair. Rows are immutable and cascade-deleted with their job.
type BiasAnalysisResult struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	JobID           uuid.UUID      `json:"job_id" db:"job_id"`
	SessionID       string         `json:"session_id" db:"session_id"`
	AnalysisType    string         `json:"analysis_type" db:"analysis_type"`
	BiasDetected    bool           `json:"bias_detected" db:"bias_detected"`
	ConfidenceScore float64        `json:"confidence_score" db:"confidence_score"`
	BiasIndicators  map[string]any `json:"bias_indicators,omitempty" db:"bias_indicators"`
	AnalysisDetails map[string]any `json:"analysis_details" db:"analysis_details"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
}

// JobEventType labels job lifecycle notifications on the event bus.
type JobEventType string

const (
	JobEventCompleted JobEventType = "job.completed"
	JobEventRetry     JobEventType = "job.retry"
	JobEventDLQ       JobEventType = "job.dlq"
)

// JobEvent is published when a worker resolves a job.
type JobEvent struct {
	JobID      uuid.UUID    `json:"job_id"`
	SessionID  string       `json:"session_id"`
	Type       JobEventType `json:"type"`
	Status     JobStatus    `json:"status"`
	OccurredAt time.Time    `json:"occurred_at"`
}
