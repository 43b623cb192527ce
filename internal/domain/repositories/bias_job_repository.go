package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gesa-research/pald-backend/internal/domain/entities"
)

// StatusUpdate carries the optional fields of an unconditional status
// change. Nil pointers leave the column untouched.
type StatusUpdate struct {
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage *string
}

// BiasJobRepository defines the storage contract for bias analysis jobs.
// The store must execute TryLock as a single atomic compare-and-set; that
// is the only concurrency-safety mechanism the worker relies on.
type BiasJobRepository interface {
	// Create inserts a new PENDING job.
	Create(ctx context.Context, job *entities.BiasAnalysisJob) error

	// GetByID returns a single job.
	GetByID(ctx context.Context, id uuid.UUID) (*entities.BiasAnalysisJob, error)

	// FetchDue returns up to limit jobs in status PENDING or RETRY with
	// scheduled_at <= now, ordered by (priority asc, scheduled_at asc).
	// RETRY rows are polled alongside PENDING so rescheduled jobs are not
	// stranded.
	FetchDue(ctx context.Context, limit int) ([]*entities.BiasAnalysisJob, error)

	// FetchByStatus returns up to limit jobs with exactly the given status,
	// in the same ordering as FetchDue.
	FetchByStatus(ctx context.Context, status entities.JobStatus, limit int) ([]*entities.BiasAnalysisJob, error)

	// TryLock atomically transitions a job from PENDING or RETRY to RUNNING.
	// It returns false when another worker already holds the job.
	TryLock(ctx context.Context, id uuid.UUID) (bool, error)

	// UpdateStatus performs an unconditional status update.
	UpdateStatus(ctx context.Context, id uuid.UUID, status entities.JobStatus, update StatusUpdate) error

	// ScheduleRetry sets status=RETRY, increments retry_count and records
	// the next due time and error message.
	ScheduleRetry(ctx context.Context, id uuid.UUID, scheduledAt time.Time, errMsg string) error

	// MoveToDLQ terminally parks a job with its final error message.
	MoveToDLQ(ctx context.Context, id uuid.UUID, errMsg string) error

	// StoreResults bulk-inserts the analysis results of a job.
	StoreResults(ctx context.Context, jobID uuid.UUID, results []*entities.BiasAnalysisResult) error

	// Release is a best-effort cleanup hook invoked on every exit path.
	Release(ctx context.Context, id uuid.UUID) error
}
