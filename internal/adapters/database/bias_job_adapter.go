package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/gesa-research/pald-backend/internal/domain/entities"
	"github.com/gesa-research/pald-backend/internal/domain/repositories"
	"github.com/gesa-research/pald-backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/gesa-research/pald-backend/pkg/errors"
)

const (
	jobsTable    = "bias_analysis_jobs"
	resultsTable = "bias_analysis_results"
)

// BiasJobAdapter implements bias job persistence in Postgres. Locking is a
// single conditional UPDATE, so two workers racing on one job resolve at
// the database row, never in application memory.
type BiasJobAdapter struct {
	client *postgres.Client
	db     *goqu.Database
	now    func() time.Time
}

// NewBiasJobAdapter creates a new bias job adapter.
func NewBiasJobAdapter(client *postgres.Client) repositories.BiasJobRepository {
	return &BiasJobAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
		now:    time.Now,
	}
}

// Create inserts a new PENDING job.
func (a *BiasJobAdapter) Create(ctx context.Context, job *entities.BiasAnalysisJob) error {
	if job == nil {
		return apperrors.NewValidationError("job is nil")
	}

	paldData, err := json.Marshal(job.PALDData)
	if err != nil {
		return apperrors.NewInternalError("failed to encode pald data", err)
	}

	record := goqu.Record{
		"id":             job.ID,
		"session_id":     job.SessionID,
		"pald_data":      paldData,
		"analysis_types": pq.Array(job.AnalysisTypes),
		"priority":       job.Priority,
		"status":         string(job.Status),
		"retry_count":    job.RetryCount,
		"max_retries":    job.MaxRetries,
		"scheduled_at":   job.ScheduledAt,
		"error_message":  sql.NullString{String: job.ErrorMessage, Valid: job.ErrorMessage != ""},
		"created_at":     job.CreatedAt,
		"updated_at":     job.UpdatedAt,
	}

	query, args, err := a.db.Insert(jobsTable).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build job insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create bias job", err)
	}

	return nil
}

// GetByID returns a single job.
func (a *BiasJobAdapter) GetByID(ctx context.Context, id uuid.UUID) (*entities.BiasAnalysisJob, error) {
	query, args, err := a.db.From(jobsTable).
		Select(jobColumns()...).
		Where(goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build job select query", err)
	}

	row := a.client.DB().QueryRowContext(ctx, query, args...)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("bias job %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to fetch bias job", err)
	}
	return job, nil
}

// FetchDue returns due PENDING and RETRY jobs in (priority, age) order.
// RETRY is polled alongside PENDING so rescheduled jobs come back around.
func (a *BiasJobAdapter) FetchDue(ctx context.Context, limit int) ([]*entities.BiasAnalysisJob, error) {
	return a.fetch(ctx,
		goqu.And(
			goqu.C("status").In(string(entities.JobStatusPending), string(entities.JobStatusRetry)),
			goqu.C("scheduled_at").Lte(a.now()),
		),
		limit,
	)
}

// FetchByStatus returns jobs with exactly the given status.
func (a *BiasJobAdapter) FetchByStatus(ctx context.Context, status entities.JobStatus, limit int) ([]*entities.BiasAnalysisJob, error) {
	return a.fetch(ctx, goqu.C("status").Eq(string(status)), limit)
}

func (a *BiasJobAdapter) fetch(ctx context.Context, where goqu.Expression, limit int) ([]*entities.BiasAnalysisJob, error) {
	if limit <= 0 {
		return nil, nil
	}

	query, args, err := a.db.From(jobsTable).
		Select(jobColumns()...).
		Where(where).
		Order(goqu.C("priority").Asc(), goqu.C("scheduled_at").Asc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build job fetch query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to fetch bias jobs", err)
	}
	defer rows.Close()

	var jobs []*entities.BiasAnalysisJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan bias job", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate bias jobs", err)
	}

	return jobs, nil
}

// TryLock atomically transitions a job to RUNNING. The WHERE clause on the
// prior status makes the update a compare-and-set: of two racing workers
// exactly one sees rows-affected == 1.
func (a *BiasJobAdapter) TryLock(ctx context.Context, id uuid.UUID) (bool, error) {
	query, args, err := a.db.Update(jobsTable).
		Set(goqu.Record{
			"status":     string(entities.JobStatusRunning),
			"updated_at": a.now(),
		}).
		Where(
			goqu.C("id").Eq(id),
			goqu.C("status").In(string(entities.JobStatusPending), string(entities.JobStatusRetry)),
		).
		ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build job lock query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return false, apperrors.NewInternalError("failed to lock bias job", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.NewInternalError("failed to read lock result", err)
	}

	return affected == 1, nil
}

// UpdateStatus performs an unconditional status update.
func (a *BiasJobAdapter) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.JobStatus, update repositories.StatusUpdate) error {
	if !status.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown job status %q", status))
	}

	record := goqu.Record{
		"status":     string(status),
		"updated_at": a.now(),
	}
	if update.StartedAt != nil {
		record["started_at"] = *update.StartedAt
	}
	if update.CompletedAt != nil {
		record["completed_at"] = *update.CompletedAt
	}
	if update.ErrorMessage != nil {
		record["error_message"] = *update.ErrorMessage
	}

	return a.execUpdate(ctx, id, record, "failed to update bias job status")
}

// ScheduleRetry sets status=RETRY, bumps retry_count and records the next
// due time.
func (a *BiasJobAdapter) ScheduleRetry(ctx context.Context, id uuid.UUID, scheduledAt time.Time, errMsg string) error {
	record := goqu.Record{
		"status":        string(entities.JobStatusRetry),
		"retry_count":   goqu.L("retry_count + 1"),
		"scheduled_at":  scheduledAt,
		"error_message": errMsg,
		"updated_at":    a.now(),
	}
	return a.execUpdate(ctx, id, record, "failed to schedule bias job retry")
}

// MoveToDLQ terminally parks a job with its final error message.
func (a *BiasJobAdapter) MoveToDLQ(ctx context.Context, id uuid.UUID, errMsg string) error {
	record := goqu.Record{
		"status":        string(entities.JobStatusDLQ),
		"completed_at":  a.now(),
		"error_message": errMsg,
		"updated_at":    a.now(),
	}
	return a.execUpdate(ctx, id, record, "failed to move bias job to dlq")
}

func (a *BiasJobAdapter) execUpdate(ctx context.Context, id uuid.UUID, record goqu.Record, msg string) error {
	query, args, err := a.db.Update(jobsTable).
		Set(record).
		Where(goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build job update query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError(msg, err)
	}
	return nil
}

// StoreResults bulk-inserts the analysis results of a job.
func (a *BiasJobAdapter) StoreResults(ctx context.Context, jobID uuid.UUID, results []*entities.BiasAnalysisResult) error {
	if len(results) == 0 {
		return nil
	}

	records := make([]any, 0, len(results))
	for _, result := range results {
		indicators, err := json.Marshal(result.BiasIndicators)
		if err != nil {
			return apperrors.NewInternalError("failed to encode bias indicators", err)
		}
		details, err := json.Marshal(result.AnalysisDetails)
		if err != nil {
			return apperrors.NewInternalError("failed to encode analysis details", err)
		}

		records = append(records, goqu.Record{
			"id":               result.ID,
			"job_id":           jobID,
			"session_id":       result.SessionID,
			"analysis_type":    result.AnalysisType,
			"bias_detected":    result.BiasDetected,
			"confidence_score": result.ConfidenceScore,
			"bias_indicators":  indicators,
			"analysis_details": details,
			"created_at":       result.CreatedAt,
		})
	}

	// A job retried after a partial completion re-runs every analysis
	// type, so keep one row per (job_id, analysis_type) and let the
	// latest run win.
	query, args, err := a.db.Insert(resultsTable).
		Rows(records...).
		OnConflict(goqu.DoUpdate("job_id, analysis_type", goqu.Record{
			"bias_detected":    goqu.L("EXCLUDED.bias_detected"),
			"confidence_score": goqu.L("EXCLUDED.confidence_score"),
			"bias_indicators":  goqu.L("EXCLUDED.bias_indicators"),
			"analysis_details": goqu.L("EXCLUDED.analysis_details"),
			"created_at":       goqu.L("EXCLUDED.created_at"),
		})).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build results insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to store analysis results", err)
	}

	return nil
}

// Release is a cleanup hook; row locking needs no teardown in this store.
func (a *BiasJobAdapter) Release(_ context.Context, _ uuid.UUID) error {
	return nil
}

func jobColumns() []any {
	return []any{
		"id", "session_id", "pald_data", "analysis_types", "priority",
		"status", "retry_count", "max_retries", "scheduled_at",
		"started_at", "completed_at", "error_message", "created_at",
		"updated_at",
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*entities.BiasAnalysisJob, error) {
	var (
		job       entities.BiasAnalysisJob
		paldData  []byte
		types     pq.StringArray
		status    string
		errMsg    sql.NullString
		startedAt sql.NullTime
		doneAt    sql.NullTime
	)

	err := row.Scan(
		&job.ID, &job.SessionID, &paldData, &types, &job.Priority,
		&status, &job.RetryCount, &job.MaxRetries, &job.ScheduledAt,
		&startedAt, &doneAt, &errMsg, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(paldData) > 0 {
		if err := json.Unmarshal(paldData, &job.PALDData); err != nil {
			return nil, fmt.Errorf("failed to decode pald data: %w", err)
		}
	}
	job.AnalysisTypes = []string(types)
	job.Status = entities.JobStatus(status)
	if errMsg.Valid {
		job.ErrorMessage = errMsg.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if doneAt.Valid {
		t := doneAt.Time
		job.CompletedAt = &t
	}

	return &job, nil
}
