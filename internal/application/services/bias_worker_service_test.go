package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gesa-research/pald-backend/internal/domain/entities"
	"github.com/gesa-research/pald-backend/internal/domain/providers"
	"github.com/gesa-research/pald-backend/internal/domain/repositories"
)

// memoryJobRepo is a mutex-guarded in-memory BiasJobRepository. TryLock is
// atomic under the mutex, which is exactly the guarantee the SQL store
// provides with its conditional update.
type memoryJobRepo struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*entities.BiasAnalysisJob
	results map[uuid.UUID][]*entities.BiasAnalysisResult
	retries []time.Time
}

func newMemoryJobRepo() *memoryJobRepo {
	return &memoryJobRepo{
		jobs:    make(map[uuid.UUID]*entities.BiasAnalysisJob),
		results: make(map[uuid.UUID][]*entities.BiasAnalysisResult),
	}
}

func (r *memoryJobRepo) Create(_ context.Context, job *entities.BiasAnalysisJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *job
	r.jobs[job.ID] = &clone
	return nil
}

func (r *memoryJobRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.BiasAnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, found := r.jobs[id]
	if !found {
		return nil, errors.New("job not found")
	}
	clone := *job
	return &clone, nil
}

func (r *memoryJobRepo) FetchDue(_ context.Context, limit int) ([]*entities.BiasAnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	due := make([]*entities.BiasAnalysisJob, 0, limit)
	for _, job := range r.jobs {
		if len(due) >= limit {
			break
		}
		if (job.Status == entities.JobStatusPending || job.Status == entities.JobStatusRetry) && !job.ScheduledAt.After(time.Now()) {
			clone := *job
			due = append(due, &clone)
		}
	}
	return due, nil
}

func (r *memoryJobRepo) FetchByStatus(_ context.Context, status entities.JobStatus, limit int) ([]*entities.BiasAnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := make([]*entities.BiasAnalysisJob, 0, limit)
	for _, job := range r.jobs {
		if len(matched) >= limit {
			break
		}
		if job.Status == status {
			clone := *job
			matched = append(matched, &clone)
		}
	}
	return matched, nil
}

func (r *memoryJobRepo) TryLock(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, found := r.jobs[id]
	if !found {
		return false, errors.New("job not found")
	}
	if job.Status != entities.JobStatusPending && job.Status != entities.JobStatusRetry {
		return false, nil
	}
	job.Status = entities.JobStatusRunning
	return true, nil
}

func (r *memoryJobRepo) UpdateStatus(_ context.Context, id uuid.UUID, status entities.JobStatus, update repositories.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, found := r.jobs[id]
	if !found {
		return errors.New("job not found")
	}
	job.Status = status
	if update.StartedAt != nil {
		job.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		job.CompletedAt = update.CompletedAt
	}
	if update.ErrorMessage != nil {
		job.ErrorMessage = *update.ErrorMessage
	}
	return nil
}

func (r *memoryJobRepo) ScheduleRetry(_ context.Context, id uuid.UUID, scheduledAt time.Time, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, found := r.jobs[id]
	if !found {
		return errors.New("job not found")
	}
	job.Status = entities.JobStatusRetry
	job.RetryCount++
	job.ScheduledAt = scheduledAt
	job.ErrorMessage = errMsg
	r.retries = append(r.retries, scheduledAt)
	return nil
}

func (r *memoryJobRepo) MoveToDLQ(_ context.Context, id uuid.UUID, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, found := r.jobs[id]
	if !found {
		return errors.New("job not found")
	}
	job.Status = entities.JobStatusDLQ
	job.ErrorMessage = errMsg
	return nil
}

func (r *memoryJobRepo) StoreResults(_ context.Context, jobID uuid.UUID, results []*entities.BiasAnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[jobID] = append(r.results[jobID], results...)
	return nil
}

func (r *memoryJobRepo) Release(_ context.Context, _ uuid.UUID) error {
	return nil
}

func (r *memoryJobRepo) status(t *testing.T, id uuid.UUID) entities.JobStatus {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	job, found := r.jobs[id]
	require.True(t, found)
	return job.Status
}

type fakeAnalyzer struct {
	err   error
	panic bool
}

func (a *fakeAnalyzer) Analyze(_ context.Context, _ map[string]any, analysisType string) (*providers.AnalysisOutcome, error) {
	if a.panic {
		panic("analyzer blew up")
	}
	if a.err != nil {
		return nil, a.err
	}
	return &providers.AnalysisOutcome{
		BiasDetected:    true,
		ConfidenceScore: 0.7,
		AnalysisDetails: map[string]any{"analysis_type": analysisType},
	}, nil
}

func newTestJob(retryCount, maxRetries int) *entities.BiasAnalysisJob {
	now := time.Now().UTC()
	return &entities.BiasAnalysisJob{
		ID:            uuid.New(),
		SessionID:     "session-1",
		PALDData:      map[string]any{"middle_design_level": map[string]any{"age": "old man"}},
		AnalysisTypes: []string{"age", "gender"},
		Status:        entities.JobStatusPending,
		RetryCount:    retryCount,
		MaxRetries:    maxRetries,
		ScheduledAt:   now.Add(-time.Second),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func newWorker(repo repositories.BiasJobRepository, analyzer providers.BiasAnalyzer) *BiasWorkerService {
	return NewBiasWorkerService(repo, analyzer, nil, nil, 20, 4, time.Second)
}

func TestProcessBatch_CompletesDueJobs(t *testing.T) {
	repo := newMemoryJobRepo()
	job := newTestJob(0, 3)
	require.NoError(t, repo.Create(context.Background(), job))

	worker := newWorker(repo, &fakeAnalyzer{})
	completed, err := worker.ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	assert.Equal(t, entities.JobStatusCompleted, repo.status(t, job.ID))
	assert.Len(t, repo.results[job.ID], 2, "one result per analysis type")
}

func TestProcessBatch_EmptyQueue(t *testing.T) {
	worker := newWorker(newMemoryJobRepo(), &fakeAnalyzer{})

	completed, err := worker.ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Zero(t, completed)
}

func TestProcessBatch_JobClaimedAtMostOnce(t *testing.T) {
	repo := newMemoryJobRepo()
	job := newTestJob(0, 3)
	require.NoError(t, repo.Create(context.Background(), job))

	// Two workers racing over the same queue. The conditional lock must
	// let exactly one of them count the job.
	workerA := newWorker(repo, &fakeAnalyzer{})
	workerB := newWorker(repo, &fakeAnalyzer{})

	var wg sync.WaitGroup
	totals := make([]int, 2)
	for i, worker := range []*BiasWorkerService{workerA, workerB} {
		wg.Add(1)
		go func(i int, worker *BiasWorkerService) {
			defer wg.Done()
			completed, err := worker.ProcessBatch(context.Background())
			assert.NoError(t, err)
			totals[i] = completed
		}(i, worker)
	}
	wg.Wait()

	assert.Equal(t, 1, totals[0]+totals[1])
	assert.Equal(t, entities.JobStatusCompleted, repo.status(t, job.ID))
}

// stealingRepo claims every fetched job right after handing out the
// snapshot, simulating a rival worker winning the race between fetch and
// lock.
type stealingRepo struct {
	*memoryJobRepo
}

func (r *stealingRepo) FetchDue(ctx context.Context, limit int) ([]*entities.BiasAnalysisJob, error) {
	due, err := r.memoryJobRepo.FetchDue(ctx, limit)
	if err != nil {
		return nil, err
	}
	for _, job := range due {
		if _, err := r.memoryJobRepo.TryLock(ctx, job.ID); err != nil {
			return nil, err
		}
	}
	return due, nil
}

func TestProcessBatch_LostLockIsNotCounted(t *testing.T) {
	repo := newMemoryJobRepo()
	job := newTestJob(0, 3)
	require.NoError(t, repo.Create(context.Background(), job))

	worker := newWorker(&stealingRepo{repo}, &fakeAnalyzer{})
	completed, err := worker.ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Zero(t, completed, "a job lost to another worker's lock is not counted")
	assert.Equal(t, entities.JobStatusRunning, repo.status(t, job.ID))
	assert.Empty(t, repo.results[job.ID])
}

func TestProcessBatch_FailureSchedulesRetryWithBackoff(t *testing.T) {
	repo := newMemoryJobRepo()
	job := newTestJob(1, 3)
	require.NoError(t, repo.Create(context.Background(), job))

	worker := newWorker(repo, &fakeAnalyzer{err: errors.New("detector offline")})
	base := time.Now().UTC()
	completed, err := worker.ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Zero(t, completed)
	assert.Equal(t, entities.JobStatusRetry, repo.status(t, job.ID))

	stored, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.RetryCount)
	assert.Contains(t, stored.ErrorMessage, "detector offline")

	// Attempt after one prior retry backs off by 20s.
	require.Len(t, repo.retries, 1)
	delta := repo.retries[0].Sub(base)
	assert.InDelta(t, (20 * time.Second).Seconds(), delta.Seconds(), 2.0)
}

func TestProcessBatch_ExhaustedRetriesGoToDLQ(t *testing.T) {
	repo := newMemoryJobRepo()
	job := newTestJob(3, 3)
	require.NoError(t, repo.Create(context.Background(), job))

	worker := newWorker(repo, &fakeAnalyzer{err: errors.New("detector offline")})
	completed, err := worker.ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Zero(t, completed)
	assert.Equal(t, entities.JobStatusDLQ, repo.status(t, job.ID))
	assert.Empty(t, repo.retries)
}

// completionFailingRepo fails only the transition to COMPLETED, as a
// database would after a dropped connection at the very end of a job.
type completionFailingRepo struct {
	*memoryJobRepo
}

func (r *completionFailingRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.JobStatus, update repositories.StatusUpdate) error {
	if status == entities.JobStatusCompleted {
		return errors.New("connection reset")
	}
	return r.memoryJobRepo.UpdateStatus(ctx, id, status, update)
}

func TestProcessBatch_FailedCompletionIsRetriedNotStranded(t *testing.T) {
	repo := newMemoryJobRepo()
	job := newTestJob(0, 3)
	require.NoError(t, repo.Create(context.Background(), job))

	worker := newWorker(&completionFailingRepo{repo}, &fakeAnalyzer{})
	completed, err := worker.ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Zero(t, completed)

	// The job must not sit in RUNNING with no exit path.
	assert.Equal(t, entities.JobStatusRetry, repo.status(t, job.ID))
	require.Len(t, repo.retries, 1)

	stored, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Contains(t, stored.ErrorMessage, "failed to mark completed")
}

func TestProcessBatch_RetryJobsArePolledAgain(t *testing.T) {
	repo := newMemoryJobRepo()
	job := newTestJob(1, 3)
	job.Status = entities.JobStatusRetry
	require.NoError(t, repo.Create(context.Background(), job))

	worker := newWorker(repo, &fakeAnalyzer{})
	completed, err := worker.ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	assert.Equal(t, entities.JobStatusCompleted, repo.status(t, job.ID))
}

func TestProcessBatch_PanicFailsJobClosed(t *testing.T) {
	repo := newMemoryJobRepo()
	job := newTestJob(0, 3)
	require.NoError(t, repo.Create(context.Background(), job))

	worker := newWorker(repo, &fakeAnalyzer{panic: true})
	completed, err := worker.ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Zero(t, completed)
	assert.Equal(t, entities.JobStatusRetry, repo.status(t, job.ID))

	stored, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.ErrorMessage, "panic")
}

func TestRetryDelay_ExponentialWithCap(t *testing.T) {
	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 10 * time.Second},
		{1, 20 * time.Second},
		{2, 40 * time.Second},
		{3, 80 * time.Second},
		{4, 160 * time.Second},
		{5, 300 * time.Second},
		{10, 300 * time.Second},
		{63, 300 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryDelay(tt.retryCount), "retryCount=%d", tt.retryCount)
	}
}
