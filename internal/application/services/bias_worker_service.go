package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gesa-research/pald-backend/internal/domain/entities"
	"github.com/gesa-research/pald-backend/internal/domain/providers"
	"github.com/gesa-research/pald-backend/internal/domain/repositories"
	"github.com/gesa-research/pald-backend/internal/infrastructure/observability"
)

const (
	retryBaseDelay = 10 * time.Second
	retryMaxDelay  = 5 * time.Minute
)

// BiasWorkerService is the consumer side of the bias analysis queue. It
// polls due jobs, claims each one through the store's compare-and-set lock
// and runs the configured analyzers over the job's PALD payload.
type BiasWorkerService struct {
	jobs          repositories.BiasJobRepository
	analyzer      providers.BiasAnalyzer
	events        providers.JobEventBus
	metrics       *observability.Metrics
	batchSize     int
	maxConcurrent int
	pollInterval  time.Duration
	now           func() time.Time
}

// NewBiasWorkerService creates a new queue worker. events and metrics may
// be nil; both are best effort.
func NewBiasWorkerService(
	jobs repositories.BiasJobRepository,
	analyzer providers.BiasAnalyzer,
	events providers.JobEventBus,
	metrics *observability.Metrics,
	batchSize int,
	maxConcurrent int,
	pollInterval time.Duration,
) *BiasWorkerService {
	if batchSize <= 0 {
		batchSize = 20
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &BiasWorkerService{
		jobs:          jobs,
		analyzer:      analyzer,
		events:        events,
		metrics:       metrics,
		batchSize:     batchSize,
		maxConcurrent: maxConcurrent,
		pollInterval:  pollInterval,
		now:           time.Now,
	}
}

// Run polls the queue until ctx is cancelled. Poll errors are logged and
// the loop keeps going; a dead database should not kill the worker.
func (s *BiasWorkerService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := s.ProcessBatch(ctx); err != nil {
			log.Error().Err(err).Msg("bias worker batch failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessBatch fetches one batch of due jobs and processes them with at
// most maxConcurrent jobs in flight. It returns the number of jobs this
// worker completed; jobs lost to another worker's lock are not counted.
func (s *BiasWorkerService) ProcessBatch(ctx context.Context) (int, error) {
	due, err := s.jobs.FetchDue(ctx, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch due jobs: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup
	var completed int64

	for _, job := range due {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return int(completed), ctx.Err()
		}

		wg.Add(1)
		go func(job *entities.BiasAnalysisJob) {
			defer wg.Done()
			defer func() { <-sem }()
			if s.processJob(ctx, job) {
				atomic.AddInt64(&completed, 1)
			}
		}(job)
	}

	wg.Wait()
	return int(completed), nil
}

// processJob runs one job end to end and reports whether this worker
// completed it. The job value is a snapshot; all state changes go through
// the repository.
func (s *BiasWorkerService) processJob(ctx context.Context, job *entities.BiasAnalysisJob) (ok bool) {
	logger := log.With().Stringer("job_id", job.ID).Str("session_id", job.SessionID).Logger()

	// Release runs on every exit path, including panics below.
	defer func() {
		if err := s.jobs.Release(ctx, job.ID); err != nil {
			logger.Warn().Err(err).Msg("job release failed")
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("job processing panicked")
			s.failJob(ctx, job, fmt.Sprintf("panic: %v", r))
			ok = false
		}
	}()

	locked, err := s.jobs.TryLock(ctx, job.ID)
	if err != nil {
		logger.Error().Err(err).Msg("job lock attempt failed")
		return false
	}
	if !locked {
		// Another worker got there first; not an error.
		logger.Debug().Msg("job already claimed")
		return false
	}

	startedAt := s.now().UTC()
	if err := s.jobs.UpdateStatus(ctx, job.ID, entities.JobStatusRunning, repositories.StatusUpdate{StartedAt: &startedAt}); err != nil {
		logger.Error().Err(err).Msg("failed to mark job running")
		s.failJob(ctx, job, fmt.Sprintf("failed to mark running: %v", err))
		return false
	}

	results, err := s.runAnalyses(ctx, job)
	if err != nil {
		logger.Warn().Err(err).Int("retry_count", job.RetryCount).Msg("job analysis failed")
		s.failJob(ctx, job, err.Error())
		return false
	}

	if err := s.jobs.StoreResults(ctx, job.ID, results); err != nil {
		logger.Error().Err(err).Msg("failed to store analysis results")
		s.failJob(ctx, job, fmt.Sprintf("failed to store results: %v", err))
		return false
	}

	completedAt := s.now().UTC()
	if err := s.jobs.UpdateStatus(ctx, job.ID, entities.JobStatusCompleted, repositories.StatusUpdate{CompletedAt: &completedAt}); err != nil {
		// Without this the job would sit in RUNNING forever; there is no
		// heartbeat reclaim. The results upsert makes the retry harmless.
		logger.Error().Err(err).Msg("failed to mark job completed")
		s.failJob(ctx, job, fmt.Sprintf("failed to mark completed: %v", err))
		return false
	}

	observability.RecordJobOutcome(ctx, s.metrics, string(entities.JobStatusCompleted))
	s.publishEvent(ctx, job, entities.JobEventCompleted, entities.JobStatusCompleted)
	logger.Info().Int("results", len(results)).Msg("bias analysis job completed")
	return true
}

// runAnalyses executes every requested analysis type. A single analyzer
// infrastructure error fails the whole job so retries re-run all types
// against the same snapshot.
func (s *BiasWorkerService) runAnalyses(ctx context.Context, job *entities.BiasAnalysisJob) ([]*entities.BiasAnalysisResult, error) {
	results := make([]*entities.BiasAnalysisResult, 0, len(job.AnalysisTypes))
	for _, analysisType := range job.AnalysisTypes {
		outcome, err := s.analyzer.Analyze(ctx, job.PALDData, analysisType)
		if err != nil {
			return nil, fmt.Errorf("analysis %q failed: %w", analysisType, err)
		}
		results = append(results, &entities.BiasAnalysisResult{
			ID:              uuid.New(),
			JobID:           job.ID,
			SessionID:       job.SessionID,
			AnalysisType:    analysisType,
			BiasDetected:    outcome.BiasDetected,
			ConfidenceScore: outcome.ConfidenceScore,
			BiasIndicators:  outcome.BiasIndicators,
			AnalysisDetails: outcome.AnalysisDetails,
			CreatedAt:       s.now().UTC(),
		})
	}
	return results, nil
}

// failJob routes a failed job to RETRY with exponential backoff, or to the
// DLQ once its retry budget is spent.
func (s *BiasWorkerService) failJob(ctx context.Context, job *entities.BiasAnalysisJob, errMsg string) {
	logger := log.With().Stringer("job_id", job.ID).Logger()

	if job.RetryCount >= job.MaxRetries {
		if err := s.jobs.MoveToDLQ(ctx, job.ID, errMsg); err != nil {
			logger.Error().Err(err).Msg("failed to move job to dead letter queue")
			return
		}
		observability.RecordJobOutcome(ctx, s.metrics, string(entities.JobStatusDLQ))
		s.publishEvent(ctx, job, entities.JobEventDLQ, entities.JobStatusDLQ)
		logger.Warn().Int("retry_count", job.RetryCount).Msg("job moved to dead letter queue")
		return
	}

	delay := RetryDelay(job.RetryCount)
	scheduledAt := s.now().UTC().Add(delay)
	if err := s.jobs.ScheduleRetry(ctx, job.ID, scheduledAt, errMsg); err != nil {
		logger.Error().Err(err).Msg("failed to schedule job retry")
		return
	}
	observability.RecordJobOutcome(ctx, s.metrics, string(entities.JobStatusRetry))
	s.publishEvent(ctx, job, entities.JobEventRetry, entities.JobStatusRetry)
	logger.Info().Dur("delay", delay).Int("retry_count", job.RetryCount).Msg("job scheduled for retry")
}

// RetryDelay returns the backoff before attempt retryCount+1: base*2^n,
// capped at retryMaxDelay.
func RetryDelay(retryCount int) time.Duration {
	delay := retryBaseDelay
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return delay
}

func (s *BiasWorkerService) publishEvent(ctx context.Context, job *entities.BiasAnalysisJob, eventType entities.JobEventType, status entities.JobStatus) {
	if s.events == nil {
		return
	}
	event := &entities.JobEvent{
		JobID:      job.ID,
		SessionID:  job.SessionID,
		Type:       eventType,
		Status:     status,
		OccurredAt: s.now().UTC(),
	}
	for _, channel := range []string{providers.EventChannelJobUpdates, providers.GetSessionChannel(job.SessionID)} {
		if err := s.events.Publish(ctx, channel, event); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("failed to publish job event")
		}
	}
}
