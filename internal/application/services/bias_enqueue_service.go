package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gesa-research/pald-backend/internal/domain/entities"
	"github.com/gesa-research/pald-backend/internal/domain/repositories"
	apperrors "github.com/gesa-research/pald-backend/pkg/errors"
)

// BiasEnqueueService is the producer side of the bias analysis queue.
type BiasEnqueueService struct {
	jobs       repositories.BiasJobRepository
	maxRetries int
	now        func() time.Time
}

// NewBiasEnqueueService creates a new job producer. maxRetries is stamped
// onto every job it creates.
func NewBiasEnqueueService(jobs repositories.BiasJobRepository, maxRetries int) *BiasEnqueueService {
	return &BiasEnqueueService{
		jobs:       jobs,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// Enqueue creates a PENDING job due immediately. Lower priority numbers are
// served first.
func (s *BiasEnqueueService) Enqueue(ctx context.Context, sessionID string, paldData map[string]any, analysisTypes []string, priority int) (*entities.BiasAnalysisJob, error) {
	if sessionID == "" {
		return nil, apperrors.NewValidationError("session id is required")
	}
	if len(analysisTypes) == 0 {
		return nil, apperrors.NewValidationError("at least one analysis type is required")
	}

	now := s.now().UTC()
	job := &entities.BiasAnalysisJob{
		ID:            uuid.New(),
		SessionID:     sessionID,
		PALDData:      paldData,
		AnalysisTypes: analysisTypes,
		Priority:      priority,
		Status:        entities.JobStatusPending,
		MaxRetries:    s.maxRetries,
		ScheduledAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue bias analysis job: %w", err)
	}
	return job, nil
}
