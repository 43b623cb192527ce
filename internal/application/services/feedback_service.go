package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/gesa-research/pald-backend/internal/domain/entities"
)

// FeedbackService bounds the iterative feedback refinement loop. It keeps
// no state across calls; the caller owns the round counter and decides
// whether to invoke another round.
type FeedbackService struct {
	extractor *PALDExtractionService
}

// NewFeedbackService creates a new feedback loop controller.
func NewFeedbackService(extractor *PALDExtractionService) *FeedbackService {
	return &FeedbackService{extractor: extractor}
}

// ProcessRound runs one feedback round: extract a PALD from the feedback
// text and decide whether the loop may continue. Any internal panic fails
// the loop closed.
func (s *FeedbackService) ProcessRound(ctx context.Context, feedbackText string, currentRound, maxRounds int, userWantsStop bool) (result *entities.FeedbackProcessingResult) {
	feedbackID := uuid.New()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int("round", currentRound).Msg("feedback round panicked, stopping loop")
			result = &entities.FeedbackProcessingResult{
				FeedbackID:       feedbackID,
				RoundNumber:      currentRound,
				MaxRoundsReached: true,
				ShouldContinue:   false,
				Metadata:         map[string]any{"error": "internal failure"},
			}
		}
	}()

	extraction := s.extractor.Extract(ctx, feedbackText)

	maxRoundsReached := currentRound >= maxRounds || !extraction.Success || userWantsStop
	shouldContinue := !maxRoundsReached && extraction.Success && !userWantsStop

	metadata := map[string]any{
		"processing_time_ms": extraction.ProcessingTimeMs,
		"processed_at":       time.Now().UTC(),
	}
	if extraction.ErrorMessage != "" {
		metadata["extraction_error"] = extraction.ErrorMessage
	}

	result = &entities.FeedbackProcessingResult{
		FeedbackID:       feedbackID,
		RoundNumber:      currentRound,
		MaxRoundsReached: maxRoundsReached,
		ShouldContinue:   shouldContinue,
		Metadata:         metadata,
	}
	if extraction.Success {
		result.FeedbackPALD = extraction.PALDData
	}
	return result
}

// Stop terminates the loop on explicit user request, regardless of round
// state.
func (s *FeedbackService) Stop(currentRound int) *entities.FeedbackProcessingResult {
	return &entities.FeedbackProcessingResult{
		FeedbackID:       uuid.New(),
		RoundNumber:      currentRound,
		MaxRoundsReached: true,
		ShouldContinue:   false,
		Metadata:         map[string]any{"stopped_by_user": true},
	}
}
