package services

import (
	"context"

	"github.com/gesa-research/pald-backend/internal/domain/entities"
)

// ChatService processes one chat turn: it extracts a PALD from the user's
// text and, when a regenerated description is supplied, scores it against
// the original to decide whether regeneration is needed once more.
type ChatService struct {
	extractor   *PALDExtractionService
	consistency *ConsistencyService
}

// NewChatService creates a new chat turn processor.
func NewChatService(extractor *PALDExtractionService, consistency *ConsistencyService) *ChatService {
	return &ChatService{extractor: extractor, consistency: consistency}
}

// ProcessTurn extracts a PALD from text. If regeneratedText is non-empty it
// is extracted as well and the two payloads are compared; regeneration is
// requested only when the comparison recommends it.
func (s *ChatService) ProcessTurn(ctx context.Context, text, regeneratedText string) *entities.ChatProcessingResult {
	extraction := s.extractor.Extract(ctx, text)
	result := &entities.ChatProcessingResult{Extraction: extraction}

	if regeneratedText == "" {
		return result
	}

	regenerated := s.extractor.Extract(ctx, regeneratedText)
	result.Consistency = s.consistency.Score(extraction.PALDData, regenerated.PALDData)
	result.RequiresRegeneration = result.Consistency.Recommendation == entities.RecommendationRegenerate
	return result
}
