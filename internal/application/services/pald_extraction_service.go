package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/gesa-research/pald-backend/internal/adapters/cache"
	"github.com/gesa-research/pald-backend/internal/domain/entities"
	"github.com/gesa-research/pald-backend/internal/domain/providers"
	"github.com/gesa-research/pald-backend/internal/infrastructure/clients/openai"
	"github.com/gesa-research/pald-backend/internal/infrastructure/observability"
)

// Fixed generation parameters. Low temperature and JSON-biased output keep
// extraction variance down so repeated runs over the same text converge.
var extractionParams = providers.GenerationParams{
	Temperature: 0.3,
	MaxTokens:   1000,
	JSONMode:    true,
}

// Confidence assigned to a boundary-accepted extraction. The LLM gives no
// usable self-estimate at these settings, so the value is a constant.
const extractionConfidence = 0.8

// PALDExtractionService turns free text into a boundary-filtered PALD
// payload. Failures of any kind come back inside the result; the service
// never returns an error across its contract.
type PALDExtractionService struct {
	llm       providers.LLMProvider
	validator providers.BoundaryValidator
	cache     providers.ExtractionCache
	metrics   *observability.Metrics
}

// NewPALDExtractionService creates a new extraction service.
func NewPALDExtractionService(
	llm providers.LLMProvider,
	validator providers.BoundaryValidator,
	extractionCache providers.ExtractionCache,
	metrics *observability.Metrics,
) *PALDExtractionService {
	return &PALDExtractionService{
		llm:       llm,
		validator: validator,
		cache:     extractionCache,
		metrics:   metrics,
	}
}

// Extract runs one text-to-PALD extraction, serving repeats from the cache.
// Two concurrent calls for the same uncached text may both reach the LLM;
// the second cache write wins, which is safe because extraction is
// idempotent and entries are replaced whole.
func (s *PALDExtractionService) Extract(ctx context.Context, text string) *entities.PALDExtractionResult {
	start := time.Now()

	key := cache.ExtractionKey(text)
	if cached, ok := s.cache.Get(ctx, key); ok {
		observability.RecordCacheHit(ctx, s.metrics)
		observability.RecordExtractionMetric(ctx, s.metrics, cached.Success, true, time.Since(start))
		return cached
	}
	observability.RecordCacheMiss(ctx, s.metrics)

	result := s.extract(ctx, text)
	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	s.cache.Set(ctx, key, result)
	observability.RecordExtractionMetric(ctx, s.metrics, result.Success, false, time.Since(start))
	return result
}

func (s *PALDExtractionService) extract(ctx context.Context, text string) *entities.PALDExtractionResult {
	prompt := openai.BuildExtractionPrompt(text)

	raw, err := s.llm.Generate(ctx, prompt, extractionParams)
	if err != nil {
		// Timeouts take the same path as any other generation failure.
		log.Warn().Err(err).Msg("pald extraction llm call failed")
		return &entities.PALDExtractionResult{
			Success:      false,
			PALDData:     map[string]any{},
			Confidence:   0.0,
			ErrorMessage: fmt.Sprintf("llm generation failed: %v", err),
		}
	}

	parsed := parseModelJSON(raw)

	validation := s.validator.Validate(parsed)
	if !validation.IsValid {
		return &entities.PALDExtractionResult{
			Success:      false,
			PALDData:     map[string]any{},
			Confidence:   0.0,
			ErrorMessage: strings.Join(validation.ValidationErrors, "; "),
		}
	}

	return &entities.PALDExtractionResult{
		Success:    true,
		PALDData:   validation.FilteredData,
		Confidence: extractionConfidence,
	}
}

// parseModelJSON recovers a JSON object from raw model output: code fences
// are stripped, then the substring from the first '{' to the last '}' is
// parsed. Anything unparsable yields an empty mapping, never an error.
func parseModelJSON(raw string) map[string]any {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimSuffix(cleaned, "```")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
	}
	cleaned = strings.TrimSpace(cleaned)

	first := strings.Index(cleaned, "{")
	last := strings.LastIndex(cleaned, "}")
	if first == -1 || last == -1 || last <= first {
		return map[string]any{}
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(cleaned[first:last+1]), &parsed); err != nil {
		log.Debug().Err(err).Msg("model output was not valid json")
		return map[string]any{}
	}
	if parsed == nil {
		return map[string]any{}
	}
	return parsed
}
