package entities

import "github.com/google/uuid"

// PALD payload keys permitted at the top level. The escape key collects
// design elements the schema has no slot for.
const (
	PALDKeyGlobalDesignLevel   = "global_design_level"
	PALDKeyMiddleDesignLevel   = "middle_design_level"
	PALDKeyDetailedLevel       = "detailed_level"
	PALDKeyElementsNotInSchema = "design_elements_not_in_PALD"
)

// PALDLevelKeys lists the three schema levels in nesting order.
var PALDLevelKeys = []string{
	PALDKeyGlobalDesignLevel,
	PALDKeyMiddleDesignLevel,
	PALDKeyDetailedLevel,
}

// PALDExtractionResult is the outcome of one text-to-PALD extraction.
// Instances are immutable once returned and safe to cache by text content.
type PALDExtractionResult struct {
	Success          bool           `json:"success"`
	PALDData         map[string]any `json:"pald_data"`
	Confidence       float64        `json:"confidence"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	ErrorMessage     string         `json:"error_message,omitempty"`
}

// Clone returns a copy whose PALD map shares no structure with the
// original, so a caller mutating one cannot corrupt the other.
func (r *PALDExtractionResult) Clone() *PALDExtractionResult {
	if r == nil {
		return nil
	}
	clone := *r
	clone.PALDData = clonePALDValue(r.PALDData).(map[string]any)
	return &clone
}

func clonePALDValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		if v == nil {
			return map[string]any(nil)
		}
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = clonePALDValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = clonePALDValue(item)
		}
		return out
	default:
		return value
	}
}

// Recommendation tells the caller what to do after a consistency check.
type Recommendation string

const (
	RecommendationContinue   Recommendation = "continue"
	RecommendationAccept     Recommendation = "accept"
	RecommendationRegenerate Recommendation = "regenerate"
)

// ConsistencyCheckResult compares two PALD payloads.
type ConsistencyCheckResult struct {
	IsConsistent   bool           `json:"is_consistent"`
	Score          float64        `json:"score"`
	Differences    []string       `json:"differences"`
	Recommendation Recommendation `json:"recommendation"`
}

// ChatProcessingResult wraps one chat turn's extraction plus the optional
// consistency outcome against a second extraction.
type ChatProcessingResult struct {
	Extraction           *PALDExtractionResult   `json:"extraction"`
	Consistency          *ConsistencyCheckResult `json:"consistency,omitempty"`
	RequiresRegeneration bool                    `json:"requires_regeneration"`
}

// FeedbackProcessingResult is produced once per feedback round. Round state
// lives with the caller; the controller is stateless.
type FeedbackProcessingResult struct {
	FeedbackID       uuid.UUID      `json:"feedback_id"`
	RoundNumber      int            `json:"round_number"`
	MaxRoundsReached bool           `json:"max_rounds_reached"`
	FeedbackPALD     map[string]any `json:"feedback_pald,omitempty"`
	ShouldContinue   bool           `json:"should_continue"`
	Metadata         map[string]any `json:"metadata"`
}

// ValidationResult is what the boundary validator returns: the filtered
// payload plus any policy violations found on the way in.
type ValidationResult struct {
	IsValid          bool           `json:"is_valid"`
	FilteredData     map[string]any `json:"filtered_data"`
	ValidationErrors []string       `json:"validation_errors,omitempty"`
}
