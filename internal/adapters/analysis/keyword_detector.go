package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gesa-research/pald-backend/internal/domain/providers"
)

// Analysis types the reference detector understands.
const (
	TypeAge                    = "age"
	TypeGender                 = "gender"
	TypeGenderConformity       = "gender_conformity"
	TypeEthnicity              = "ethnicity"
	TypeOccupationalStereotype = "occupational_stereotype"
)

// Confidence levels reported by the keyword scan. A marker hit is weaker
// evidence than its absence, hence the asymmetry.
const (
	hitConfidence   = 0.7
	cleanConfidence = 0.9
)

// markerTerms maps each analysis type to the lowercase terms whose presence
// in a PALD payload flags the payload for that bias dimension.
var markerTerms = map[string][]string{
	TypeAge: {
		"old", "young", "elderly", "aged", "youthful", "middle-aged",
	},
	TypeGender: {
		"male", "female", "man", "woman", "boy", "girl", "masculine", "feminine",
	},
	TypeGenderConformity: {
		"androgynous", "effeminate", "manly", "womanly", "tomboy",
	},
	TypeEthnicity: {
		"white", "black", "asian", "caucasian", "african", "hispanic",
		"latino", "latina", "fair-skinned", "dark-skinned",
	},
	TypeOccupationalStereotype: {
		"secretary", "nurse", "assistant", "servant", "maid", "professor",
		"boss", "expert",
	},
}

// KeywordDetector is the reference BiasAnalyzer: a trivial per-type scan of
// the PALD payload's string values against marker word lists. Research-grade
// detectors replace it behind the same interface.
type KeywordDetector struct{}

var _ providers.BiasAnalyzer = (*KeywordDetector)(nil)

// NewKeywordDetector creates the reference detector.
func NewKeywordDetector() *KeywordDetector {
	return &KeywordDetector{}
}

// Analyze scans paldData for the marker terms of one analysis type.
// Unknown types are reported inside the outcome rather than as an error so
// a misconfigured job degrades to a recorded non-detection.
func (d *KeywordDetector) Analyze(_ context.Context, paldData map[string]any, analysisType string) (*providers.AnalysisOutcome, error) {
	details := map[string]any{"analysis_type": analysisType}

	terms, ok := markerTerms[analysisType]
	if !ok {
		details["error"] = fmt.Sprintf("unknown analysis type %q", analysisType)
		return &providers.AnalysisOutcome{
			BiasDetected:    false,
			ConfidenceScore: 0.0,
			AnalysisDetails: details,
		}, nil
	}

	tokens := tokenSet(paldData)
	var matched []string
	for _, term := range terms {
		if _, found := tokens[term]; found {
			matched = append(matched, term)
		}
	}
	sort.Strings(matched)

	details["scanned_tokens"] = len(tokens)
	outcome := &providers.AnalysisOutcome{
		BiasDetected:    len(matched) > 0,
		ConfidenceScore: cleanConfidence,
		AnalysisDetails: details,
	}
	if len(matched) > 0 {
		outcome.ConfidenceScore = hitConfidence
		outcome.BiasIndicators = map[string]any{"matched_terms": matched}
	}

	return outcome, nil
}

// tokenSet flattens all string values of a nested PALD payload into a set
// of lowercase whitespace tokens.
func tokenSet(data map[string]any) map[string]struct{} {
	tokens := make(map[string]struct{})
	collectTokens(data, tokens)
	return tokens
}

func collectTokens(value any, tokens map[string]struct{}) {
	switch v := value.(type) {
	case string:
		for _, token := range strings.Fields(strings.ToLower(v)) {
			tokens[strings.Trim(token, ".,;:!?()")] = struct{}{}
		}
	case map[string]any:
		for _, nested := range v {
			collectTokens(nested, tokens)
		}
	case []any:
		for _, nested := range v {
			collectTokens(nested, tokens)
		}
	case []string:
		for _, nested := range v {
			collectTokens(nested, tokens)
		}
	}
}
