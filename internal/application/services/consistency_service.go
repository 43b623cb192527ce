package services

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/gesa-research/pald-backend/internal/domain/entities"
)

// Per-key weights for the consistency score. The three schema levels carry
// nearly all of the weight; stray keys barely move the score.
var levelWeights = map[string]float64{
	entities.PALDKeyGlobalDesignLevel: 0.4,
	entities.PALDKeyMiddleDesignLevel: 0.35,
	entities.PALDKeyDetailedLevel:     0.25,
}

const (
	defaultKeyWeight = 0.1

	// Credit for a key present on only one side. Presence alone is weak
	// evidence of a shared design intent.
	unmatchedPresenceCredit = 0.3

	// Fraction of the threshold below which a payload is worth
	// regenerating rather than accepting.
	acceptBand = 0.7

	// Score reported when scoring itself fails and the pipeline falls
	// back to accepting the payload.
	safeAcceptScore = 0.5
)

// ConsistencyService scores how well two PALD payloads describe the same
// agent design.
type ConsistencyService struct {
	threshold float64
}

// NewConsistencyService creates a scorer deciding against threshold.
func NewConsistencyService(threshold float64) *ConsistencyService {
	return &ConsistencyService{threshold: threshold}
}

// Score computes the weighted similarity of a and b plus a readable diff.
// A scoring bug must not stall the pipeline, so panics degrade to a
// safe-accept result carrying the error in Differences.
func (s *ConsistencyService) Score(a, b map[string]any) (result *entities.ConsistencyCheckResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("consistency scoring panicked, falling back to accept")
			result = &entities.ConsistencyCheckResult{
				IsConsistent:   true,
				Score:          safeAcceptScore,
				Differences:    []string{fmt.Sprintf("scoring failed: %v", r)},
				Recommendation: entities.RecommendationAccept,
			}
		}
	}()

	if len(a) == 0 && len(b) == 0 {
		return &entities.ConsistencyCheckResult{
			IsConsistent:   true,
			Score:          1.0,
			Differences:    []string{},
			Recommendation: entities.RecommendationContinue,
		}
	}
	if len(a) == 0 || len(b) == 0 {
		return &entities.ConsistencyCheckResult{
			IsConsistent:   false,
			Score:          0.0,
			Differences:    []string{"one payload is empty"},
			Recommendation: entities.RecommendationRegenerate,
		}
	}

	keys := unionKeys(a, b)

	var totalWeight, matchingScore float64
	differences := make([]string, 0, len(keys))

	for _, key := range keys {
		weight, ok := levelWeights[key]
		if !ok {
			weight = defaultKeyWeight
		}
		totalWeight += weight

		va, inA := a[key]
		vb, inB := b[key]
		switch {
		case inA && inB:
			sim := similarity(va, vb)
			matchingScore += weight * sim
			if sim < 1.0 {
				differences = append(differences, fmt.Sprintf("key %q: differing value", key))
			}
		case inA:
			matchingScore += weight * unmatchedPresenceCredit
			differences = append(differences, fmt.Sprintf("key %q: present only in A", key))
		default:
			matchingScore += weight * unmatchedPresenceCredit
			differences = append(differences, fmt.Sprintf("key %q: present only in B", key))
		}
	}

	score := 0.0
	if totalWeight > 0 {
		score = matchingScore / totalWeight
	}

	return &entities.ConsistencyCheckResult{
		IsConsistent:   score >= s.threshold,
		Score:          score,
		Differences:    differences,
		Recommendation: s.recommend(score),
	}
}

func (s *ConsistencyService) recommend(score float64) entities.Recommendation {
	switch {
	case score >= s.threshold:
		return entities.RecommendationContinue
	case score >= acceptBand*s.threshold:
		return entities.RecommendationAccept
	default:
		return entities.RecommendationRegenerate
	}
}

// similarity compares two values of arbitrary shape in [0,1].
func similarity(x, y any) float64 {
	if equalValues(x, y) {
		return 1.0
	}

	mx, xIsMap := x.(map[string]any)
	my, yIsMap := y.(map[string]any)
	if xIsMap && yIsMap {
		return mapSimilarity(mx, my)
	}

	sx, xIsStr := x.(string)
	sy, yIsStr := y.(string)
	if xIsStr && yIsStr {
		return textSimilarity(sx, sy)
	}

	return 0.0
}

// mapSimilarity recurses over the union of sub-keys, averaging per-key
// similarity and crediting one-sided presence.
func mapSimilarity(x, y map[string]any) float64 {
	keys := unionKeys(x, y)
	if len(keys) == 0 {
		return 1.0
	}

	var total float64
	for _, key := range keys {
		vx, inX := x[key]
		vy, inY := y[key]
		if inX && inY {
			total += similarity(vx, vy)
		} else {
			total += unmatchedPresenceCredit
		}
	}
	return total / float64(len(keys))
}

// textSimilarity is the Jaccard similarity of case-folded whitespace
// tokens. At zero overlap, substring containment over token pairs of
// length >= 3 contributes a weaker secondary signal.
func textSimilarity(x, y string) float64 {
	tx := tokenize(x)
	ty := tokenize(y)
	if len(tx) == 0 && len(ty) == 0 {
		return 1.0
	}
	if len(tx) == 0 || len(ty) == 0 {
		return 0.0
	}

	intersection := 0
	for token := range tx {
		if _, ok := ty[token]; ok {
			intersection++
		}
	}
	union := len(tx) + len(ty) - intersection
	jaccard := float64(intersection) / float64(union)
	if jaccard > 0 {
		return jaccard
	}

	totalPairs := 0
	matchingPairs := 0
	for a := range tx {
		for b := range ty {
			if len(a) < 3 || len(b) < 3 {
				continue
			}
			totalPairs++
			if strings.Contains(a, b) || strings.Contains(b, a) {
				matchingPairs++
			}
		}
	}
	if totalPairs == 0 {
		return 0.0
	}
	return unmatchedPresenceCredit * float64(matchingPairs) / float64(totalPairs)
}

func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, token := range strings.Fields(strings.ToLower(s)) {
		tokens[token] = struct{}{}
	}
	return tokens
}

func equalValues(x, y any) bool {
	return reflect.DeepEqual(x, y)
}

func unionKeys(maps ...map[string]any) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, m := range maps {
		for key := range m {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
