package services

import (
	"fmt"

	"github.com/gesa-research/pald-backend/internal/domain/entities"
	"github.com/gesa-research/pald-backend/internal/domain/providers"
)

// PALDBoundaryService enforces which attribute categories may enter a PALD
// payload. Unknown top-level keys are dropped and reported; the payload
// stays usable as long as at least one permitted key survives.
type PALDBoundaryService struct {
	allowed map[string]struct{}
}

var _ providers.BoundaryValidator = (*PALDBoundaryService)(nil)

// NewPALDBoundaryService creates a validator over the standard PALD schema
// keys plus the escape list.
func NewPALDBoundaryService() *PALDBoundaryService {
	allowed := make(map[string]struct{}, len(entities.PALDLevelKeys)+1)
	for _, key := range entities.PALDLevelKeys {
		allowed[key] = struct{}{}
	}
	allowed[entities.PALDKeyElementsNotInSchema] = struct{}{}
	return &PALDBoundaryService{allowed: allowed}
}

// Validate filters raw down to the permitted keys. Level keys must hold
// nested mappings; the escape key may hold anything.
func (s *PALDBoundaryService) Validate(raw map[string]any) *entities.ValidationResult {
	result := &entities.ValidationResult{
		FilteredData: make(map[string]any, len(raw)),
	}

	for key, value := range raw {
		if _, ok := s.allowed[key]; !ok {
			result.ValidationErrors = append(result.ValidationErrors,
				fmt.Sprintf("attribute category %q is not part of the PALD schema", key))
			continue
		}

		if key != entities.PALDKeyElementsNotInSchema {
			if _, isMap := value.(map[string]any); !isMap {
				result.ValidationErrors = append(result.ValidationErrors,
					fmt.Sprintf("level %q must contain nested attributes", key))
				continue
			}
		}

		result.FilteredData[key] = value
	}

	result.IsValid = len(result.FilteredData) > 0 || len(raw) == 0
	return result
}
