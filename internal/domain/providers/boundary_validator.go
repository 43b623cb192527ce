package providers

import "github.com/gesa-research/pald-backend/internal/domain/entities"

// BoundaryValidator enforces which attribute categories may appear in a
// PALD payload. The policy itself is owned elsewhere; the extractor only
// consumes the filtered result.
type BoundaryValidator interface {
	Validate(raw map[string]any) *entities.ValidationResult
}
