package providers

import (
	"context"

	"github.com/gesa-research/pald-backend/internal/domain/entities"
)

// ExtractionCache memoizes extraction results by content-derived key.
// Implementations may evict; a miss simply re-runs the extraction. Entries
// are whole-value overwrites, never merged, so concurrent population of
// the same key is benign.
type ExtractionCache interface {
	// Get returns the cached result for key, if present. The returned
	// value is owned by the caller; mutating it must not corrupt the
	// stored entry.
	Get(ctx context.Context, key string) (*entities.PALDExtractionResult, bool)

	// Set stores result under key, replacing any previous entry.
	Set(ctx context.Context, key string, result *entities.PALDExtractionResult)
}
