package cache

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const extractionKeyPrefix = "pald:extract:"

// ExtractionKey derives a stable content key for an extraction input. The
// text is whitespace-trimmed so incidental padding does not defeat the
// cache; the digest is deterministic across processes, unlike Go's map
// hashing.
func ExtractionKey(text string) string {
	normalized := strings.TrimSpace(text)
	return fmt.Sprintf("%s%016x", extractionKeyPrefix, xxhash.Sum64String(normalized))
}
