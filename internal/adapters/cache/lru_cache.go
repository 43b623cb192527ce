package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/gesa-research/pald-backend/internal/domain/entities"
	"github.com/gesa-research/pald-backend/internal/domain/providers"
)

// LRUExtractionCache is a bounded in-process extraction cache. It replaces
// the unbounded ambient map the original extractor grew without eviction.
type LRUExtractionCache struct {
	entries *lru.Cache[string, *entities.PALDExtractionResult]
}

var _ providers.ExtractionCache = (*LRUExtractionCache)(nil)

// NewLRUExtractionCache creates a cache holding at most capacity entries.
func NewLRUExtractionCache(capacity int) (*LRUExtractionCache, error) {
	if capacity <= 0 {
		capacity = 512
	}
	entries, err := lru.New[string, *entities.PALDExtractionResult](capacity)
	if err != nil {
		return nil, err
	}
	return &LRUExtractionCache{entries: entries}, nil
}

// Get returns the cached result for key, if present. The result is a copy;
// callers may mutate its PALD map without poisoning the cached entry.
func (c *LRUExtractionCache) Get(_ context.Context, key string) (*entities.PALDExtractionResult, bool) {
	result, found := c.entries.Get(key)
	if !found {
		return nil, false
	}
	return result.Clone(), true
}

// Set stores a copy of result under key, replacing any previous entry.
func (c *LRUExtractionCache) Set(_ context.Context, key string, result *entities.PALDExtractionResult) {
	c.entries.Add(key, result.Clone())
}

// Len returns the number of cached entries.
func (c *LRUExtractionCache) Len() int {
	return c.entries.Len()
}
