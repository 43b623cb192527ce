package cache

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/gesa-research/pald-backend/internal/domain/entities"
	"github.com/gesa-research/pald-backend/internal/domain/providers"
	redisclient "github.com/gesa-research/pald-backend/internal/infrastructure/clients/redis"
)

// Default lifetime of a cached extraction. Extraction is deterministic at
// fixed decoding parameters, so a long TTL is safe.
const extractionTTL = 24 * time.Hour

// RedisExtractionCache shares extraction results across processes.
type RedisExtractionCache struct {
	client *redisclient.Client
	ttl    time.Duration
}

var _ providers.ExtractionCache = (*RedisExtractionCache)(nil)

// NewRedisExtractionCache creates a Redis-backed extraction cache.
func NewRedisExtractionCache(client *redisclient.Client) *RedisExtractionCache {
	return &RedisExtractionCache{client: client, ttl: extractionTTL}
}

// Get returns the cached result for key, if present.
func (c *RedisExtractionCache) Get(ctx context.Context, key string) (*entities.PALDExtractionResult, bool) {
	data, err := c.client.Client().Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("extraction cache read failed")
		return nil, false
	}

	var result entities.PALDExtractionResult
	if err := json.Unmarshal(data, &result); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		return nil, false
	}
	return &result, true
}

// Set stores result under key, replacing any previous entry. Failures are
// logged and swallowed; a missed write only costs a future re-extraction.
func (c *RedisExtractionCache) Set(ctx context.Context, key string, result *entities.PALDExtractionResult) {
	data, err := json.Marshal(result)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to encode extraction result")
		return
	}
	if err := c.client.Client().Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("extraction cache write failed")
	}
}
