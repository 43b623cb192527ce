package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pald_platform", cfg.Database.Database)
	assert.Equal(t, 0.7, cfg.PALD.ConsistencyThreshold)
	assert.Equal(t, 3, cfg.PALD.MaxFeedbackRounds)
	assert.Equal(t, 512, cfg.PALD.CacheCapacity)
	assert.Equal(t, 20, cfg.BiasWorker.BatchSize)
	assert.Equal(t, 4, cfg.BiasWorker.MaxConcurrent)
	assert.Equal(t, 3, cfg.BiasWorker.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.BiasWorker.PollInterval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PALD_CONSISTENCY_THRESHOLD", "0.85")
	t.Setenv("BIAS_MAX_CONCURRENT", "8")
	t.Setenv("BIAS_POLL_INTERVAL", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.85, cfg.PALD.ConsistencyThreshold)
	assert.Equal(t, 8, cfg.BiasWorker.MaxConcurrent)
	assert.Equal(t, 5*time.Second, cfg.BiasWorker.PollInterval)
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv("PALD_CONSISTENCY_THRESHOLD", "not-a-number")
	t.Setenv("BIAS_BATCH_SIZE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.PALD.ConsistencyThreshold)
	assert.Equal(t, 20, cfg.BiasWorker.BatchSize)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "db", Port: 5433, User: "u", Password: "p",
		Database: "pald", SSLMode: "require",
	}
	assert.Equal(t,
		"host=db port=5433 user=u password=p dbname=pald sslmode=require",
		cfg.DatabaseDSN(),
	)
}
