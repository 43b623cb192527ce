package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gesa-research/pald-backend/internal/adapters/analysis"
	"github.com/gesa-research/pald-backend/internal/adapters/database"
	"github.com/gesa-research/pald-backend/internal/adapters/events"
	"github.com/gesa-research/pald-backend/internal/application/services"
	"github.com/gesa-research/pald-backend/internal/domain/providers"
	"github.com/gesa-research/pald-backend/internal/infrastructure/clients/postgres"
	"github.com/gesa-research/pald-backend/internal/infrastructure/clients/redis"
	"github.com/gesa-research/pald-backend/internal/infrastructure/observability"
	"github.com/gesa-research/pald-backend/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize structured logging
	env := os.Getenv("ENV")
	if env == "" {
		env = "production"
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-worker", env)

	log.Info().
		Str("service", cfg.OTEL.ServiceName+"-worker").
		Str("version", cfg.OTEL.ServiceVersion).
		Str("env", env).
		Msg("Starting bias analysis worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(
			ctx,
			cfg.OTEL.ServiceName+"-worker",
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized successfully")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize metrics")
	}

	// Initialize database client
	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()
	log.Info().Msg("PostgreSQL client initialized successfully")

	// Redis is optional; without it job events are simply not broadcast.
	var eventBus providers.JobEventBus
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis client, job events disabled")
	} else {
		defer redisClient.Close()
		eventBus = events.NewRedisEventBus(redisClient)
		defer eventBus.Close()
		log.Info().Msg("Redis event bus initialized successfully")
	}

	jobRepo := database.NewBiasJobAdapter(pgClient)
	detector := analysis.NewKeywordDetector()

	worker := services.NewBiasWorkerService(
		jobRepo,
		detector,
		eventBus,
		metrics,
		cfg.BiasWorker.BatchSize,
		cfg.BiasWorker.MaxConcurrent,
		cfg.BiasWorker.PollInterval,
	)

	log.Info().
		Int("batch_size", cfg.BiasWorker.BatchSize).
		Int("max_concurrent", cfg.BiasWorker.MaxConcurrent).
		Dur("poll_interval", cfg.BiasWorker.PollInterval).
		Msg("Worker loop starting")

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Worker loop terminated")
	}
	log.Info().Msg("Worker shutting down")
}
