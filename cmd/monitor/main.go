package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/gesa-research/pald-backend/internal/adapters/events"
	"github.com/gesa-research/pald-backend/internal/domain/entities"
	"github.com/gesa-research/pald-backend/internal/domain/providers"
	"github.com/gesa-research/pald-backend/internal/infrastructure/clients/redis"
	"github.com/gesa-research/pald-backend/internal/infrastructure/observability"
	"github.com/gesa-research/pald-backend/pkg/config"
)

// Tails job lifecycle events off the bus, mainly to watch for jobs landing
// in the dead letter queue.
func main() {
	var sessionID string
	flag.StringVar(&sessionID, "session", "", "watch a single study session instead of the global stream")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	env := os.Getenv("ENV")
	if env == "" {
		env = "production"
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-monitor", env)

	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Redis client")
	}
	defer redisClient.Close()

	bus := events.NewRedisEventBus(redisClient)
	defer bus.Close()

	channel := providers.EventChannelJobUpdates
	if sessionID != "" {
		channel = providers.GetSessionChannel(sessionID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventCh, err := bus.Subscribe(ctx, channel)
	if err != nil {
		log.Fatal().Err(err).Str("channel", channel).Msg("Failed to subscribe")
	}
	defer func() {
		if err := bus.Unsubscribe(context.Background(), channel); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("Unsubscribe failed")
		}
	}()

	log.Info().Str("channel", channel).Msg("Watching job events")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Monitor shutting down")
			return
		case event, open := <-eventCh:
			if !open {
				log.Info().Msg("Event stream closed")
				return
			}
			logEvent(event)
		}
	}
}

func logEvent(event *entities.JobEvent) {
	entry := log.Info()
	if event.Type == entities.JobEventDLQ {
		entry = log.Warn()
	}
	entry.
		Stringer("job_id", event.JobID).
		Str("session_id", event.SessionID).
		Str("type", string(event.Type)).
		Str("status", string(event.Status)).
		Time("occurred_at", event.OccurredAt).
		Msg("Job event")
}
