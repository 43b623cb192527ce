package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gesa-research/pald-backend/internal/adapters/database"
	"github.com/gesa-research/pald-backend/internal/application/services"
	"github.com/gesa-research/pald-backend/internal/infrastructure/clients/postgres"
	"github.com/gesa-research/pald-backend/internal/infrastructure/observability"
	"github.com/gesa-research/pald-backend/pkg/config"
)

func main() {
	var sessionID string
	var paldFile string
	var typesFlag string
	var priority int
	flag.StringVar(&sessionID, "session", "", "study session id the PALD belongs to")
	flag.StringVar(&paldFile, "pald", "", "path to a JSON file with the PALD payload (defaults to stdin)")
	flag.StringVar(&typesFlag, "types", "age,gender,gender_conformity,ethnicity,occupational_stereotype", "comma-separated analysis types")
	flag.IntVar(&priority, "priority", 100, "job priority, lower runs first")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	env := os.Getenv("ENV")
	if env == "" {
		env = "production"
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-enqueue", env)

	if sessionID == "" {
		log.Fatal().Msg("-session is required")
	}

	paldData, err := readPALD(paldFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read PALD payload")
	}

	analysisTypes := splitTypes(typesFlag)
	if len(analysisTypes) == 0 {
		log.Fatal().Msg("-types must name at least one analysis type")
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	producer := services.NewBiasEnqueueService(database.NewBiasJobAdapter(pgClient), cfg.BiasWorker.MaxRetries)
	job, err := producer.Enqueue(ctx, sessionID, paldData, analysisTypes, priority)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to enqueue job")
	}

	log.Info().
		Stringer("job_id", job.ID).
		Str("session_id", job.SessionID).
		Strs("analysis_types", job.AnalysisTypes).
		Int("priority", job.Priority).
		Msg("Bias analysis job enqueued")
}

func readPALD(path string) (map[string]any, error) {
	var raw []byte
	var err error
	if path == "" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	var paldData map[string]any
	if err := json.Unmarshal(raw, &paldData); err != nil {
		return nil, err
	}
	return paldData, nil
}

func splitTypes(flagValue string) []string {
	var types []string
	for _, item := range strings.Split(flagValue, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			types = append(types, trimmed)
		}
	}
	return types
}
