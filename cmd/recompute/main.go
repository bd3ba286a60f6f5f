// Command recompute replays the full stored match history and rewrites the
// rating columns. Manual-only: runs once and exits. The nightly scheduled
// recompute in the worker covers routine refreshes.
package main

import (
	"context"
	"fmt"
	"time"

	"mwocomp/ingestion/internal/config"
	"mwocomp/ingestion/internal/rating"
	"mwocomp/ingestion/internal/repository"

	"github.com/rs/zerolog/log"
)

func main() {
	ctx := context.Background()
	cfg := config.MustLoad()

	db, err := repository.NewDatabase(ctx, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     fmt.Sprintf("%d", cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	log.Info().Msg("Validating service health...")
	if err := db.Health(ctx); err != nil {
		log.Fatal().Err(err).Msg("Database health check failed")
	}

	if err := db.Matches.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize schema")
	}

	start := time.Now()
	engine := rating.NewEngine(db.Matches)
	if err := engine.Recompute(ctx); err != nil {
		log.Fatal().Err(err).Msg("Recompute failed")
	}

	log.Info().Dur("duration", time.Since(start)).Msg("Recompute complete")
}
