// Command ingest submits a batch of match IDs from the command line or
// stdin. Tokens may carry commas and surrounding noise; anything that looks
// like a match ID is extracted and processed in order of first appearance.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"mwocomp/ingestion/internal/batch"
	"mwocomp/ingestion/internal/cache"
	"mwocomp/ingestion/internal/client"
	"mwocomp/ingestion/internal/config"
	"mwocomp/ingestion/internal/datasource"
	"mwocomp/ingestion/internal/normalizer"
	"mwocomp/ingestion/internal/repository"

	"github.com/rs/zerolog/log"
)

func main() {
	tournament := flag.String("tournament", "", "tournament whose rosters the pilots are matched against")
	flag.Parse()

	if *tournament == "" {
		log.Fatal().Msg("-tournament is required")
	}

	ctx := context.Background()
	cfg := config.MustLoad()

	tokens := flag.Args()
	if len(tokens) == 0 {
		tokens = readTokens(os.Stdin)
	}
	if len(tokens) == 0 {
		log.Fatal().Msg("No match IDs given on the command line or stdin")
	}

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

	if err := db.Matches.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize schema")
	}

	redisCache, err := cache.NewRedisCache(ctx, cache.Config{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to Redis - continuing without cache")
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	apiClient := client.NewClient(cfg.MatchAPIURL, cfg.MatchAPIKey, cfg.MechListURL, cfg.MatchAPITimeout)
	resolver := datasource.NewResolver(datasource.Options{
		MechDataURL:    cfg.MechDataURL,
		RosterIndexURL: cfg.RosterIndexURL,
		TTL:            cfg.CacheTTL,
		Redis:          redisCache,
	})
	runner := batch.NewRunner(apiClient, normalizer.New(resolver), db.Matches, cfg.FetchDelay)

	report, err := runner.Ingest(ctx, tokens, *tournament)
	if err != nil {
		log.Fatal().Err(err).Msg("Batch run failed")
	}

	for _, f := range report.Failures {
		if f.Token != "" {
			log.Error().Str("token", f.Token).Err(f.Err).Msg("Token rejected")
		} else {
			log.Error().Int64("match_id", f.MatchID).Err(f.Err).Msg("Match failed")
		}
	}

	log.Info().
		Int("accepted", len(report.Accepted)).
		Int("skipped", len(report.Skipped)).
		Int("failed", len(report.Failures)).
		Msg("Batch run complete")

	if len(report.Failures) > 0 {
		os.Exit(1)
	}
}

// readTokens splits stdin into whitespace-separated tokens, one batch across
// all lines. Malformed tokens are kept so they surface as per-token failures.
func readTokens(f *os.File) []string {
	var tokens []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tokens = append(tokens, strings.Fields(scanner.Text())...)
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("Reading stdin failed")
	}
	return tokens
}
