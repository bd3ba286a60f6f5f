package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"mwocomp/ingestion/internal/batch"
	"mwocomp/ingestion/internal/cache"
	"mwocomp/ingestion/internal/client"
	"mwocomp/ingestion/internal/config"
	"mwocomp/ingestion/internal/datasource"
	"mwocomp/ingestion/internal/metrics"
	"mwocomp/ingestion/internal/normalizer"
	"mwocomp/ingestion/internal/rating"
	"mwocomp/ingestion/internal/repository"
	"mwocomp/ingestion/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Setup logger
	setupLogger()

	log.Info().Msg("Starting MWO Comp Ingestion Worker")

	// Load configuration
	cfg := config.MustLoad()
	log.Info().
		Str("env", cfg.AppEnv).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	// Create context that listens for cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, gracefully shutting down...")
		cancel()
	}()

	// Initialize match API client
	apiClient := client.NewClient(
		cfg.MatchAPIURL,
		cfg.MatchAPIKey,
		cfg.MechListURL,
		cfg.MatchAPITimeout,
	)
	log.Info().Msg("Match API client initialized")

	// Initialize database connection
	dbConfig := repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	}

	db, err := repository.NewDatabase(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	if err := db.Matches.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize schema")
	}
	log.Info().Msg("Schema ready")

	// Initialize Redis client
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
		log.Info().Msg("Redis cache connected")
	}

	// Wire the pipeline
	resolver := datasource.NewResolver(datasource.Options{
		MechDataURL:    cfg.MechDataURL,
		RosterIndexURL: cfg.RosterIndexURL,
		TTL:            cfg.CacheTTL,
		Redis:          redisCache,
	})
	norm := normalizer.New(resolver)
	runner := batch.NewRunner(apiClient, norm, db.Matches, cfg.FetchDelay)
	engine := rating.NewEngine(db.Matches)

	// The match store is single-writer. Ingest and recompute triggers, plus
	// the scheduled recompute, all serialize on this lock.
	var writeMu sync.Mutex

	// Start metrics HTTP server
	go startMetricsServer(cfg.MetricsPort, db)

	// Update system uptime metric
	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.SystemUptime.Set(time.Since(startTime).Seconds())
			case <-ctx.Done():
				return
			}
		}
	}()

	// Create and start scheduler
	sched := scheduler.NewScheduler(cfg, apiClient, resolver, engine, &writeMu)

	if cfg.EnableScheduler {
		log.Info().Msg("Starting scheduler...")
		if err := sched.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduler")
		}
	}

	// Start trigger API server
	srv := newTriggerServer(cfg, runner, engine, resolver, db, &writeMu)
	go func() {
		log.Info().Int("port", cfg.WorkerPort).Msg("Starting trigger API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Trigger API server failed")
			cancel()
		}
	}()

	// Keep running until context is cancelled
	<-ctx.Done()

	// Graceful shutdown
	log.Info().Msg("Shutting down scheduler...")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Trigger API server shutdown failed")
	}

	log.Info().Msg("Worker shutdown complete")
}

// setupLogger configures the zerolog logger
func setupLogger() {
	// Pretty console logging in development
	if os.Getenv("APP_ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	// Set log level
	level := zerolog.InfoLevel
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		parsedLevel, err := zerolog.ParseLevel(lvl)
		if err == nil {
			level = parsedLevel
		}
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}

type ingestRequest struct {
	Text       string `json:"text"`
	Tournament string `json:"tournament"`
}

type failureResponse struct {
	Token   string `json:"token,omitempty"`
	MatchID int64  `json:"match_id,omitempty"`
	Error   string `json:"error"`
}

type ingestResponse struct {
	Accepted []int64           `json:"accepted"`
	Skipped  []int64           `json:"skipped"`
	Failures []failureResponse `json:"failures"`
}

// newTriggerServer builds the worker's operator-facing API: submit a batch,
// force a recompute, inspect the stored match data.
func newTriggerServer(cfg *config.Config, runner *batch.Runner, engine *rating.Engine, resolver *datasource.Resolver, db *repository.Database, writeMu *sync.Mutex) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/ingest", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		tokens := batch.ExtractMatchIDs(req.Text)
		if len(tokens) == 0 {
			http.Error(w, "no match ids found in text", http.StatusBadRequest)
			return
		}

		if !writeMu.TryLock() {
			http.Error(w, "another ingest or recompute is in progress", http.StatusConflict)
			return
		}
		defer writeMu.Unlock()

		report, err := runner.Ingest(r.Context(), tokens, req.Tournament)
		if err != nil {
			log.Error().Err(err).Msg("Ingest failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		resp := ingestResponse{
			Accepted: report.Accepted,
			Skipped:  report.Skipped,
			Failures: make([]failureResponse, 0, len(report.Failures)),
		}
		for _, f := range report.Failures {
			resp.Failures = append(resp.Failures, failureResponse{
				Token:   f.Token,
				MatchID: f.MatchID,
				Error:   f.Err.Error(),
			})
		}

		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/recompute", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if !writeMu.TryLock() {
			http.Error(w, "another ingest or recompute is in progress", http.StatusConflict)
			return
		}
		defer writeMu.Unlock()

		if err := engine.Recompute(r.Context()); err != nil {
			log.Error().Err(err).Msg("Recompute failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/matches", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		records, err := db.Matches.ReadAll(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Reading match data failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, records)
	})

	mux.HandleFunc("/tournaments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		writeJSON(w, http.StatusOK, resolver.Tournaments(r.Context()))
	})

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// startMetricsServer starts the Prometheus metrics HTTP server
func startMetricsServer(port int, db *repository.Database) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	addr := fmt.Sprintf(":%d", port)
	log.Info().Int("port", port).Msg("Starting metrics server")

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}
