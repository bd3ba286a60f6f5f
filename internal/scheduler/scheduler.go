package scheduler

import (
	"context"
	"fmt"
	"sync"

	"mwocomp/ingestion/internal/client"
	"mwocomp/ingestion/internal/config"
	"mwocomp/ingestion/internal/datasource"
	"mwocomp/ingestion/internal/rating"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler manages background tasks for the worker:
// - nightly full rating recompute
// - nightly check of the public mech dictionary against the catalog
// The match store is single-writer, so the recompute job shares the worker's
// write lock with the HTTP trigger surface.
type Scheduler struct {
	cfg      *config.Config
	client   *client.Client
	resolver *datasource.Resolver
	engine   *rating.Engine
	writeMu  *sync.Mutex
	cron     *cron.Cron
}

// NewScheduler creates a new scheduler instance. writeMu is the worker's
// single-writer guard.
func NewScheduler(cfg *config.Config, apiClient *client.Client, resolver *datasource.Resolver, engine *rating.Engine, writeMu *sync.Mutex) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		client:   apiClient,
		resolver: resolver,
		engine:   engine,
		writeMu:  writeMu,
		cron:     cron.New(),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info().Msg("Scheduler starting...")

	if _, err := s.cron.AddFunc(s.cfg.RecomputeCron, func() {
		log.Info().Msg("Running scheduled rating recompute...")
		if err := s.runRecompute(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduled rating recompute failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule rating recompute: %w", err)
	}

	if _, err := s.cron.AddFunc(s.cfg.MechCheckCron, func() {
		log.Info().Msg("Running new mech check...")
		if err := s.checkNewMechs(ctx); err != nil {
			log.Error().Err(err).Msg("New mech check failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule new mech check: %w", err)
	}

	s.cron.Start()
	log.Info().
		Str("recompute", s.cfg.RecomputeCron).
		Str("mech_check", s.cfg.MechCheckCron).
		Msg("Scheduled jobs registered")

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping scheduler...")

	if s.cron != nil {
		s.cron.Stop()
	}

	log.Info().Msg("Scheduler stopped")
}

// runRecompute takes the single-writer lock and replays the full history.
func (s *Scheduler) runRecompute(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.engine.Recompute(ctx)
}

// checkNewMechs reports dictionary entries the reference catalog does not
// know about yet, so an operator can extend the catalog before a match with
// one of them is submitted.
func (s *Scheduler) checkNewMechs(ctx context.Context) error {
	dictionary, err := s.client.FetchMechList(ctx)
	if err != nil {
		return fmt.Errorf("fetching mech dictionary: %w", err)
	}

	missing := s.resolver.NewMechs(ctx, dictionary)
	if len(missing) == 0 {
		log.Info().Msg("No new mechs found")
		return nil
	}

	for id, name := range missing {
		log.Warn().
			Int64("item_id", id).
			Str("mech", name).
			Msg("Mech missing from catalog")
	}
	log.Warn().Int("count", len(missing)).Msg("New mechs found, catalog needs updating")

	return nil
}
