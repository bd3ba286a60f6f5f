package rating

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"mwocomp/ingestion/internal/metrics"
	"mwocomp/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	// StartingRating seeds every player the first time they appear in the
	// replay.
	StartingRating = 1500

	kFactor    = 32
	ratingBase = 400
)

// Store is the slice of the match store the engine needs: the canonical
// ordered read and the bulk keyed write-back.
type Store interface {
	ReadAll(ctx context.Context) ([]models.MatchRecord, error)
	UpdateRatings(ctx context.Context, updates []models.RatingUpdate) error
}

// Engine recomputes every player's rating trajectory by replaying the full
// match history in chronological order. Each run starts from scratch; the
// in-memory rating state is discarded once the pass has been written back.
type Engine struct {
	store Store
}

// NewEngine creates a rating engine over the given store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Recompute runs one full deterministic pass and writes every row's
// (rating, rating_change) pair back in a single bulk update.
func (e *Engine) Recompute(ctx context.Context) error {
	start := time.Now()

	records, err := e.store.ReadAll(ctx)
	if err != nil {
		metrics.RecordRecompute("error", time.Since(start).Seconds())
		return fmt.Errorf("reading match records: %w", err)
	}

	updates := Replay(records)

	if err := e.store.UpdateRatings(ctx, updates); err != nil {
		metrics.RecordRecompute("error", time.Since(start).Seconds())
		return fmt.Errorf("writing rating updates: %w", err)
	}

	metrics.RecordRecompute("success", time.Since(start).Seconds())
	log.Info().
		Int("records", len(records)).
		Int("updates", len(updates)).
		Dur("duration", time.Since(start)).
		Msg("Rating recompute complete")

	return nil
}

// Replay is the pure replay pass: it consumes records in the store's
// canonical order and produces one keyed update per row. Matches are
// replayed in completion-time order even if the input interleaves
// backfilled history out of order.
func Replay(records []models.MatchRecord) []models.RatingUpdate {
	groups := groupByMatch(records)

	// The canonical read order is assumed chronological, but backfilled
	// matches can break that assumption. Sort explicitly; the stable sort
	// keeps the store order for equal timestamps.
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i][0].CompleteTime < groups[j][0].CompleteTime
	})

	ratings := make(map[string]int)
	ratingOf := func(player string) int {
		if r, ok := ratings[player]; ok {
			return r
		}
		ratings[player] = StartingRating
		return StartingRating
	}

	var updates []models.RatingUpdate
	for _, group := range groups {
		// Team averages are taken before any update from this match, so
		// every row in the match sees the same pre-match opposition.
		teamAverages := averageByTeam(group, ratingOf)

		for _, row := range group {
			own := ratingOf(row.Username)

			opponentAvg, ok := teamAverages[row.OpponentTeam()]
			if !ok {
				// No rows for the opposing side; cannot happen through the
				// normalizer, but a hand-edited store should not panic.
				opponentAvg = StartingRating
			}

			change := Change(own, opponentAvg, row.MatchResult)
			newRating := own + change
			ratings[row.Username] = newRating

			updates = append(updates, models.RatingUpdate{
				MatchID:     row.MatchID,
				Team:        row.Team,
				Username:    row.Username,
				MatchResult: row.MatchResult,
				Rating:      newRating,
				Change:      change,
			})
		}
	}

	return updates
}

// Change computes one player's signed rating delta against the opposing
// team's average: logistic expectation with base 400, K=32, rounded to the
// nearest integer, positive for a win and negative for a loss.
func Change(own, opponentAvg int, result models.MatchResult) int {
	var diff, sign int
	if result == models.ResultWin {
		diff = opponentAvg - own
		sign = 1
	} else {
		diff = own - opponentAvg
		sign = -1
	}

	expected := 1 / (1 + math.Pow(10, float64(diff)/ratingBase))
	return sign * int(math.Round(kFactor*(1-expected)))
}

// groupByMatch groups rows by match ID in first-seen order. Grouping by key
// rather than adjacency matters: the canonical read order has no match_id
// tiebreak, so two matches completing in the same second interleave their
// rows.
func groupByMatch(records []models.MatchRecord) [][]models.MatchRecord {
	index := make(map[int64]int)
	var groups [][]models.MatchRecord
	for _, rec := range records {
		i, ok := index[rec.MatchID]
		if !ok {
			i = len(groups)
			index[rec.MatchID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], rec)
	}
	return groups
}

// averageByTeam computes each side's integer average rating, flooring the
// division the way the stored history always has.
func averageByTeam(group []models.MatchRecord, ratingOf func(string) int) map[string]int {
	sums := make(map[string]int)
	counts := make(map[string]int)
	for _, row := range group {
		sums[row.Team] += ratingOf(row.Username)
		counts[row.Team]++
	}

	averages := make(map[string]int, len(sums))
	for team, sum := range sums {
		averages[team] = floorDiv(sum, counts[team])
	}
	return averages
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
