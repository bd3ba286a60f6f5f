package batch

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"mwocomp/ingestion/internal/metrics"
	"mwocomp/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// InputError is a malformed match-ID token; the token is skipped and the
// batch continues.
type InputError struct {
	Token string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("incorrect match id: %s", e.Token)
}

// Failure reports one rejected token or match.
type Failure struct {
	Token   string
	MatchID int64
	Err     error
}

// Report summarizes one batch run: accepted match IDs plus structured
// per-match failures for the caller to display. Failed matches are simply
// absent from the store and can be resubmitted.
type Report struct {
	Accepted []int64
	Skipped  []int64
	Failures []Failure
}

// Fetcher issues the external per-match fetch.
type Fetcher interface {
	FetchMatch(ctx context.Context, matchID int64) (*models.MatchResponse, error)
}

// Normalizer converts a raw payload into the match's record set.
type Normalizer interface {
	Normalize(ctx context.Context, matchID int64, resp *models.MatchResponse, tournament string) ([]models.MatchRecord, error)
}

// Store is the slice of the match store the runner needs.
type Store interface {
	DistinctMatchIDs(ctx context.Context) (map[int64]struct{}, error)
	AppendMatch(ctx context.Context, records []models.MatchRecord) error
}

// Runner orchestrates fetch, normalize and store for a list of requested
// match IDs. Strictly sequential: the upstream quota of 60 requests per
// minute is honored with a fixed pause after every fetch attempt.
type Runner struct {
	fetcher    Fetcher
	normalizer Normalizer
	store      Store
	delay      time.Duration

	// pause is replaceable in tests; the default waits delay or until the
	// context is cancelled.
	pause func(ctx context.Context)
}

// NewRunner creates a batch runner with the given inter-request delay.
func NewRunner(fetcher Fetcher, normalizer Normalizer, store Store, delay time.Duration) *Runner {
	r := &Runner{
		fetcher:    fetcher,
		normalizer: normalizer,
		store:      store,
		delay:      delay,
	}
	r.pause = r.defaultPause
	return r
}

func (r *Runner) defaultPause(ctx context.Context) {
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
	}
}

var matchIDPattern = regexp.MustCompile(`\d{6,}`)

// ExtractMatchIDs pulls match-ID tokens (runs of 6+ digits) out of a
// free-form block of text. Everything else is ignored.
func ExtractMatchIDs(text string) []string {
	return matchIDPattern.FindAllString(text, -1)
}

// parseToken converts one raw token to a match ID, tolerating thousands
// separators and surrounding whitespace.
func parseToken(token string) (int64, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(token, ",", ""))
	id, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil || id <= 0 {
		return 0, &InputError{Token: token}
	}
	return id, nil
}

// Ingest runs one batch over the given raw tokens. Duplicate tokens are
// dropped (first occurrence wins), IDs already present in the store are
// skipped, and every error is per-match: the batch always attempts every
// remaining ID and never retries a failed one.
func (r *Runner) Ingest(ctx context.Context, tokens []string, tournament string) (*Report, error) {
	report := &Report{}

	seen := make(map[string]struct{}, len(tokens))
	var ids []int64
	for _, token := range tokens {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}

		id, err := parseToken(token)
		if err != nil {
			log.Warn().Str("token", token).Msg("Malformed match id token")
			metrics.RecordIngestFailure("input")
			report.Failures = append(report.Failures, Failure{Token: token, Err: err})
			continue
		}
		ids = append(ids, id)
	}

	existing, err := r.store.DistinctMatchIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading existing match ids: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if _, ok := existing[id]; ok {
			log.Debug().Int64("match_id", id).Msg("Match already ingested, skipping")
			report.Skipped = append(report.Skipped, id)
			continue
		}

		stored, err := r.ingestOne(ctx, id, tournament)
		if err != nil {
			log.Error().Err(err).Int64("match_id", id).Msg("Match rejected")
			report.Failures = append(report.Failures, Failure{MatchID: id, Err: err})
			continue
		}

		// Guards against a re-fetch if the same ID somehow reappears later
		// in this batch.
		existing[id] = struct{}{}
		if stored == 0 {
			// All participants were spectators or mechless; nothing to keep.
			log.Warn().Int64("match_id", id).Msg("Match has no eligible participants")
			report.Skipped = append(report.Skipped, id)
			continue
		}
		report.Accepted = append(report.Accepted, id)
	}

	log.Info().
		Str("tournament", tournament).
		Int("accepted", len(report.Accepted)).
		Int("skipped", len(report.Skipped)).
		Int("failed", len(report.Failures)).
		Msg("Batch ingest complete")

	return report, nil
}

// ingestOne fetches, normalizes and appends a single match, returning the
// number of rows stored. The pause after the fetch runs whether the fetch
// succeeded or not.
func (r *Runner) ingestOne(ctx context.Context, id int64, tournament string) (int, error) {
	payload, fetchErr := r.fetcher.FetchMatch(ctx, id)
	r.pause(ctx)
	if fetchErr != nil {
		metrics.RecordIngestFailure("transport")
		return 0, fetchErr
	}

	records, err := r.normalizer.Normalize(ctx, id, payload, tournament)
	if err != nil {
		metrics.RecordIngestFailure("resolution")
		return 0, err
	}

	if len(records) == 0 {
		return 0, nil
	}

	if err := r.store.AppendMatch(ctx, records); err != nil {
		metrics.RecordIngestFailure("store")
		return 0, err
	}

	metrics.RecordIngest(len(records))
	return len(records), nil
}
