package rating

import (
	"context"
	"errors"
	"testing"

	"mwocomp/ingestion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(matchID int64, completeTime, team, username string, result models.MatchResult) models.MatchRecord {
	return models.MatchRecord{
		MatchID:      matchID,
		CompleteTime: completeTime,
		Team:         team,
		Username:     username,
		MatchResult:  result,
	}
}

// twoPlayerMatch builds a minimal 1v1 match where team 1 wins.
func twoPlayerMatch(matchID int64, completeTime, winner, loser string) []models.MatchRecord {
	return []models.MatchRecord{
		record(matchID, completeTime, "1", winner, models.ResultWin),
		record(matchID, completeTime, "2", loser, models.ResultLoss),
	}
}

func updatesByKey(updates []models.RatingUpdate) map[string]models.RatingUpdate {
	byKey := make(map[string]models.RatingUpdate, len(updates))
	for _, u := range updates {
		byKey[u.Username] = u
	}
	return byKey
}

func TestChange_EvenMatch(t *testing.T) {
	// Two fresh players are an even match: half the K factor each way.
	assert.Equal(t, 16, Change(1500, 1500, models.ResultWin))
	assert.Equal(t, -16, Change(1500, 1500, models.ResultLoss))
}

func TestChange_FavoriteAndUnderdog(t *testing.T) {
	// A favorite gains little from an expected win and loses a lot from
	// an upset. An underdog mirrors that.
	favoriteWin := Change(1700, 1500, models.ResultWin)
	favoriteLoss := Change(1700, 1500, models.ResultLoss)
	underdogWin := Change(1500, 1700, models.ResultWin)
	underdogLoss := Change(1500, 1700, models.ResultLoss)

	assert.Greater(t, favoriteWin, 0)
	assert.Less(t, favoriteWin, 16)
	assert.Less(t, favoriteLoss, -16)

	assert.Greater(t, underdogWin, 16)
	assert.Less(t, underdogLoss, 0)
	assert.Greater(t, underdogLoss, -16)

	// Symmetric pairings move by the same magnitude.
	assert.Equal(t, favoriteWin, -underdogLoss)
	assert.Equal(t, underdogWin, -favoriteLoss)
}

func TestReplay_SeedsNewPlayers(t *testing.T) {
	updates := Replay(twoPlayerMatch(100001, "2024-01-05 20:00:00", "ALPHA", "BRAVO"))
	require.Len(t, updates, 2)

	byKey := updatesByKey(updates)
	assert.Equal(t, 1516, byKey["ALPHA"].Rating)
	assert.Equal(t, 16, byKey["ALPHA"].Change)
	assert.Equal(t, 1484, byKey["BRAVO"].Rating)
	assert.Equal(t, -16, byKey["BRAVO"].Change)
}

func TestReplay_RatingsCarryAcrossMatches(t *testing.T) {
	records := append(
		twoPlayerMatch(100001, "2024-01-05 20:00:00", "ALPHA", "BRAVO"),
		twoPlayerMatch(100002, "2024-01-05 21:00:00", "ALPHA", "BRAVO")...,
	)

	updates := Replay(records)
	require.Len(t, updates, 4)

	// Second match: ALPHA (1516) beats BRAVO (1484) again. The favorite
	// gains slightly less than last time.
	second := updatesByKey(updates[2:])
	assert.Equal(t, 100002, int(second["ALPHA"].MatchID))
	assert.Less(t, second["ALPHA"].Change, 16)
	assert.Greater(t, second["ALPHA"].Change, 0)
	assert.Equal(t, second["ALPHA"].Change, -second["BRAVO"].Change)
}

func TestReplay_SortsMatchesByCompleteTime(t *testing.T) {
	// A backfilled match stored later but played earlier must be replayed
	// first. With the matches in either store order the final ratings are
	// identical.
	early := twoPlayerMatch(100002, "2024-01-01 12:00:00", "ALPHA", "BRAVO")
	late := twoPlayerMatch(100001, "2024-02-01 12:00:00", "BRAVO", "ALPHA")

	backfilled := Replay(append(append([]models.MatchRecord{}, late...), early...))
	chronological := Replay(append(append([]models.MatchRecord{}, early...), late...))

	// First replayed match in both runs is the early one.
	assert.Equal(t, int64(100002), backfilled[0].MatchID)
	assert.Equal(t, int64(100002), chronological[0].MatchID)

	finalBackfilled := updatesByKey(backfilled[2:])
	finalChronological := updatesByKey(chronological[2:])
	assert.Equal(t, finalChronological["ALPHA"].Rating, finalBackfilled["ALPHA"].Rating)
	assert.Equal(t, finalChronological["BRAVO"].Rating, finalBackfilled["BRAVO"].Rating)
}

func TestReplay_TeamAveragesTakenBeforeUpdates(t *testing.T) {
	// 2v2 between fresh players: every row sees the same pre-match 1500
	// opposing average, so all four deltas have magnitude 16 even though
	// ratings change while the match is replayed.
	records := []models.MatchRecord{
		record(100001, "2024-01-05 20:00:00", "1", "ALPHA", models.ResultWin),
		record(100001, "2024-01-05 20:00:00", "1", "BRAVO", models.ResultWin),
		record(100001, "2024-01-05 20:00:00", "2", "CHARLIE", models.ResultLoss),
		record(100001, "2024-01-05 20:00:00", "2", "DELTA", models.ResultLoss),
	}

	updates := Replay(records)
	require.Len(t, updates, 4)
	for _, u := range updates {
		if u.MatchResult == models.ResultWin {
			assert.Equal(t, 16, u.Change, u.Username)
		} else {
			assert.Equal(t, -16, u.Change, u.Username)
		}
	}
}

func TestReplay_TeamAverageFloorsDivision(t *testing.T) {
	// Seed uneven ratings for team 2 with a warm-up 1v1, then play a match
	// where team 1 faces an average that does not divide evenly.
	warmup := twoPlayerMatch(100001, "2024-01-01 10:00:00", "CHARLIE", "DELTA")

	main := []models.MatchRecord{
		record(100002, "2024-01-02 10:00:00", "1", "ALPHA", models.ResultWin),
		record(100002, "2024-01-02 10:00:00", "2", "CHARLIE", models.ResultLoss),
		record(100002, "2024-01-02 10:00:00", "2", "DELTA", models.ResultLoss),
	}

	updates := Replay(append(warmup, main...))
	require.Len(t, updates, 5)

	// After the warm-up CHARLIE is 1516 and DELTA 1484, so team 2 averages
	// exactly 1500 and ALPHA's win against it is worth 16.
	byKey := updatesByKey(updates[2:])
	assert.Equal(t, 16, byKey["ALPHA"].Change)

	// Each defender compares their own rating against ALPHA alone.
	assert.Equal(t, Change(1516, 1500, models.ResultLoss), byKey["CHARLIE"].Change)
	assert.Equal(t, Change(1484, 1500, models.ResultLoss), byKey["DELTA"].Change)
}

func TestReplay_GroupsInterleavedRowsByMatchID(t *testing.T) {
	// Two matches completing in the same second come back interleaved from
	// the store: the canonical order sorts by complete_time then team, with
	// no match_id tiebreak. Every row must still be scored against its own
	// match's opposing side, not a fragment of it.
	warmup := twoPlayerMatch(100001, "2024-01-01 10:00:00", "ALPHA", "BRAVO")

	interleaved := []models.MatchRecord{
		record(100002, "2024-01-02 10:00:00", "1", "ALPHA", models.ResultWin),
		record(100003, "2024-01-02 10:00:00", "1", "CHARLIE", models.ResultWin),
		record(100002, "2024-01-02 10:00:00", "2", "BRAVO", models.ResultLoss),
		record(100003, "2024-01-02 10:00:00", "2", "DELTA", models.ResultLoss),
	}

	updates := Replay(append(append([]models.MatchRecord{}, warmup...), interleaved...))
	require.Len(t, updates, 6)

	// After the warm-up ALPHA is 1516 and BRAVO 1484; the rematch is scored
	// against those real ratings, not a fresh-player fallback.
	byKey := updatesByKey(updates[2:])
	assert.Equal(t, Change(1516, 1484, models.ResultWin), byKey["ALPHA"].Change)
	assert.Equal(t, Change(1484, 1516, models.ResultLoss), byKey["BRAVO"].Change)
	assert.Equal(t, 16, byKey["CHARLIE"].Change)
	assert.Equal(t, -16, byKey["DELTA"].Change)

	// The same record multiset with each match's rows contiguous produces
	// identical ratings.
	contiguous := []models.MatchRecord{
		interleaved[0], interleaved[2], interleaved[1], interleaved[3],
	}
	contiguousUpdates := Replay(append(append([]models.MatchRecord{}, warmup...), contiguous...))
	assert.Equal(t, byKey, updatesByKey(contiguousUpdates[2:]))
}

func TestReplay_SwappedCompleteTimesChangeRatings(t *testing.T) {
	// A player's trajectory depends on when each match happened: winning
	// first and then losing does not end where losing first and then
	// winning does, because the loss is taken at a higher rating.
	winFirst := append(
		twoPlayerMatch(100001, "2024-01-01 10:00:00", "ALPHA", "BRAVO"),
		twoPlayerMatch(100002, "2024-01-02 10:00:00", "CHARLIE", "ALPHA")...,
	)
	lossFirst := append(
		twoPlayerMatch(100001, "2024-01-02 10:00:00", "ALPHA", "BRAVO"),
		twoPlayerMatch(100002, "2024-01-01 10:00:00", "CHARLIE", "ALPHA")...,
	)

	finalWinFirst := updatesByKey(Replay(winFirst))
	finalLossFirst := updatesByKey(Replay(lossFirst))

	// Win first: ALPHA loses at 1516 as the favorite and gives up more
	// than 16. Loss first: ALPHA wins at 1484 as the underdog and gains
	// more than 16. The two trajectories land on different ratings.
	assert.Equal(t, 1516+Change(1516, 1500, models.ResultLoss), finalWinFirst["ALPHA"].Rating)
	assert.Equal(t, 1484+Change(1484, 1500, models.ResultWin), finalLossFirst["ALPHA"].Rating)
	assert.NotEqual(t, finalWinFirst["ALPHA"].Rating, finalLossFirst["ALPHA"].Rating)
	assert.NotEqual(t, finalWinFirst["CHARLIE"].Rating, finalLossFirst["CHARLIE"].Rating)
}

func TestReplay_Deterministic(t *testing.T) {
	records := append(
		twoPlayerMatch(100001, "2024-01-05 20:00:00", "ALPHA", "BRAVO"),
		twoPlayerMatch(100002, "2024-01-06 20:00:00", "BRAVO", "ALPHA")...,
	)

	first := Replay(records)
	second := Replay(records)
	assert.Equal(t, first, second)
}

func TestReplay_Empty(t *testing.T) {
	assert.Empty(t, Replay(nil))
}

type fakeStore struct {
	records   []models.MatchRecord
	readErr   error
	updateErr error
	updates   []models.RatingUpdate
}

func (s *fakeStore) ReadAll(ctx context.Context) ([]models.MatchRecord, error) {
	return s.records, s.readErr
}

func (s *fakeStore) UpdateRatings(ctx context.Context, updates []models.RatingUpdate) error {
	s.updates = updates
	return s.updateErr
}

func TestEngine_Recompute(t *testing.T) {
	store := &fakeStore{records: twoPlayerMatch(100001, "2024-01-05 20:00:00", "ALPHA", "BRAVO")}
	engine := NewEngine(store)

	require.NoError(t, engine.Recompute(context.Background()))
	require.Len(t, store.updates, 2)
	assert.Equal(t, 1516, store.updates[0].Rating)
}

func TestEngine_Recompute_ReadError(t *testing.T) {
	store := &fakeStore{readErr: errors.New("connection refused")}
	engine := NewEngine(store)

	err := engine.Recompute(context.Background())
	require.Error(t, err)
	assert.Nil(t, store.updates)
}
