package repository

import (
	"context"
	"fmt"

	"mwocomp/ingestion/internal/metrics"
	"mwocomp/ingestion/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// MatchRepository is the append-mostly match record store. One row per
// participant per match; rows are appended by ingestion and only their
// rating columns are ever mutated afterwards, by the rating engine.
type MatchRepository struct {
	db *Database
}

const matchColumns = `
	match_id, tournament, division, map, winning_team, team1_score, team2_score,
	match_duration, complete_time, match_result, score,
	username, team, team_name, lance,
	mech_item_id, mech, chassis, tonnage, class, type,
	health_percentage, kills, kills_most_damage, assists, components_destroyed,
	match_score, damage, team_damage`

// InitSchema creates the table if it is absent. Safe to call on every
// startup; the rating columns are added separately so databases created
// before the rating engine existed pick them up too.
func (r *MatchRepository) InitSchema(ctx context.Context) error {
	createTable := `
		CREATE TABLE IF NOT EXISTS comp_data (
			id BIGSERIAL PRIMARY KEY,
			match_id BIGINT NOT NULL,
			tournament TEXT NOT NULL,
			division TEXT NOT NULL,
			map TEXT NOT NULL,
			winning_team TEXT NOT NULL,
			team1_score INTEGER NOT NULL,
			team2_score INTEGER NOT NULL,
			match_duration TEXT NOT NULL,
			complete_time TEXT NOT NULL,
			match_result TEXT NOT NULL,
			score INTEGER NOT NULL,
			username TEXT NOT NULL,
			team TEXT NOT NULL,
			team_name TEXT NOT NULL,
			lance TEXT NOT NULL,
			mech_item_id BIGINT NOT NULL,
			mech TEXT NOT NULL,
			chassis TEXT NOT NULL,
			tonnage INTEGER NOT NULL,
			class TEXT NOT NULL,
			type TEXT NOT NULL,
			health_percentage INTEGER NOT NULL,
			kills INTEGER NOT NULL,
			kills_most_damage INTEGER NOT NULL,
			assists INTEGER NOT NULL,
			components_destroyed INTEGER NOT NULL,
			match_score INTEGER NOT NULL,
			damage INTEGER NOT NULL,
			team_damage INTEGER NOT NULL
		)
	`

	if _, err := r.db.Pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create comp_data table: %w", err)
	}

	alterStatements := []string{
		`ALTER TABLE comp_data ADD COLUMN IF NOT EXISTS rating INTEGER`,
		`ALTER TABLE comp_data ADD COLUMN IF NOT EXISTS rating_change INTEGER`,
		`CREATE INDEX IF NOT EXISTS idx_comp_data_match_id ON comp_data (match_id)`,
	}
	for _, stmt := range alterStatements {
		if _, err := r.db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to update comp_data schema: %w", err)
		}
	}

	log.Debug().Msg("Match store schema initialized")
	return nil
}

// ReadAll returns every record in the canonical order every downstream
// consumer relies on: completion time, then team, sub-group and player name.
func (r *MatchRepository) ReadAll(ctx context.Context) ([]models.MatchRecord, error) {
	query := `
		SELECT id, ` + matchColumns + `, rating, rating_change
		FROM comp_data
		ORDER BY complete_time, team, lance, username
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		metrics.RecordDBQuery("read_all", "error")
		return nil, fmt.Errorf("failed to read match records: %w", err)
	}
	defer rows.Close()

	var records []models.MatchRecord
	for rows.Next() {
		var rec models.MatchRecord
		err := rows.Scan(
			&rec.ID, &rec.MatchID, &rec.Tournament, &rec.Division, &rec.Map,
			&rec.WinningTeam, &rec.Team1Score, &rec.Team2Score,
			&rec.MatchDuration, &rec.CompleteTime, &rec.MatchResult, &rec.Score,
			&rec.Username, &rec.Team, &rec.TeamName, &rec.Lance,
			&rec.MechItemID, &rec.Mech, &rec.Chassis, &rec.Tonnage, &rec.Class, &rec.Type,
			&rec.HealthPercentage, &rec.Kills, &rec.KillsMostDamage, &rec.Assists,
			&rec.ComponentsDestroyed, &rec.MatchScore, &rec.Damage, &rec.TeamDamage,
			&rec.Rating, &rec.RatingChange,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match records: %w", err)
	}

	metrics.RecordDBQuery("read_all", "success")
	return records, nil
}

// AppendMatch writes one match's full record set in a single transaction.
// Either every row lands or none does; a match is never partially stored.
func (r *MatchRepository) AppendMatch(ctx context.Context, records []models.MatchRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO comp_data (` + matchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)
	`

	for _, rec := range records {
		_, err := tx.Exec(ctx, query,
			rec.MatchID, rec.Tournament, rec.Division, rec.Map, rec.WinningTeam,
			rec.Team1Score, rec.Team2Score, rec.MatchDuration, rec.CompleteTime,
			rec.MatchResult, rec.Score,
			rec.Username, rec.Team, rec.TeamName, rec.Lance,
			rec.MechItemID, rec.Mech, rec.Chassis, rec.Tonnage, rec.Class, rec.Type,
			rec.HealthPercentage, rec.Kills, rec.KillsMostDamage, rec.Assists,
			rec.ComponentsDestroyed, rec.MatchScore, rec.Damage, rec.TeamDamage,
		)
		if err != nil {
			metrics.RecordDBQuery("append_match", "error")
			return fmt.Errorf("failed to insert record for match %d: %w", rec.MatchID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordDBQuery("append_match", "error")
		return fmt.Errorf("failed to commit match %d: %w", records[0].MatchID, err)
	}

	metrics.RecordDBQuery("append_match", "success")
	log.Debug().
		Int64("match_id", records[0].MatchID).
		Int("records", len(records)).
		Msg("Match appended")

	return nil
}

// DistinctMatchIDs returns the set of match IDs already present.
func (r *MatchRepository) DistinctMatchIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT DISTINCT match_id FROM comp_data`)
	if err != nil {
		metrics.RecordDBQuery("distinct_ids", "error")
		return nil, fmt.Errorf("failed to read distinct match ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan match id: %w", err)
		}
		ids[id] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match ids: %w", err)
	}

	metrics.RecordDBQuery("distinct_ids", "success")
	return ids, nil
}

// UpdateRatings applies all recomputed rating values in one transaction,
// matching rows by (match_id, team, username, match_result). This is the
// rating engine's single write boundary.
func (r *MatchRepository) UpdateRatings(ctx context.Context, updates []models.RatingUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE comp_data
		SET rating = $1, rating_change = $2
		WHERE match_id = $3 AND team = $4 AND username = $5 AND match_result = $6
	`

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(query, u.Rating, u.Change, u.MatchID, u.Team, u.Username, u.MatchResult)
	}

	results := tx.SendBatch(ctx, batch)
	for range updates {
		if _, err := results.Exec(); err != nil {
			results.Close()
			metrics.RecordDBQuery("update_ratings", "error")
			return fmt.Errorf("failed to update rating columns: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close rating update batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordDBQuery("update_ratings", "error")
		return fmt.Errorf("failed to commit rating updates: %w", err)
	}

	metrics.RecordDBQuery("update_ratings", "success")
	log.Info().Int("updates", len(updates)).Msg("Rating columns updated")

	return nil
}
