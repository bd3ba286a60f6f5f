package normalizer

import (
	"context"
	"fmt"
	"strings"

	"mwocomp/ingestion/internal/models"
)

// Reason classifies why a participant line failed resolution.
type Reason string

const (
	MechNotFound  Reason = "mech_not_found"
	PilotNotFound Reason = "pilot_not_found"
	EmptyTeam     Reason = "empty_team"
	EmptyDivision Reason = "empty_division"
)

// ResolutionError rejects a whole match because one participant line could
// not be resolved against the reference data. The match is absent from the
// store and can be resubmitted once the catalog or roster is fixed.
type ResolutionError struct {
	Reason Reason
	Pilot  string
	MechID int64
	Mech   string
	Team   string
}

func (e *ResolutionError) Error() string {
	switch e.Reason {
	case MechNotFound:
		return fmt.Sprintf("mech with id `%d` not found", e.MechID)
	case PilotNotFound:
		return fmt.Sprintf("pilot `%s` not found. Mech: %s. Team: %s", e.Pilot, e.Mech, e.Team)
	case EmptyTeam:
		return fmt.Sprintf("empty team on a roster for a pilot `%s`", e.Pilot)
	case EmptyDivision:
		return fmt.Sprintf("empty division on a roster for a pilot `%s`", e.Pilot)
	}
	return fmt.Sprintf("resolution failed for pilot `%s`", e.Pilot)
}

// Resolver is the reference data lookup the normalizer needs.
type Resolver interface {
	ResolveMech(ctx context.Context, itemID int64) (models.MechDefinition, bool)
	ResolveRoster(ctx context.Context, tournament, pilotUpper string) (models.RosterEntry, bool)
}

// Normalizer converts one raw match payload into canonical per-player
// records. Acceptance is all-or-nothing: any resolution failure rejects the
// entire match.
type Normalizer struct {
	resolver Resolver
}

// New creates a Normalizer over the given resolver.
func New(resolver Resolver) *Normalizer {
	return &Normalizer{resolver: resolver}
}

// Normalize builds the record set for one match. Spectators and participants
// without a mech are skipped; every remaining line must resolve or the whole
// match is rejected.
func (n *Normalizer) Normalize(ctx context.Context, matchID int64, resp *models.MatchResponse, tournament string) ([]models.MatchRecord, error) {
	details := resp.MatchDetails

	var records []models.MatchRecord
	for _, line := range resp.UserDetails {
		if line.IsSpectator || line.MechItemID == 0 {
			continue
		}

		mech, ok := n.resolver.ResolveMech(ctx, line.MechItemID)
		if !ok {
			return nil, &ResolutionError{Reason: MechNotFound, Pilot: line.Username, MechID: line.MechItemID}
		}

		entry, ok := n.resolver.ResolveRoster(ctx, tournament, strings.ToUpper(line.Username))
		if !ok {
			return nil, &ResolutionError{
				Reason: PilotNotFound,
				Pilot:  line.Username,
				MechID: line.MechItemID,
				Mech:   mech.Name,
				Team:   line.Team,
			}
		}

		teamName := strings.TrimSpace(entry.Team)
		if teamName == "" {
			return nil, &ResolutionError{Reason: EmptyTeam, Pilot: line.Username}
		}
		if entry.Division == "" {
			return nil, &ResolutionError{Reason: EmptyDivision, Pilot: line.Username}
		}

		result := models.ResultLoss
		score := -1
		if line.Team == details.WinningTeam {
			result = models.ResultWin
			score = 1
		}

		records = append(records, models.MatchRecord{
			MatchID:       matchID,
			Tournament:    tournament,
			Division:      entry.Division,
			Map:           details.Map,
			WinningTeam:   details.WinningTeam,
			Team1Score:    details.Team1Score,
			Team2Score:    details.Team2Score,
			MatchDuration: details.MatchDuration,
			CompleteTime:  details.CompleteTime,

			MatchResult: result,
			Score:       score,

			Username: line.Username,
			Team:     line.Team,
			TeamName: teamName,
			Lance:    line.Lance,

			MechItemID: line.MechItemID,
			Mech:       mech.Name,
			Chassis:    mech.Chassis,
			Tonnage:    mech.Tonnage,
			Class:      mech.Class,
			Type:       mech.Type,

			HealthPercentage:    line.HealthPercentage,
			Kills:               line.Kills,
			KillsMostDamage:     line.KillsMostDamage,
			Assists:             line.Assists,
			ComponentsDestroyed: line.ComponentsDestroyed,
			MatchScore:          line.MatchScore,
			Damage:              line.Damage,
			TeamDamage:          line.TeamDamage,
		})
	}

	return records, nil
}
