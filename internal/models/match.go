package models

import "database/sql"

// MatchResult is a single player's outcome, derived from their team side
// against the match's winning team.
type MatchResult string

const (
	ResultWin  MatchResult = "WIN"
	ResultLoss MatchResult = "LOSS"
)

// MatchRecord is one persisted row: one non-spectator participant of one
// match, denormalized with match-level fields and resolved reference data.
// Within a match every row shares the match-level fields; the Rating and
// RatingChange columns stay NULL until the rating engine has replayed the
// match.
type MatchRecord struct {
	ID            int    `db:"id"`
	MatchID       int64  `db:"match_id"`
	Tournament    string `db:"tournament"`
	Division      string `db:"division"`
	Map           string `db:"map"`
	WinningTeam   string `db:"winning_team"`
	Team1Score    int    `db:"team1_score"`
	Team2Score    int    `db:"team2_score"`
	MatchDuration string `db:"match_duration"`
	CompleteTime  string `db:"complete_time"`

	MatchResult MatchResult `db:"match_result"`
	Score       int         `db:"score"`

	Username string `db:"username"`
	Team     string `db:"team"`
	TeamName string `db:"team_name"`
	Lance    string `db:"lance"`

	MechItemID int64       `db:"mech_item_id"`
	Mech       string      `db:"mech"`
	Chassis    string      `db:"chassis"`
	Tonnage    int         `db:"tonnage"`
	Class      WeightClass `db:"class"`
	Type       string      `db:"type"`

	HealthPercentage    int `db:"health_percentage"`
	Kills               int `db:"kills"`
	KillsMostDamage     int `db:"kills_most_damage"`
	Assists             int `db:"assists"`
	ComponentsDestroyed int `db:"components_destroyed"`
	MatchScore          int `db:"match_score"`
	Damage              int `db:"damage"`
	TeamDamage          int `db:"team_damage"`

	Rating       sql.NullInt32 `db:"rating"`
	RatingChange sql.NullInt32 `db:"rating_change"`
}

// OpponentTeam returns the opposing team side (sides are "1" and "2").
func (r *MatchRecord) OpponentTeam() string {
	if r.Team == "1" {
		return "2"
	}
	return "1"
}

// RatingUpdate carries one row's recomputed rating back to the store,
// matched by the four-part row key.
type RatingUpdate struct {
	MatchID     int64
	Team        string
	Username    string
	MatchResult MatchResult
	Rating      int
	Change      int
}

// MatchResponse is the raw payload the match API returns for one match ID.
type MatchResponse struct {
	MatchDetails MatchDetails  `json:"MatchDetails"`
	UserDetails  []UserDetails `json:"UserDetails"`
}

// MatchDetails holds the match-level fields of the API payload.
type MatchDetails struct {
	Map           string `json:"Map"`
	WinningTeam   string `json:"WinningTeam"`
	Team1Score    int    `json:"Team1Score"`
	Team2Score    int    `json:"Team2Score"`
	MatchDuration string `json:"MatchDuration"`
	CompleteTime  string `json:"CompleteTime"`
}

// UserDetails is one participant block of the API payload. A spectator, or
// a participant whose MechItemID is zero, never becomes a record.
type UserDetails struct {
	IsSpectator         bool   `json:"IsSpectator"`
	Username            string `json:"Username"`
	Team                string `json:"Team"`
	Lance               string `json:"Lance"`
	MechItemID          int64  `json:"MechItemID"`
	HealthPercentage    int    `json:"HealthPercentage"`
	Kills               int    `json:"Kills"`
	KillsMostDamage     int    `json:"KillsMostDamage"`
	Assists             int    `json:"Assists"`
	ComponentsDestroyed int    `json:"ComponentsDestroyed"`
	MatchScore          int    `json:"MatchScore"`
	Damage              int    `json:"Damage"`
	TeamDamage          int    `json:"TeamDamage"`
}
