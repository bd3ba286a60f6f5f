package models

// RosterEntry ties a pilot to the team and division they played for in a
// single tournament. Lookups are keyed by the uppercased pilot name.
type RosterEntry struct {
	Pilot    string
	Team     string
	Division string
}
