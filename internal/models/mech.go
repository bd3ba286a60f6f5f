package models

// WeightClass is the tonnage bracket a chassis belongs to
type WeightClass string

const (
	ClassLight   WeightClass = "LIGHT"
	ClassMedium  WeightClass = "MEDIUM"
	ClassHeavy   WeightClass = "HEAVY"
	ClassAssault WeightClass = "ASSAULT"
)

// MechDefinition is one row of the mech catalog, keyed by ItemID.
// Immutable reference data; the resolver reloads the full catalog on
// cache expiry.
type MechDefinition struct {
	ItemID  int64
	Name    string
	Chassis string
	Tonnage int
	Class   WeightClass
	Type    string
}
