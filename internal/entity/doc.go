// Package entity holds the values the weather service exposes.
//
// Every sensor measurement becomes a direct entity showing the last value
// the decoder reported. Calculated entities derive their value from one
// base entity through a Deriver: rolling rain sums over several windows and
// a "raining now" flag. The Store owns all entities, the dependency Graph
// between them and the Sink that receives additions and changes.
//
// # Provenance
//
// An entity starts Unknown. At startup it may adopt a persisted snapshot
// exactly once and become Restored. The first live reading makes it Live
// and no later restore attempt can overwrite it.
//
// # Availability
//
// Availability is a pure function of the entity and its sensor's status;
// see Availability for the rules and Policy for the tunable constants.
package entity
