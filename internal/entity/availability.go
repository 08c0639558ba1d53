package entity

import (
	"math"
	"time"
)

// Default availability policy values.
const (
	DefaultAvailabilityMultiplier = 12.1
	DefaultRainingWindow          = 15 * time.Minute
)

// Policy holds the tunable liveness constants.
type Policy struct {
	// AvailabilityMultiplier is how many nominal update periods may pass
	// before a periodic entity is considered unavailable.
	AvailabilityMultiplier float64

	// RainingWindow is how recent a zero rain duration reading must be for
	// rain to count as falling now.
	RainingWindow time.Duration
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{
		AvailabilityMultiplier: DefaultAvailabilityMultiplier,
		RainingWindow:          DefaultRainingWindow,
	}
}

// Input is everything availability depends on.
type Input struct {
	Kind         Kind
	Provenance   Provenance
	LastUpdate   time.Time
	UpdatePeriod time.Duration
	SensorOnline bool
	Now          time.Time
}

// Availability reports whether an entity should be shown as available.
//
// An entity with no value is never available. Calculated entities and
// entities of push-only sensors mirror the sensor's online status. A
// periodic entity is available while its age is at most period times the
// multiplier; the boundary itself counts as available.
func Availability(p Policy, in Input) bool {
	if in.Provenance == ProvenanceUnknown {
		return false
	}
	if in.Kind == KindCalculated || in.UpdatePeriod <= 0 {
		return in.SensorOnline
	}
	if in.LastUpdate.IsZero() {
		return false
	}

	mult := p.AvailabilityMultiplier
	if mult <= 0 {
		mult = DefaultAvailabilityMultiplier
	}
	limit := time.Duration(math.Round(float64(in.UpdatePeriod) * mult))
	return in.Now.Sub(in.LastUpdate) <= limit
}
