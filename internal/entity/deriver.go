package entity

import (
	"time"

	"github.com/nerrad567/gray-logic-weather/internal/persist"
	"github.com/nerrad567/gray-logic-weather/internal/sensor"
	"github.com/nerrad567/gray-logic-weather/internal/window"
)

// BaseValue is the committed state of a base entity as seen by a deriver.
type BaseValue struct {
	Value      any
	PriorValue *float64
	LastUpdate time.Time
}

// Deriver computes a calculated entity's value from its base.
// Implementations are called with the owning entity's lock held.
type Deriver interface {
	Derive(base BaseValue, now time.Time) any
}

// StatefulDeriver is a Deriver with state of its own that must survive a
// restart.
type StatefulDeriver interface {
	Deriver

	// Save writes the deriver state into s.
	Save(s *persist.Snapshot)

	// Load rebuilds the state from s and returns the resulting value.
	Load(s persist.Snapshot, now time.Time) any
}

// RainWindow sums rain increments over a sliding window. Increments are
// taken from a cumulative counter base as current minus prior, stamped
// with the base's update time.
type RainWindow struct {
	w *window.Window
}

// NewRainWindow creates a rain window of the given length.
func NewRainWindow(d time.Duration) *RainWindow {
	return &RainWindow{w: window.New(d)}
}

// Duration returns the window length.
func (r *RainWindow) Duration() time.Duration {
	return r.w.Duration()
}

// Derive feeds a new increment if the base advanced, then evaluates.
func (r *RainWindow) Derive(base BaseValue, now time.Time) any {
	if base.PriorValue != nil && *base.PriorValue >= 0 && base.LastUpdate.After(r.w.LastUpdate()) {
		if curr, ok := sensor.ToFloat(base.Value); ok {
			r.w.Accept(curr-*base.PriorValue, base.LastUpdate)
		}
	}
	return r.w.Evaluate(now)
}

// Save implements StatefulDeriver.
func (r *RainWindow) Save(s *persist.Snapshot) {
	s.WindowLastUpdate = r.w.LastUpdate()
	s.WindowEntries = r.w.Entries()
}

// Load implements StatefulDeriver. Entries already stale at now are pruned
// before the value is returned.
func (r *RainWindow) Load(s persist.Snapshot, now time.Time) any {
	return r.w.Restore(s.WindowEntries, s.WindowLastUpdate, now)
}

// RainingNow reports whether rain is falling: the base rain duration
// counter reads zero and was updated within the window.
type RainingNow struct {
	within time.Duration
}

// NewRainingNow creates the deriver. within is the freshness limit.
func NewRainingNow(within time.Duration) *RainingNow {
	return &RainingNow{within: within}
}

// Derive implements Deriver.
func (r *RainingNow) Derive(base BaseValue, now time.Time) any {
	f, ok := sensor.ToFloat(base.Value)
	if !ok || base.LastUpdate.IsZero() {
		return false
	}
	return int(f) == 0 && !base.LastUpdate.Before(now.Add(-r.within))
}
