// Package window implements a bounded-duration sliding sum over
// timestamped increments.
//
// A Window is fed only non-negative increments; deriving them from a raw
// cumulative counter is the caller's job. Eviction is by entry timestamp,
// not arrival order: Evaluate drops every entry older than now - duration
// and returns the sum of the rest. An entry exactly at the cutoff stays.
//
// Windows are not safe for concurrent use; each is owned by one entity
// which serialises access.
package window

import (
	"math"
	"sort"
	"time"
)

// Entry is one accepted increment.
type Entry struct {
	At     time.Time
	Amount float64
}

// Window is a sliding sum of increments over a fixed duration.
type Window struct {
	duration   time.Duration
	entries    map[int64]float64 // keyed by UnixNano
	lastUpdate time.Time
}

// New creates an empty window.
func New(duration time.Duration) *Window {
	return &Window{
		duration: duration,
		entries:  make(map[int64]float64),
	}
}

// Duration returns the window length.
func (w *Window) Duration() time.Duration {
	return w.duration
}

// Accept inserts an increment. Non-positive or non-finite increments and
// timestamps not strictly after the last accepted one are dropped, so
// retransmitted or out-of-order deltas are never counted twice.
func (w *Window) Accept(amount float64, at time.Time) bool {
	if !usable(amount) || !at.After(w.lastUpdate) {
		return false
	}
	w.entries[at.UnixNano()] = amount
	w.lastUpdate = at
	return true
}

// Evaluate evicts entries older than now - duration and returns the sum of
// what remains.
func (w *Window) Evaluate(now time.Time) float64 {
	cutoff := now.Add(-w.duration).UnixNano()

	// Sum in timestamp order so the result does not depend on map iteration.
	keys := make([]int64, 0, len(w.entries))
	for k := range w.entries {
		if k < cutoff {
			delete(w.entries, k)
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	total := 0.0
	for _, k := range keys {
		total += w.entries[k]
	}
	return total
}

// Entries returns the retained entries in timestamp order. It does not
// evict; call Evaluate first for a current view.
func (w *Window) Entries() []Entry {
	out := make([]Entry, 0, len(w.entries))
	for k, v := range w.entries {
		out = append(out, Entry{At: time.Unix(0, k).UTC(), Amount: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// LastUpdate returns the timestamp of the most recently accepted increment,
// or the zero time.
func (w *Window) LastUpdate() time.Time {
	return w.lastUpdate
}

// Len returns the number of retained entries.
func (w *Window) Len() int {
	return len(w.entries)
}

// Restore replaces the window contents with persisted entries and runs one
// eviction pass against now. Entries with non-positive or non-finite
// amounts are skipped.
// The last update is the later of lastUpdate and the newest entry, so a
// restored window never accepts a delta older than what it already holds.
func (w *Window) Restore(entries []Entry, lastUpdate time.Time, now time.Time) float64 {
	w.entries = make(map[int64]float64, len(entries))
	w.lastUpdate = lastUpdate

	for _, e := range entries {
		if !usable(e.Amount) || e.At.IsZero() {
			continue
		}
		w.entries[e.At.UnixNano()] += e.Amount
		if e.At.After(w.lastUpdate) {
			w.lastUpdate = e.At
		}
	}

	return w.Evaluate(now)
}

func usable(amount float64) bool {
	return amount > 0 && !math.IsNaN(amount) && !math.IsInf(amount, 0)
}
