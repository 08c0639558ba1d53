package entity

import (
	"math"
	"reflect"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-weather/internal/persist"
	"github.com/nerrad567/gray-logic-weather/internal/sensor"
)

// Kind distinguishes entities bound to a measurement from derived ones.
type Kind string

// Entity kinds.
const (
	KindDirect     Kind = "direct"
	KindCalculated Kind = "calculated"
)

// Provenance is the source of an entity's current value. Later values in
// the ordering always win: Live over Restored over Unknown.
type Provenance int

// Provenance values.
const (
	ProvenanceUnknown Provenance = iota
	ProvenanceRestored
	ProvenanceLive
)

// String returns the provenance name.
func (p Provenance) String() string {
	switch p {
	case ProvenanceRestored:
		return "restored"
	case ProvenanceLive:
		return "live"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Provenance) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Reading is one live value for a direct entity.
type Reading struct {
	Value      any
	PriorValue *float64
	Timestamp  time.Time
	IsError    bool
	ErrorText  string
	ByEvent    bool
}

// defaultErrorText is shown when the decoder flags an error without detail.
const defaultErrorText = "decode error"

// Entity is one named value exposed to the host. Identity fields are fixed
// at construction; the value cell is guarded by the entity's own mutex so
// entities of different sensors never contend.
type Entity struct {
	id            string
	sensorID      string
	key           string
	name          string
	kind          Kind
	measurementID string
	supportsPrior bool
	descriptor    sensor.Descriptor
	deriver       Deriver

	mu          sync.RWMutex
	value       any
	lastUpdate  time.Time
	provenance  Provenance
	prior       *float64
	errText     string
	byEvent     *bool
	restoreDone bool
}

// ID builds an entity ID from a sensor ID and an entity key.
func ID(sensorID, key string) string {
	return sensorID + "-" + key
}

// NewDirect creates an entity bound to one measurement of a sensor.
func NewDirect(sensorID string, m sensor.Measurement) *Entity {
	return &Entity{
		id:            ID(sensorID, m.Key()),
		sensorID:      sensorID,
		key:           m.Key(),
		name:          m.Name,
		kind:          KindDirect,
		measurementID: m.ID,
		supportsPrior: m.SupportsPriorValue,
		descriptor:    m.Descriptor(),
	}
}

// NewCalculated creates an entity whose value is produced by d from the
// value of the base entity it is later linked to.
func NewCalculated(sensorID, key, name string, desc sensor.Descriptor, d Deriver) *Entity {
	return &Entity{
		id:         ID(sensorID, key),
		sensorID:   sensorID,
		key:        key,
		name:       name,
		kind:       KindCalculated,
		descriptor: desc,
		deriver:    d,
	}
}

// ID returns the entity ID.
func (e *Entity) ID() string { return e.id }

// SensorID returns the owning sensor.
func (e *Entity) SensorID() string { return e.sensorID }

// Key returns the per-sensor key.
func (e *Entity) Key() string { return e.key }

// Name returns the display name.
func (e *Entity) Name() string { return e.name }

// Kind returns whether the entity is direct or calculated.
func (e *Entity) Kind() Kind { return e.kind }

// MeasurementID returns the bound measurement. Empty for calculated entities.
func (e *Entity) MeasurementID() string { return e.measurementID }

// Descriptor returns the presentation record.
func (e *Entity) Descriptor() sensor.Descriptor { return e.descriptor }

// Value returns the current value.
func (e *Entity) Value() any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.value
}

// LastUpdate returns the timestamp of the current value. Zero means never.
func (e *Entity) LastUpdate() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastUpdate
}

// Provenance returns where the current value came from.
func (e *Entity) Provenance() Provenance {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.provenance
}

// OnLiveUpdate applies a live reading to a direct entity and reports
// whether anything observable changed. Replaying the same value and
// timestamp is a no-op. Any pending restore is abandoned for good.
func (e *Entity) OnLiveUpdate(r Reading) bool {
	if e.kind != KindDirect {
		return false
	}

	value, errText := e.normalize(r)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.restoreDone = true

	if e.provenance == ProvenanceLive &&
		r.Timestamp.Equal(e.lastUpdate) &&
		errText == e.errText &&
		reflect.DeepEqual(value, e.value) {
		return false
	}

	prior := finite(r.PriorValue)
	if prior == nil && e.supportsPrior && errText == "" &&
		e.provenance != ProvenanceUnknown && r.Timestamp.After(e.lastUpdate) {
		if f, ok := sensor.ToFloat(e.value); ok {
			prior = &f
		}
	}

	byEvent := r.ByEvent
	e.value = value
	e.lastUpdate = r.Timestamp
	e.prior = prior
	e.errText = errText
	e.byEvent = &byEvent
	e.provenance = ProvenanceLive
	return true
}

// finite drops a NaN or infinite prior value.
func finite(p *float64) *float64 {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return nil
	}
	return p
}

func (e *Entity) normalize(r Reading) (any, string) {
	if r.IsError {
		if r.ErrorText != "" {
			return nil, r.ErrorText
		}
		return nil, defaultErrorText
	}
	v, err := e.descriptor.Normalize(r.Value)
	if err != nil {
		return nil, err.Error()
	}
	return v, ""
}

// OnRestore adopts a persisted snapshot. It only has an effect once, and
// never after a live value has been applied. A snapshot without data leaves
// the entity Unknown. It reports whether the snapshot was adopted.
func (e *Entity) OnRestore(snap persist.Snapshot, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.restoreDone || e.provenance != ProvenanceUnknown {
		return false
	}
	e.restoreDone = true

	if !snap.HasValue() {
		return false
	}

	value := snap.State
	if sd, ok := e.deriver.(StatefulDeriver); ok {
		value = sd.Load(snap, now)
	} else if value != nil {
		v, err := e.descriptor.Normalize(value)
		if err != nil {
			return false
		}
		value = v
	}

	e.value = value
	e.lastUpdate = snap.LastUpdated
	e.prior = finite(snap.PriorValue)
	e.errText = snap.Error
	e.byEvent = snap.ByEvent
	e.provenance = ProvenanceRestored
	return true
}

// view returns the committed state a dependent derives from.
func (e *Entity) view() (BaseValue, Provenance) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return BaseValue{
		Value:      e.value,
		PriorValue: e.prior,
		LastUpdate: e.lastUpdate,
	}, e.provenance
}

// recompute re-derives a calculated entity. The result inherits the base's
// provenance so a value derived from restored data is not reported live.
// It reports whether the value or provenance changed.
func (e *Entity) recompute(base BaseValue, baseProv Provenance, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := e.deriver.Derive(base, now)
	changed := e.provenance != baseProv || !reflect.DeepEqual(v, e.value)

	e.value = v
	e.lastUpdate = now
	e.provenance = baseProv
	e.restoreDone = true
	return changed
}

// Snapshot captures the entity for persistence.
func (e *Entity) Snapshot() persist.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

func (e *Entity) snapshotLocked() persist.Snapshot {
	s := persist.Snapshot{
		Version:     persist.CurrentVersion,
		State:       e.value,
		LastUpdated: e.lastUpdate,
		PriorValue:  e.prior,
		Error:       e.errText,
		ByEvent:     e.byEvent,
	}
	if sd, ok := e.deriver.(StatefulDeriver); ok {
		sd.Save(&s)
	}
	return s
}

// attributes returns the outbound attribute map: the persisted key set
// without version and state.
func (e *Entity) attributes() map[string]any {
	attrs := persist.Encode(e.snapshotLocked())
	delete(attrs, persist.KeyVersion)
	delete(attrs, persist.KeyState)
	return attrs
}
