package entity

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-weather/internal/persist"
	"github.com/nerrad567/gray-logic-weather/internal/sensor"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StatusSource reports sensor liveness. *sensor.Registry satisfies it.
type StatusSource interface {
	Status(sensorID string) sensor.Status
}

// Store owns every entity for the lifetime of the process, the dependency
// graph between them and the sink new and changed entities are reported to.
//
// The store lock only guards the indexes. Each sensor has a barrier that
// live updates, restores, recomputes and snapshots of its entities hold,
// so updates for different sensors proceed in parallel while a checkpoint
// always sees a sensor's entity set between two complete updates.
type Store struct {
	mu            sync.RWMutex
	sensorLocks   map[string]*sync.Mutex
	entities      map[string]*Entity
	order         []string
	byMeasurement map[string]string // sensorID/measurementID -> entity ID
	bases         map[string]string // dependent -> base

	graph  *Graph
	status StatusSource
	sink   Sink
	policy Policy
	now    func() time.Time
	logger Logger
}

// NewStore creates an empty store. A nil sink discards notifications.
func NewStore(policy Policy, status StatusSource, sink Sink) *Store {
	if sink == nil {
		sink = NopSink{}
	}
	return &Store{
		sensorLocks:   make(map[string]*sync.Mutex),
		entities:      make(map[string]*Entity),
		byMeasurement: make(map[string]string),
		bases:         make(map[string]string),
		graph:         NewGraph(),
		status:        status,
		sink:          sink,
		policy:        policy,
		now:           time.Now,
		logger:        noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// SetClock replaces the time source. Intended for tests and replays.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Policy returns the availability policy in use.
func (s *Store) Policy() Policy {
	return s.policy
}

// sensorLock returns the barrier of a sensor's entity set. Dependencies
// never cross sensors, so one barrier covers a whole fan-out.
func (s *Store) sensorLock(sensorID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.sensorLocks[sensorID]
	if !ok {
		l = &sync.Mutex{}
		s.sensorLocks[sensorID] = l
	}
	return l
}

func measurementKey(sensorID, measurementID string) string {
	return sensorID + "/" + measurementID
}

// Add registers an entity and reports it to the sink.
func (s *Store) Add(e *Entity) error {
	s.mu.Lock()
	if _, exists := s.entities[e.id]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEntityExists, e.id)
	}
	s.entities[e.id] = e
	s.order = append(s.order, e.id)
	if e.kind == KindDirect {
		s.byMeasurement[measurementKey(e.sensorID, e.measurementID)] = e.id
	}
	s.mu.Unlock()

	s.logger.Debug("entity added", "entity_id", e.id, "kind", e.kind)
	s.sink.EntityAdded(s.stateOf(e, s.now()))
	return nil
}

// Get returns an entity by ID.
func (s *Store) Get(id string) (*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	return e, nil
}

// Lookup returns the direct entity bound to a sensor measurement.
func (s *Store) Lookup(sensorID, measurementID string) (*Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byMeasurement[measurementKey(sensorID, measurementID)]
	if !ok {
		return nil, false
	}
	return s.entities[id], true
}

// List returns every entity in the order it was added.
func (s *Store) List() []*Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entities[id])
	}
	return out
}

// Len returns the number of entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// Link makes dependent derive from base. Linking the same pair twice is a
// no-op. A calculated entity has exactly one base.
func (s *Store) Link(baseID, dependentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[baseID]; !ok {
		return fmt.Errorf("%w: base %s", ErrEntityNotFound, baseID)
	}
	dep, ok := s.entities[dependentID]
	if !ok {
		return fmt.Errorf("%w: dependent %s", ErrEntityNotFound, dependentID)
	}
	if dep.kind != KindCalculated {
		return fmt.Errorf("%w: %s", ErrNotCalculated, dependentID)
	}
	if current, linked := s.bases[dependentID]; linked && current != baseID {
		return fmt.Errorf("%w: %s derives from %s", ErrAlreadyLinked, dependentID, current)
	}

	if err := s.graph.AddEdge(baseID, dependentID); err != nil {
		return err
	}
	s.bases[dependentID] = baseID
	return nil
}

// Base returns the base entity ID of a calculated entity.
func (s *Store) Base(dependentID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bases[dependentID]
	return id, ok
}

// ApplyLive applies a live reading to the direct entity bound to the
// measurement, then recomputes everything derived from it in dependency
// order. It reports whether the direct entity changed; an identical replay
// changes nothing and triggers no fan-out.
func (s *Store) ApplyLive(sensorID, measurementID string, r Reading) (bool, error) {
	e, ok := s.Lookup(sensorID, measurementID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrEntityNotFound, measurementKey(sensorID, measurementID))
	}

	l := s.sensorLock(sensorID)
	l.Lock()
	defer l.Unlock()

	if !e.OnLiveUpdate(r) {
		return false, nil
	}

	now := s.now()
	s.sink.EntityUpdated(s.stateOf(e, now))
	s.propagate(e.id, now)
	return true, nil
}

// Restore offers a persisted snapshot to an entity. It reports whether the
// snapshot was adopted.
func (s *Store) Restore(id string, snap persist.Snapshot) (bool, error) {
	e, err := s.Get(id)
	if err != nil {
		return false, err
	}

	l := s.sensorLock(e.sensorID)
	l.Lock()
	defer l.Unlock()

	now := s.now()
	if !e.OnRestore(snap, now) {
		return false, nil
	}
	if len(snap.Dropped) > 0 {
		s.logger.Warn("snapshot fields dropped on restore", "entity_id", id, "fields", snap.Dropped)
	}
	s.sink.EntityUpdated(s.stateOf(e, now))
	return true, nil
}

// Recompute re-derives one calculated entity and everything downstream of
// it. When the base does not exist yet, or has no value, nothing happens.
func (s *Store) Recompute(id string) (bool, error) {
	e, err := s.Get(id)
	if err != nil {
		return false, err
	}

	l := s.sensorLock(e.sensorID)
	l.Lock()
	defer l.Unlock()

	now := s.now()
	changed, err := s.recomputeOne(id, now)
	if err != nil {
		return false, err
	}
	s.propagate(id, now)
	return changed, nil
}

// RecomputeCalculated re-derives every calculated entity in dependency
// order so that time-based values decay without new readings. It returns
// the number of entities whose value changed.
func (s *Store) RecomputeCalculated() int {
	now := s.now()

	s.mu.RLock()
	var roots []*Entity
	for _, id := range s.order {
		if _, derived := s.bases[id]; !derived {
			roots = append(roots, s.entities[id])
		}
	}
	s.mu.RUnlock()

	n := 0
	seen := make(map[string]bool)
	for _, root := range roots {
		l := s.sensorLock(root.sensorID)
		l.Lock()
		for _, id := range s.graph.Downstream(root.id) {
			if seen[id] {
				continue
			}
			seen[id] = true
			if changed, _ := s.recomputeOne(id, now); changed {
				n++
			}
		}
		l.Unlock()
	}
	return n
}

func (s *Store) propagate(id string, now time.Time) {
	for _, dep := range s.graph.Downstream(id) {
		if _, err := s.recomputeOne(dep, now); err != nil {
			s.logger.Warn("recomputing dependent", "entity_id", dep, "error", err)
		}
	}
}

func (s *Store) recomputeOne(id string, now time.Time) (bool, error) {
	s.mu.RLock()
	e, ok := s.entities[id]
	baseID, linked := s.bases[id]
	base := s.entities[baseID]
	s.mu.RUnlock()

	if !ok {
		return false, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	if e.kind != KindCalculated {
		return false, fmt.Errorf("%w: %s", ErrNotCalculated, id)
	}
	if !linked || base == nil {
		s.logger.Debug("base entity missing, skipping recompute", "entity_id", id)
		return false, nil
	}

	view, prov := base.view()
	if prov == ProvenanceUnknown {
		return false, nil
	}

	if !e.recompute(view, prov, now) {
		return false, nil
	}
	s.sink.EntityUpdated(s.stateOf(e, now))
	return true, nil
}

// State returns the outbound state of an entity.
func (s *Store) State(id string) (State, error) {
	e, err := s.Get(id)
	if err != nil {
		return State{}, err
	}
	return s.stateOf(e, s.now()), nil
}

// States returns the outbound state of every entity, sorted by entity ID.
func (s *Store) States() []State {
	now := s.now()
	entities := s.List()

	out := make([]State, 0, len(entities))
	for _, e := range entities {
		out = append(out, s.stateOf(e, now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// StatesBySensor returns the states of one sensor's entities in the order
// they were added.
func (s *Store) StatesBySensor(sensorID string) []State {
	now := s.now()
	var out []State
	for _, e := range s.List() {
		if e.sensorID == sensorID {
			out = append(out, s.stateOf(e, now))
		}
	}
	return out
}

// Snapshots returns persistence records for every entity holding a value.
// Entities still Unknown are skipped so a checkpoint never overwrites
// stored data with nothing. A sensor's entities are captured under its
// barrier, so a base and its windows never straddle a live update.
func (s *Store) Snapshots() []persist.Record {
	now := s.now()

	var sensors []string
	bySensor := make(map[string][]*Entity)
	for _, e := range s.List() {
		if _, ok := bySensor[e.sensorID]; !ok {
			sensors = append(sensors, e.sensorID)
		}
		bySensor[e.sensorID] = append(bySensor[e.sensorID], e)
	}

	var out []persist.Record
	for _, sensorID := range sensors {
		l := s.sensorLock(sensorID)
		l.Lock()
		for _, e := range bySensor[sensorID] {
			if e.Provenance() == ProvenanceUnknown {
				continue
			}
			out = append(out, persist.Record{
				EntityID: e.id,
				SensorID: e.sensorID,
				Snapshot: e.Snapshot(),
				SavedAt:  now,
			})
		}
		l.Unlock()
	}
	return out
}

// RemoveSensor tears down every entity of a sensor together with its
// edges and returns the removed IDs.
func (s *Store) RemoveSensor(sensorID string) []string {
	l := s.sensorLock(sensorID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	kept := s.order[:0]
	for _, id := range s.order {
		e := s.entities[id]
		if e.sensorID != sensorID {
			kept = append(kept, id)
			continue
		}
		removed = append(removed, id)
		delete(s.entities, id)
		delete(s.bases, id)
		if e.kind == KindDirect {
			delete(s.byMeasurement, measurementKey(e.sensorID, e.measurementID))
		}
		s.graph.Remove(id)
	}
	s.order = kept

	for dep, base := range s.bases {
		if _, ok := s.entities[base]; !ok {
			delete(s.bases, dep)
		}
	}
	return removed
}

func (s *Store) stateOf(e *Entity, now time.Time) State {
	var st sensor.Status
	if s.status != nil {
		st = s.status.Status(e.sensorID)
	}

	e.mu.RLock()
	state := State{
		EntityID:   e.id,
		SensorID:   e.sensorID,
		Key:        e.key,
		Name:       e.name,
		Kind:       e.kind,
		Value:      e.value,
		Provenance: e.provenance,
		LastUpdate: e.lastUpdate,
		Descriptor: e.descriptor,
		Attributes: e.attributes(),
	}
	e.mu.RUnlock()

	state.Available = Availability(s.policy, Input{
		Kind:         e.kind,
		Provenance:   state.Provenance,
		LastUpdate:   state.LastUpdate,
		UpdatePeriod: st.UpdatePeriod,
		SensorOnline: st.Online,
		Now:          now,
	})
	return state
}
