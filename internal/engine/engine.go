package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-weather/internal/entity"
	"github.com/nerrad567/gray-logic-weather/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-weather/internal/persist"
	"github.com/nerrad567/gray-logic-weather/internal/sensor"
)

// Loop timing.
const (
	defaultRecomputeInterval  = time.Minute
	defaultCheckpointInterval = 5 * time.Minute
	pruneInterval             = time.Hour
	checkpointTimeout         = 10 * time.Second
)

// Logger defines the logging interface used by the engine.
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

// Options configures an Engine.
type Options struct {
	// Registry holds sensor metadata and liveness. Required.
	Registry *sensor.Registry

	// Snapshots persists entity state across restarts. Required.
	Snapshots persist.SnapshotRepository

	// History records every value change. Optional.
	History persist.HistoryRepository

	// Telemetry receives every value change for time-series storage. Optional.
	Telemetry TelemetryWriter

	// Publisher receives every entity addition and change, typically the
	// MQTT state publisher. Optional.
	Publisher entity.Sink

	// Config holds the policy constants and loop intervals.
	Config config.EntitiesConfig

	// QueueSize is the buffer of each asynchronous sink.
	QueueSize int

	// Logger is optional structured logger.
	Logger Logger

	// Clock overrides time.Now.
	Clock func() time.Time
}

// Engine coordinates the sensor registry, the entity store and the
// outbound sinks. It implements the bridge's Handler interface.
//
// Thread Safety: All methods are safe for concurrent use.
type Engine struct {
	cfg       config.EntitiesConfig
	registry  *sensor.Registry
	snapshots persist.SnapshotRepository
	history   persist.HistoryRepository
	store     *entity.Store
	sink      entity.Sink
	async     []*AsyncSink
	tracker   *availabilityTracker
	now       func() time.Time
	logger    Logger

	// buildMu serialises entity set construction per process.
	buildMu sync.Mutex
	built   map[string]sensor.Sensor
	pending map[string]persist.Snapshot

	started  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup

	updatesApplied atomic.Uint64
	updatesIgnored atomic.Uint64
	checkpoints    atomic.Uint64
	lastCheckpoint atomic.Int64
}

// New creates an engine. Call Start to restore state and begin polling.
func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("%w: registry", ErrMissingDependency)
	}
	if opts.Snapshots == nil {
		return nil, fmt.Errorf("%w: snapshot repository", ErrMissingDependency)
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		cfg:       opts.Config,
		registry:  opts.Registry,
		snapshots: opts.Snapshots,
		history:   opts.History,
		tracker:   newAvailabilityTracker(),
		now:       now,
		logger:    logger,
		built:     make(map[string]sensor.Sensor),
		pending:   make(map[string]persist.Snapshot),
		done:      make(chan struct{}),
	}

	sinks := entity.MultiSink{e.tracker}
	if opts.Publisher != nil {
		e.async = append(e.async, NewAsyncSink("publisher", opts.Publisher, opts.QueueSize, logger))
	}
	if opts.History != nil {
		e.async = append(e.async, NewAsyncSink("history", NewHistorySink(opts.History, logger), opts.QueueSize, logger))
	}
	if opts.Telemetry != nil {
		e.async = append(e.async, NewAsyncSink("telemetry", NewTelemetrySink(opts.Telemetry), opts.QueueSize, logger))
	}
	for _, a := range e.async {
		sinks = append(sinks, a)
	}
	e.sink = sinks

	policy := entity.Policy{
		AvailabilityMultiplier: opts.Config.AvailabilityMultiplier,
		RainingWindow:          opts.Config.RainingWindow,
	}
	e.store = entity.NewStore(policy, opts.Registry, sinks)
	e.store.SetLogger(logger)
	e.store.SetClock(now)

	return e, nil
}

// Store returns the entity store.
func (e *Engine) Store() *entity.Store {
	return e.store
}

// Registry returns the sensor registry.
func (e *Engine) Registry() *sensor.Registry {
	return e.registry
}

// History returns the history repository, nil when history is disabled.
func (e *Engine) History() persist.HistoryRepository {
	return e.history
}

// Start loads known sensors and persisted snapshots, builds and restores
// every entity before any live event is processed, then starts the poll
// loop.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if err := e.registry.RefreshCache(ctx); err != nil {
		return fmt.Errorf("loading sensors: %w", err)
	}

	snaps, err := e.snapshots.LoadAll(ctx)
	if err != nil {
		e.logger.Warn("loading snapshots failed, starting without state", "error", err)
		snaps = nil
	}

	e.buildMu.Lock()
	for id, snap := range snaps {
		e.pending[id] = snap
	}
	sensors := e.registry.List()
	restored := 0
	for _, s := range sensors {
		restored += e.buildSensor(ctx, s)
	}
	e.buildMu.Unlock()

	changed := e.store.RecomputeCalculated()

	e.logger.Info("engine started",
		"sensors", len(sensors),
		"entities", e.store.Len(),
		"restored", restored,
		"recomputed", changed)

	e.wg.Add(1)
	go e.loop()
	return nil
}

// Stop ends the poll loop, writes a final checkpoint and drains the sinks.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.done)
		e.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), checkpointTimeout)
		defer cancel()
		if _, err := e.Checkpoint(ctx); err != nil {
			e.logger.Error("final checkpoint failed", "error", err)
		}

		for _, a := range e.async {
			a.Close()
		}
		e.logger.Info("engine stopped")
	})
}

// HandleAdded registers or updates a sensor and (re)builds its entities.
// Values of a rebuilt sensor carry over to entities with the same ID.
func (e *Engine) HandleAdded(ctx context.Context, ev sensor.Added) error {
	s := ev.Sensor
	if err := checkKeys(s, e.cfg); err != nil {
		return err
	}
	if _, err := e.registry.Upsert(ctx, &s); err != nil {
		return fmt.Errorf("registering sensor %s: %w", s.ID, err)
	}

	e.buildMu.Lock()
	defer e.buildMu.Unlock()
	e.buildSensor(ctx, s)
	return nil
}

// HandleUpdated applies one live measurement value. Updates for unknown
// sensors or measurements are logged and ignored.
func (e *Engine) HandleUpdated(ctx context.Context, ev sensor.Updated) error {
	if _, err := e.registry.Get(ctx, ev.SensorID); err != nil {
		if errors.Is(err, sensor.ErrSensorNotFound) {
			e.updatesIgnored.Add(1)
			e.logger.Debug("update for unknown sensor ignored", "sensor_id", ev.SensorID)
			return nil
		}
		return fmt.Errorf("looking up sensor %s: %w", ev.SensorID, err)
	}

	wasOnline := e.registry.Status(ev.SensorID).Online
	e.registry.MarkSeen(ev.SensorID)

	_, err := e.store.ApplyLive(ev.SensorID, ev.MeasurementID, entity.Reading{
		Value:      ev.Value,
		PriorValue: ev.PriorValue,
		Timestamp:  ev.Timestamp,
		IsError:    ev.IsError,
		ErrorText:  ev.ErrorText,
		ByEvent:    ev.ByEvent,
	})
	if err != nil {
		if errors.Is(err, entity.ErrEntityNotFound) {
			e.updatesIgnored.Add(1)
			e.logger.Debug("update for unknown measurement ignored",
				"sensor_id", ev.SensorID,
				"measurement_id", ev.MeasurementID)
			return nil
		}
		return err
	}
	e.updatesApplied.Add(1)

	if !wasOnline {
		e.refreshAvailability(ev.SensorID)
	}
	return nil
}

// HandleStatus applies a liveness report and republishes every entity of
// the sensor whose availability changed as a result.
func (e *Engine) HandleStatus(ctx context.Context, ev sensor.StatusChanged) error {
	if _, err := e.registry.SetStatus(ctx, ev); err != nil {
		if errors.Is(err, sensor.ErrSensorNotFound) {
			e.logger.Debug("status for unknown sensor ignored", "sensor_id", ev.SensorID)
			return nil
		}
		return err
	}
	e.refreshAvailability(ev.SensorID)
	return nil
}

// Checkpoint persists every entity snapshot in one transaction and returns
// the number written. A snapshot that cannot be encoded is logged and left
// out so it cannot hold back the rest.
func (e *Engine) Checkpoint(ctx context.Context) (int, error) {
	all := e.store.Snapshots()
	recs := all[:0]
	for _, rec := range all {
		if _, err := persist.Marshal(rec.Snapshot); err != nil {
			e.logger.Error("skipping unencodable snapshot", "entity_id", rec.EntityID, "error", err)
			continue
		}
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return 0, nil
	}
	if err := e.snapshots.SaveAll(ctx, recs); err != nil {
		return 0, fmt.Errorf("checkpoint: %w", err)
	}
	e.checkpoints.Add(1)
	e.lastCheckpoint.Store(e.now().UnixNano())
	e.logger.Debug("checkpoint written", "entities", len(recs))
	return len(recs), nil
}

// Poll re-derives calculated entities and republishes availability
// changes caused by the passage of time. The loop calls it every
// RecomputeInterval.
func (e *Engine) Poll() int {
	changed := e.store.RecomputeCalculated()
	e.refreshAvailability("")
	return changed
}

// buildSensor creates the entity set of s, restoring each entity from the
// previous in-memory value or a stored snapshot. It returns how many
// entities were restored. The caller holds buildMu.
func (e *Engine) buildSensor(ctx context.Context, s sensor.Sensor) int {
	carry := make(map[string]persist.Snapshot)
	if prev, ok := e.built[s.ID]; ok {
		if sameMeasurements(prev, s) {
			e.built[s.ID] = s
			return 0
		}
		for _, ent := range e.store.List() {
			if ent.SensorID() == s.ID && ent.Provenance() != entity.ProvenanceUnknown {
				carry[ent.ID()] = ent.Snapshot()
			}
		}
		removed := e.store.RemoveSensor(s.ID)
		e.logger.Info("rebuilding sensor entities", "sensor_id", s.ID, "removed", len(removed))
	}

	entities, links := entitySet(s, e.cfg)
	ids := make(map[string]bool, len(entities))
	for _, ent := range entities {
		if err := e.store.Add(ent); err != nil {
			e.logger.Warn("skipping entity", "entity_id", ent.ID(), "error", err)
			continue
		}
		ids[ent.ID()] = true
	}
	for _, l := range links {
		if !ids[l.base] || !ids[l.dependent] {
			continue
		}
		if err := e.store.Link(l.base, l.dependent); err != nil {
			e.logger.Warn("linking entities", "base", l.base, "dependent", l.dependent, "error", err)
		}
	}

	restored := 0
	for _, ent := range entities {
		if !ids[ent.ID()] {
			continue
		}
		snap, ok := carry[ent.ID()]
		if !ok {
			snap, ok = e.pending[ent.ID()]
		}
		delete(e.pending, ent.ID())
		if !ok {
			continue
		}
		if adopted, err := e.store.Restore(ent.ID(), snap); err == nil && adopted {
			restored++
		}
	}

	for id := range carry {
		if !ids[id] {
			if err := e.snapshots.Delete(ctx, id); err != nil {
				e.logger.Warn("deleting stale snapshot", "entity_id", id, "error", err)
			}
		}
	}

	for _, ent := range entities {
		if ids[ent.ID()] && ent.Kind() == entity.KindCalculated {
			if _, err := e.store.Recompute(ent.ID()); err != nil {
				e.logger.Warn("recomputing entity", "entity_id", ent.ID(), "error", err)
			}
		}
	}

	e.built[s.ID] = s
	return restored
}

// refreshAvailability republishes entities whose availability differs from
// what was last reported. An empty sensorID checks every entity.
func (e *Engine) refreshAvailability(sensorID string) {
	var states []entity.State
	if sensorID == "" {
		states = e.store.States()
	} else {
		states = e.store.StatesBySensor(sensorID)
	}
	for _, st := range states {
		if e.tracker.changed(st) {
			e.sink.EntityUpdated(st)
		}
	}
}

func (e *Engine) loop() {
	defer e.wg.Done()

	recompute := e.cfg.RecomputeInterval
	if recompute <= 0 {
		recompute = defaultRecomputeInterval
	}
	checkpoint := e.cfg.CheckpointInterval
	if checkpoint <= 0 {
		checkpoint = defaultCheckpointInterval
	}

	recomputeTick := time.NewTicker(recompute)
	defer recomputeTick.Stop()
	checkpointTick := time.NewTicker(checkpoint)
	defer checkpointTick.Stop()
	pruneTick := time.NewTicker(pruneInterval)
	defer pruneTick.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-recomputeTick.C:
			if n := e.Poll(); n > 0 {
				e.logger.Debug("calculated entities changed", "count", n)
			}
		case <-checkpointTick.C:
			ctx, cancel := context.WithTimeout(context.Background(), checkpointTimeout)
			if _, err := e.Checkpoint(ctx); err != nil {
				e.logger.Error("checkpoint failed", "error", err)
			}
			cancel()
		case <-pruneTick.C:
			e.pruneHistory()
		}
	}
}

func (e *Engine) pruneHistory() {
	if e.history == nil || e.cfg.HistoryRetention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), checkpointTimeout)
	defer cancel()

	n, err := e.history.Prune(ctx, e.cfg.HistoryRetention)
	if err != nil {
		e.logger.Warn("pruning entity history failed", "error", err)
		return
	}
	if n > 0 {
		e.logger.Info("pruned entity history", "rows", n)
	}
}

// Stats is a point-in-time view of engine counters.
type Stats struct {
	Sensors        int         `json:"sensors"`
	SensorsOnline  int         `json:"sensors_online"`
	Entities       int         `json:"entities"`
	UpdatesApplied uint64      `json:"updates_applied"`
	UpdatesIgnored uint64      `json:"updates_ignored"`
	Checkpoints    uint64      `json:"checkpoints"`
	LastCheckpoint *time.Time  `json:"last_checkpoint,omitempty"`
	Sinks          []SinkStats `json:"sinks"`
}

// Stats returns current counters.
func (e *Engine) Stats() Stats {
	st := Stats{
		Sensors:        e.registry.Count(),
		SensorsOnline:  e.registry.OnlineCount(),
		Entities:       e.store.Len(),
		UpdatesApplied: e.updatesApplied.Load(),
		UpdatesIgnored: e.updatesIgnored.Load(),
		Checkpoints:    e.checkpoints.Load(),
		Sinks:          make([]SinkStats, 0, len(e.async)),
	}
	if ns := e.lastCheckpoint.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		st.LastCheckpoint = &t
	}
	for _, a := range e.async {
		st.Sinks = append(st.Sinks, a.Stats())
	}
	return st
}

// availabilityTracker remembers the last availability reported per entity.
type availabilityTracker struct {
	mu   sync.Mutex
	last map[string]bool
}

func newAvailabilityTracker() *availabilityTracker {
	return &availabilityTracker{last: make(map[string]bool)}
}

func (t *availabilityTracker) EntityAdded(s entity.State) {
	t.record(s)
}

func (t *availabilityTracker) EntityUpdated(s entity.State) {
	t.record(s)
}

func (t *availabilityTracker) record(s entity.State) {
	t.mu.Lock()
	t.last[s.EntityID] = s.Available
	t.mu.Unlock()
}

func (t *availabilityTracker) changed(s entity.State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.last[s.EntityID]
	return !ok || prev != s.Available
}
