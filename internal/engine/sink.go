package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-weather/internal/entity"
	"github.com/nerrad567/gray-logic-weather/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-weather/internal/persist"
)

// DefaultQueueSize is the per-sink buffer used when Options leaves it zero.
const DefaultQueueSize = 1024

// historyWriteTimeout bounds a single history insert.
const historyWriteTimeout = 5 * time.Second

type sinkEvent struct {
	added bool
	state entity.State
}

// AsyncSink decouples a slow sink from the update path. Events are queued
// and delivered in order by a single worker; when the queue is full the
// event is dropped and counted rather than blocking the caller.
type AsyncSink struct {
	name   string
	target entity.Sink
	queue  chan sinkEvent
	logger Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewAsyncSink starts a worker delivering to target. size <= 0 selects
// DefaultQueueSize.
func NewAsyncSink(name string, target entity.Sink, size int, logger Logger) *AsyncSink {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	a := &AsyncSink{
		name:   name,
		target: target,
		queue:  make(chan sinkEvent, size),
		logger: logger,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// EntityAdded implements entity.Sink.
func (a *AsyncSink) EntityAdded(s entity.State) {
	a.enqueue(sinkEvent{added: true, state: s})
}

// EntityUpdated implements entity.Sink.
func (a *AsyncSink) EntityUpdated(s entity.State) {
	a.enqueue(sinkEvent{state: s})
}

func (a *AsyncSink) enqueue(ev sinkEvent) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- ev:
	default:
		if a.dropped.Add(1)%100 == 1 {
			a.logger.Warn("sink queue full, dropping events", "sink", a.name, "dropped", a.dropped.Load())
		}
	}
}

func (a *AsyncSink) run() {
	defer a.wg.Done()
	for ev := range a.queue {
		if ev.added {
			a.target.EntityAdded(ev.state)
		} else {
			a.target.EntityUpdated(ev.state)
		}
		a.delivered.Add(1)
	}
}

// Close stops accepting events and waits until the queue is drained.
// Safe to call more than once.
func (a *AsyncSink) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
}

// SinkStats reports queue counters.
type SinkStats struct {
	Name      string `json:"name"`
	Queued    int    `json:"queued"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// Stats returns the current counters.
func (a *AsyncSink) Stats() SinkStats {
	return SinkStats{
		Name:      a.name,
		Queued:    len(a.queue),
		Delivered: a.delivered.Load(),
		Dropped:   a.dropped.Load(),
	}
}

// HistorySink records every entity value change in the history table.
type HistorySink struct {
	repo   persist.HistoryRepository
	logger Logger
}

// NewHistorySink creates a history sink.
func NewHistorySink(repo persist.HistoryRepository, logger Logger) *HistorySink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &HistorySink{repo: repo, logger: logger}
}

// EntityAdded implements entity.Sink. New entities have no value yet.
func (h *HistorySink) EntityAdded(entity.State) {}

// EntityUpdated implements entity.Sink.
func (h *HistorySink) EntityUpdated(s entity.State) {
	if s.Provenance == entity.ProvenanceUnknown {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()

	err := h.repo.Record(ctx, persist.HistoryEntry{
		EntityID:   s.EntityID,
		Value:      s.Value,
		Available:  s.Available,
		RecordedAt: s.LastUpdate,
	})
	if err != nil {
		h.logger.Warn("failed to record entity history", "entity_id", s.EntityID, "error", err)
	}
}

// TelemetryWriter accepts entity values for time-series storage.
// *influxdb.Client satisfies it.
type TelemetryWriter interface {
	WriteEntityValue(v influxdb.EntityValue)
}

// TelemetrySink forwards entity changes to a TelemetryWriter.
type TelemetrySink struct {
	writer TelemetryWriter
}

// NewTelemetrySink creates a telemetry sink.
func NewTelemetrySink(w TelemetryWriter) *TelemetrySink {
	return &TelemetrySink{writer: w}
}

// EntityAdded implements entity.Sink.
func (t *TelemetrySink) EntityAdded(entity.State) {}

// EntityUpdated implements entity.Sink.
func (t *TelemetrySink) EntityUpdated(s entity.State) {
	if s.Provenance == entity.ProvenanceUnknown {
		return
	}
	t.writer.WriteEntityValue(influxdb.EntityValue{
		EntityID:  s.EntityID,
		SensorID:  s.SensorID,
		Key:       s.Key,
		Value:     s.Value,
		Available: s.Available,
		At:        s.LastUpdate,
	})
}
