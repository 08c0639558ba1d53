package entity

import (
	"time"

	"github.com/nerrad567/gray-logic-weather/internal/sensor"
)

// State is the outbound view of an entity.
type State struct {
	EntityID   string            `json:"entity_id"`
	SensorID   string            `json:"sensor_id"`
	Key        string            `json:"key"`
	Name       string            `json:"name"`
	Kind       Kind              `json:"kind"`
	Value      any               `json:"value"`
	Available  bool              `json:"available"`
	Provenance Provenance        `json:"provenance"`
	LastUpdate time.Time         `json:"last_update"`
	Descriptor sensor.Descriptor `json:"descriptor"`
	Attributes map[string]any    `json:"attributes"`
}

// Sink receives entities as they are created and changed. The store calls
// it synchronously on the update path, so implementations must not block.
type Sink interface {
	EntityAdded(State)
	EntityUpdated(State)
}

// NopSink discards everything.
type NopSink struct{}

// EntityAdded implements Sink.
func (NopSink) EntityAdded(State) {}

// EntityUpdated implements Sink.
func (NopSink) EntityUpdated(State) {}

// MultiSink fans out to several sinks in order.
type MultiSink []Sink

// EntityAdded implements Sink.
func (m MultiSink) EntityAdded(s State) {
	for _, sink := range m {
		sink.EntityAdded(s)
	}
}

// EntityUpdated implements Sink.
func (m MultiSink) EntityUpdated(s State) {
	for _, sink := range m {
		sink.EntityUpdated(s)
	}
}
