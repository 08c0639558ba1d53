// Package engine wires sensors, entities and sinks together.
//
// At Start the engine loads every known sensor and all persisted entity
// snapshots, builds each sensor's entity set and restores it, so values
// survive a restart before the first radio packet arrives. Afterwards it
// consumes sensor events through HandleAdded, HandleUpdated and
// HandleStatus and runs a loop that re-derives calculated entities,
// republishes availability changes, checkpoints snapshots and prunes
// history.
//
// Slow consumers (MQTT publishing, history, telemetry) sit behind an
// AsyncSink each, so the update path never waits on I/O.
package engine
