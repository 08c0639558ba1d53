// Package persist turns entity state into durable records and back.
//
// The codec (Encode/Decode, Marshal/Unmarshal) maps a Snapshot to a
// versioned attribute set:
//
//	{
//	  "version": 1,
//	  "state": 2.5,
//	  "last_updated": "2026-03-01T10:00:00Z",
//	  "prior_value": 10.0,           // optional
//	  "error": "sensor error",       // optional
//	  "by_event": false,             // optional
//	  "window_last_update": "...",   // rolling windows only
//	  "window_entries": [["2026-03-01T09:45:00Z", 0.3], ...]
//	}
//
// Decoding is tolerant by contract: unknown keys are ignored, missing keys
// take zero values and a malformed field is dropped without failing the
// rest. Only a blob that is not a JSON object is rejected.
//
// SQLiteSnapshotRepository keeps one blob per entity; SQLiteHistoryRepository
// keeps an append-only log of value changes with retention pruning.
package persist
