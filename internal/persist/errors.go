package persist

import "errors"

var (
	// ErrSnapshotNotFound is returned when no snapshot is stored for an entity.
	ErrSnapshotNotFound = errors.New("persist: snapshot not found")

	// ErrMalformedBlob is returned when a stored blob is not a JSON object.
	ErrMalformedBlob = errors.New("persist: malformed snapshot blob")

	// ErrEntityIDRequired is returned when a write has no entity ID.
	ErrEntityIDRequired = errors.New("persist: entity id is required")
)
