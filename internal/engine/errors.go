package engine

import "errors"

// Domain errors for the engine package.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("engine: already started")

	// ErrMissingDependency is returned by New when a required collaborator
	// is nil.
	ErrMissingDependency = errors.New("engine: missing dependency")
)
