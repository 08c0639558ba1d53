package entity

import "errors"

var (
	// ErrEntityNotFound is returned when an entity does not exist in the store.
	ErrEntityNotFound = errors.New("entity: not found")

	// ErrEntityExists is returned when adding an entity whose ID is taken.
	ErrEntityExists = errors.New("entity: already exists")

	// ErrNotCalculated is returned when a calculated-only operation is
	// applied to a direct entity.
	ErrNotCalculated = errors.New("entity: not a calculated entity")

	// ErrAlreadyLinked is returned when a calculated entity is linked to a
	// second base.
	ErrAlreadyLinked = errors.New("entity: dependent already has a base")

	// ErrSelfDependency is returned when an entity is linked to itself.
	ErrSelfDependency = errors.New("entity: entity cannot depend on itself")

	// ErrCycle is returned when a new edge would close a cycle.
	ErrCycle = errors.New("entity: dependency cycle")
)
