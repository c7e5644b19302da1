package entitymap

import "errors"

var (
	// ErrNoSuchRelation is returned when a relation name is not declared on
	// the mapping, statically or dynamically.
	ErrNoSuchRelation = errors.New("no such relation")

	// ErrMapperNotFound is returned when the directory has no mapper for a
	// related entity type.
	ErrMapperNotFound = errors.New("mapper not found")

	// ErrUnknownMorphAlias is returned when a discriminator value has no
	// entry in the morph registry.
	ErrUnknownMorphAlias = errors.New("unknown morph alias")

	// ErrAlreadyBooted is returned when a mutation is attempted on a map
	// whose classification pass has completed.
	ErrAlreadyBooted = errors.New("entity map already booted")

	// ErrNotBooted is returned when descriptors are requested from a map
	// whose classification pass has not run.
	ErrNotBooted = errors.New("entity map not booted")

	// ErrMissingTarget is returned when a factory that requires a fixed
	// target entity is called without one.
	ErrMissingTarget = errors.New("relation requires a target entity")
)
