package loader

import "errors"

var (
	// ErrMaxDepthExceeded is returned when the maximum relationship depth is exceeded
	ErrMaxDepthExceeded = errors.New("maximum relationship depth exceeded")

	// ErrUnknownRelation is returned when a relation name is not classified on the owner's map
	ErrUnknownRelation = errors.New("unknown relation")

	// ErrNotProxyable is returned when a lazy proxy is requested for a relation that must load eagerly
	ErrNotProxyable = errors.New("relation is not proxyable")

	// ErrUnknownMorphAlias is returned when a discriminator value has no registered entity type
	ErrUnknownMorphAlias = errors.New("unknown morph alias")

	// ErrNoRecords is returned when a single-record load has no owner record to load against
	ErrNoRecords = errors.New("no records found")
)
