package entitymap

import "reflect"

// Relation is the static definition of a relationship, produced exactly once
// per relation name during the classification pass and stored in the entity
// map. It carries resolved or convention-derived key and table names; it
// never references a live entity instance.
type Relation struct {
	// Name is the identifier under which the relation is known to the map.
	Name string

	// Kind is the relationship variant.
	Kind RelationKind

	// Target is the related entity struct type. Nil for MorphTo, whose
	// target varies per record.
	Target reflect.Type

	// Through is the intermediate entity type for HasManyThrough.
	Through reflect.Type

	// ForeignKey is the linking column: on the related table for
	// foreign-owned kinds, on the owner's table for BelongsTo, on the
	// through table for HasManyThrough.
	ForeignKey string

	// LocalKey is the owner-side key column, usually the primary key.
	LocalKey string

	// OtherKey is the related-side key column: the target primary key for
	// BelongsTo, the related pivot column for many-to-many kinds.
	OtherKey string

	// SecondKey is the column on the target table referencing the
	// intermediate entity for HasManyThrough.
	SecondKey string

	// PivotTable is the join table for pivot-backed kinds.
	PivotTable string

	// MorphType and MorphID are the discriminator column pair for
	// polymorphic kinds.
	MorphType string
	MorphID   string

	// Eager marks the relation for loading by default.
	Eager bool

	// ProxyIneligible marks relations that must never be lazily proxied.
	ProxyIneligible bool

	// Dynamic marks relations registered through the dynamic-resolver path
	// rather than discovered as mapping methods.
	Dynamic bool
}

// Embedded reports whether the relation is an inline value object.
func (r *Relation) Embedded() bool {
	return r.Kind.Embedded()
}

// TargetClass returns the related entity class name, or "" when the target
// is polymorphic or embedded without a named type.
func (r *Relation) TargetClass() string {
	if r.Target == nil {
		return ""
	}
	return r.Target.Name()
}
