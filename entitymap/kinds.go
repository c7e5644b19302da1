package entitymap

// RelationKind identifies one of the twelve supported relationship variants.
type RelationKind int

const (
	// HasOne is the owning side of a one-to-one relationship; the foreign
	// key lives on the related record.
	HasOne RelationKind = iota
	// HasMany is a one-to-many relationship keyed by a foreign key on the
	// related records.
	HasMany
	// BelongsTo is the inverse side of has-one/has-many; the foreign key
	// lives on the owning record itself.
	BelongsTo
	// HasManyThrough reaches related records across an intermediate entity.
	HasManyThrough
	// ManyToMany links two entities through a pivot table.
	ManyToMany
	// MorphOne is a polymorphic has-one; the related record carries a
	// (type, id) discriminator pair pointing back at the owner.
	MorphOne
	// MorphMany is a polymorphic has-many.
	MorphMany
	// MorphTo is the polymorphic inverse; the owning record carries the
	// discriminator pair and the target type varies per record.
	MorphTo
	// MorphToMany is a polymorphic many-to-many from the morphable side.
	MorphToMany
	// MorphedByMany is the inverse of MorphToMany, declared on the
	// concrete side.
	MorphedByMany
	// EmbedsOne stores a single value object inline in the owner's record.
	EmbedsOne
	// EmbedsMany stores a collection of value objects inline.
	EmbedsMany
)

// String returns the string representation of the relation kind.
func (k RelationKind) String() string {
	switch k {
	case HasOne:
		return "has_one"
	case HasMany:
		return "has_many"
	case BelongsTo:
		return "belongs_to"
	case HasManyThrough:
		return "has_many_through"
	case ManyToMany:
		return "many_to_many"
	case MorphOne:
		return "morph_one"
	case MorphMany:
		return "morph_many"
	case MorphTo:
		return "morph_to"
	case MorphToMany:
		return "morph_to_many"
	case MorphedByMany:
		return "morphed_by_many"
	case EmbedsOne:
		return "embeds_one"
	case EmbedsMany:
		return "embeds_many"
	default:
		return "unknown"
	}
}

// Single reports whether the relation yields a single related entity.
// Embedded relations are in neither the single nor the many set.
func (k RelationKind) Single() bool {
	switch k {
	case HasOne, BelongsTo, MorphOne, MorphTo:
		return true
	}
	return false
}

// Many reports whether the relation yields a collection.
func (k RelationKind) Many() bool {
	switch k {
	case HasMany, HasManyThrough, ManyToMany, MorphMany, MorphToMany, MorphedByMany:
		return true
	}
	return false
}

// LocalOwner reports whether the linking key is stored on the owning record.
func (k RelationKind) LocalOwner() bool {
	return k == BelongsTo || k == MorphTo
}

// ForeignOwner reports whether the linking key is stored on the related
// record (or in a pivot table, which is always foreign-owned).
func (k RelationKind) ForeignOwner() bool {
	switch k {
	case HasOne, HasMany, HasManyThrough, ManyToMany, MorphOne, MorphMany, MorphToMany, MorphedByMany:
		return true
	}
	return false
}

// Pivot reports whether the link is stored in a join-only table.
func (k RelationKind) Pivot() bool {
	return k == ManyToMany || k == MorphToMany || k == MorphedByMany
}

// Polymorphic reports whether the target type varies per record. Only the
// polymorphic inverse has no fixed target class.
func (k RelationKind) Polymorphic() bool {
	return k == MorphTo
}

// Morphs reports whether the relation uses a (type, id) discriminator pair.
func (k RelationKind) Morphs() bool {
	switch k {
	case MorphOne, MorphMany, MorphTo, MorphToMany, MorphedByMany:
		return true
	}
	return false
}

// Embedded reports whether the relation is a value object stored inline in
// the owner's own record.
func (k RelationKind) Embedded() bool {
	return k == EmbedsOne || k == EmbedsMany
}

// AlwaysEager reports whether the relation must be loaded with its owner by
// default.
func (k RelationKind) AlwaysEager() bool {
	return k == HasOne || k == MorphOne
}

// ProxyIneligible reports whether a lazy placeholder for this relation would
// be observably incorrect, forcing eager resolution.
func (k RelationKind) ProxyIneligible() bool {
	return k == HasOne || k == MorphOne || k == EmbedsOne || k == EmbedsMany
}
