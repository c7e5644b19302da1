package entitymap

import (
	"fmt"
	"reflect"

	"github.com/relorm/relorm/internal/util/inflect"
	"github.com/relorm/relorm/morph"
)

// Descriptor is the runtime form of a relation, bound to a concrete owning
// instance: the resolved keys and tables plus the target mapper. It is
// created per access, owned by the caller, and never cached by the engine.
type Descriptor struct {
	// Relation is the static definition the descriptor was resolved from.
	Relation *Relation

	// Owner is the entity instance the descriptor is bound to.
	Owner interface{}

	// Mapper is the related entity's mapper. Nil for embedded relations and
	// for unresolved polymorphic inverses.
	Mapper Mapper

	// Table is the related entity's table.
	Table string

	// Key columns, resolved per the relation kind.
	ForeignKey string
	LocalKey   string
	OtherKey   string
	SecondKey  string
	PivotTable string

	// MorphType and MorphID are the discriminator columns for polymorphic
	// kinds; MorphValue is the resolved discriminator value.
	MorphType  string
	MorphID    string
	MorphValue string

	// Unresolved marks a polymorphic inverse whose discriminator value is
	// absent on the owning instance: multiple target types remain possible
	// and a single query cannot span them, so resolution is deferred to
	// hydration time.
	Unresolved bool
}

// Descriptor resolves a relation against a concrete owning instance. The
// map must be booted; resolution is pure, reads the entity map and at most
// one field of the owner, and never mutates classification state.
func (m *Map) Descriptor(owner interface{}, name string, dir Directory, morphs *morph.Registry) (*Descriptor, error) {
	if !m.Booted() {
		return nil, fmt.Errorf("entitymap: %s: %w", m.mapping, ErrNotBooted)
	}

	rel, ok := m.Relation(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no relation %q", ErrNoSuchRelation, m.mapping, name)
	}

	if err := m.checkOwner(owner); err != nil {
		return nil, err
	}

	switch {
	case rel.Kind.Embedded():
		return &Descriptor{Relation: rel, Owner: owner}, nil
	case rel.Kind == MorphTo:
		return m.morphToDescriptor(rel, owner, dir, morphs)
	default:
		return m.plainDescriptor(rel, owner, dir, morphs)
	}
}

func (m *Map) checkOwner(owner interface{}) error {
	t := reflect.TypeOf(owner)
	if t == nil {
		return fmt.Errorf("entitymap: %s: owner instance is nil", m.mapping)
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t != m.entity {
		return fmt.Errorf("entitymap: %s maps %s, got owner of type %s", m.mapping, m.class, t.Name())
	}
	return nil
}

// plainDescriptor binds a relation with a fixed target class.
func (m *Map) plainDescriptor(rel *Relation, owner interface{}, dir Directory, morphs *morph.Registry) (*Descriptor, error) {
	target, ok := lookupMapper(dir, rel.Target)
	if !ok {
		return nil, fmt.Errorf("%w: no mapper for %s (relation %q on %s)",
			ErrMapperNotFound, rel.TargetClass(), rel.Name, m.mapping)
	}

	desc := &Descriptor{
		Relation:   rel,
		Owner:      owner,
		Mapper:     target,
		Table:      target.EntityMap().Table(),
		ForeignKey: rel.ForeignKey,
		LocalKey:   rel.LocalKey,
		OtherKey:   rel.OtherKey,
		SecondKey:  rel.SecondKey,
		PivotTable: rel.PivotTable,
		MorphType:  rel.MorphType,
		MorphID:    rel.MorphID,
	}

	switch rel.Kind {
	case MorphOne, MorphMany, MorphToMany:
		// Related rows point back at the owner; the discriminator value is
		// the owner's own alias.
		desc.MorphValue = aliasFor(morphs, m.entity)
	case MorphedByMany:
		// The pivot discriminator identifies the related morphable records.
		desc.MorphValue = aliasFor(morphs, rel.Target)
	}

	return desc, nil
}

// morphToDescriptor resolves the polymorphic inverse. An absent
// discriminator value yields an explicit unresolved descriptor rather than
// an error; a present value resolves through the morph registry and then
// behaves like belongs-to.
func (m *Map) morphToDescriptor(rel *Relation, owner interface{}, dir Directory, morphs *morph.Registry) (*Descriptor, error) {
	raw, _ := ReadField(owner, rel.MorphType)
	alias, present := presentString(raw)
	if !present {
		return &Descriptor{
			Relation:   rel,
			Owner:      owner,
			MorphType:  rel.MorphType,
			MorphID:    rel.MorphID,
			Unresolved: true,
		}, nil
	}

	targetType, ok := resolveAlias(morphs, alias)
	if !ok {
		return nil, fmt.Errorf("%w: %q (relation %q on %s)", ErrUnknownMorphAlias, alias, rel.Name, m.mapping)
	}

	target, ok := lookupMapper(dir, targetType)
	if !ok {
		return nil, fmt.Errorf("%w: no mapper for %s (relation %q on %s)",
			ErrMapperNotFound, targetType.Name(), rel.Name, m.mapping)
	}

	return &Descriptor{
		Relation:   rel,
		Owner:      owner,
		Mapper:     target,
		Table:      target.EntityMap().Table(),
		ForeignKey: rel.MorphID,
		OtherKey:   target.EntityMap().PrimaryKey(),
		MorphType:  rel.MorphType,
		MorphID:    rel.MorphID,
		MorphValue: alias,
	}, nil
}

func lookupMapper(dir Directory, t reflect.Type) (Mapper, bool) {
	if dir == nil || t == nil {
		return nil, false
	}
	return dir.Mapper(t)
}

// resolveAlias looks the discriminator value up in the morph registry.
// Registries are optional; without one, only alias == class name can match,
// which resolveAlias cannot decide, so absence means failure.
func resolveAlias(morphs *morph.Registry, alias string) (reflect.Type, bool) {
	if morphs == nil {
		return nil, false
	}
	return morphs.TypeFor(alias)
}

// aliasFor produces the discriminator value for an entity type: its
// registered alias, or snake_case of the class name when unaliased.
func aliasFor(morphs *morph.Registry, t reflect.Type) string {
	if morphs != nil {
		if alias, ok := morphs.AliasOf(t); ok {
			return alias
		}
	}
	return inflect.ToSnakeCase(t.Name())
}
