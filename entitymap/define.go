package entitymap

import (
	"fmt"
	"reflect"

	"github.com/relorm/relorm/internal/util/inflect"
)

// Mapper is the narrow view of a mapper the engine needs: access to the
// entity map of the related class. The query handle lives on the concrete
// mapper type, outside this package.
type Mapper interface {
	EntityMap() *Map
}

// Directory resolves the mapper responsible for a related entity class.
// It is an explicit collaborator threaded through construction; the engine
// holds no process-wide lookup table.
type Directory interface {
	Mapper(entity reflect.Type) (Mapper, bool)
	MapperFor(class string) (Mapper, bool)
}

// Option overrides a convention-derived key or table name on a relation.
type Option func(*Relation)

// WithForeignKey overrides the derived foreign key column.
func WithForeignKey(column string) Option {
	return func(r *Relation) { r.ForeignKey = column }
}

// WithLocalKey overrides the owner-side key column.
func WithLocalKey(column string) Option {
	return func(r *Relation) { r.LocalKey = column }
}

// WithOtherKey overrides the related-side key column (the target primary
// key for belongs-to, the related pivot column for many-to-many kinds).
func WithOtherKey(column string) Option {
	return func(r *Relation) { r.OtherKey = column }
}

// WithSecondKey overrides the target-side key of a has-many-through.
func WithSecondKey(column string) Option {
	return func(r *Relation) { r.SecondKey = column }
}

// WithPivotTable overrides the derived joining table name.
func WithPivotTable(table string) Option {
	return func(r *Relation) { r.PivotTable = table }
}

// WithMorphColumns overrides the discriminator column pair. Either half may
// be left empty to keep its default.
func WithMorphColumns(typeColumn, idColumn string) Option {
	return func(r *Relation) {
		if typeColumn != "" {
			r.MorphType = typeColumn
		}
		if idColumn != "" {
			r.MorphID = idColumn
		}
	}
}

// WithEager marks the relation for loading by default.
func WithEager() Option {
	return func(r *Relation) { r.Eager = true }
}

// Define is the factory hub handed to relationship methods during the
// classification pass. Each factory derives conventional key and table
// names, classifies the relation into the entity map exactly once, and
// returns the static relation definition. Define exists only for the
// duration of the boot pass; descriptor resolution never mutates the map.
type Define struct {
	m   *Map
	dir Directory

	inDynamic bool
	err       error
}

func newDefine(m *Map, dir Directory) *Define {
	return &Define{m: m, dir: dir}
}

// HasOne declares the owning side of a one-to-one relationship.
// Default foreign key: snake_case of the owner class + "_id", on the
// related table. Always eager and never proxied.
func (d *Define) HasOne(name string, target interface{}, opts ...Option) Relation {
	rel := Relation{
		Name:            name,
		Kind:            HasOne,
		ForeignKey:      inflect.ForeignKey(d.m.class),
		LocalKey:        d.m.primaryKey,
		Eager:           true,
		ProxyIneligible: true,
	}
	out, _ := d.register(rel, target, opts)
	return out
}

// HasMany declares a one-to-many relationship. Same key conventions as
// HasOne.
func (d *Define) HasMany(name string, target interface{}, opts ...Option) Relation {
	rel := Relation{
		Name:       name,
		Kind:       HasMany,
		ForeignKey: inflect.ForeignKey(d.m.class),
		LocalKey:   d.m.primaryKey,
	}
	out, _ := d.register(rel, target, opts)
	return out
}

// BelongsTo declares the inverse side: the foreign key lives on the owning
// record and defaults to snake_case of the relation name + "_id".
func (d *Define) BelongsTo(name string, target interface{}, opts ...Option) Relation {
	rel := Relation{
		Name:       name,
		Kind:       BelongsTo,
		ForeignKey: inflect.ForeignKey(name),
	}
	out, added := d.register(rel, target, opts)
	if added && out.OtherKey == "" {
		out.OtherKey = d.relatedPrimaryKey(out.Target)
		d.amend(out)
	}
	return out
}

// HasManyThrough reaches related records across an intermediate entity.
// First key: owner's conventional foreign key, on the through table.
// Second key: the through entity's conventional foreign key, on the target.
func (d *Define) HasManyThrough(name string, target, through interface{}, opts ...Option) Relation {
	throughType, err := structType(through)
	if err != nil {
		d.fail(fmt.Errorf("has_many_through %q: through entity: %w", name, err))
		return Relation{Name: name, Kind: HasManyThrough}
	}
	rel := Relation{
		Name:       name,
		Kind:       HasManyThrough,
		Through:    throughType,
		ForeignKey: inflect.ForeignKey(d.m.class),
		SecondKey:  inflect.ForeignKey(throughType.Name()),
		LocalKey:   d.m.primaryKey,
	}
	out, _ := d.register(rel, target, opts)
	return out
}

// ManyToMany declares a pivot-backed relationship. The joining table
// defaults to the two table names sorted lexicographically and joined with
// an underscore; the derivation is commutative.
func (d *Define) ManyToMany(name string, target interface{}, opts ...Option) Relation {
	rel := Relation{
		Name:       name,
		Kind:       ManyToMany,
		ForeignKey: inflect.ForeignKey(d.m.class),
		LocalKey:   d.m.primaryKey,
	}
	out, added := d.register(rel, target, opts)
	if added && out.Target != nil {
		changed := false
		if out.OtherKey == "" {
			out.OtherKey = inflect.ForeignKey(out.Target.Name())
			changed = true
		}
		if out.PivotTable == "" {
			out.PivotTable = inflect.JoiningTable(d.m.table, d.relatedTable(out.Target))
			changed = true
		}
		if changed {
			d.amend(out)
		}
	}
	return out
}

// MorphOne declares a polymorphic one-to-one owned by this entity. The
// discriminator columns default to name_type / name_id on the related
// table. Always eager and never proxied.
func (d *Define) MorphOne(name string, target interface{}, opts ...Option) Relation {
	rel := Relation{
		Name:            name,
		Kind:            MorphOne,
		MorphType:       name + "_type",
		MorphID:         name + "_id",
		LocalKey:        d.m.primaryKey,
		Eager:           true,
		ProxyIneligible: true,
	}
	out, _ := d.register(rel, target, opts)
	return out
}

// MorphMany declares a polymorphic one-to-many.
func (d *Define) MorphMany(name string, target interface{}, opts ...Option) Relation {
	rel := Relation{
		Name:      name,
		Kind:      MorphMany,
		MorphType: name + "_type",
		MorphID:   name + "_id",
		LocalKey:  d.m.primaryKey,
	}
	out, _ := d.register(rel, target, opts)
	return out
}

// MorphTo declares the polymorphic inverse. The target class varies per
// record and is resolved through the morph registry at descriptor time;
// there is no fixed target mapper.
func (d *Define) MorphTo(name string, opts ...Option) Relation {
	rel := Relation{
		Name:      name,
		Kind:      MorphTo,
		MorphType: name + "_type",
		MorphID:   name + "_id",
	}
	out, _ := d.register(rel, nil, opts)
	return out
}

// MorphToMany declares a polymorphic many-to-many from the morphable side.
// morphName names the discriminator: the pivot table defaults to its plural
// form and the discriminator columns to morphName_type / morphName_id.
func (d *Define) MorphToMany(name string, target interface{}, morphName string, opts ...Option) Relation {
	rel := Relation{
		Name:       name,
		Kind:       MorphToMany,
		PivotTable: inflect.Pluralize(morphName),
		MorphType:  morphName + "_type",
		MorphID:    morphName + "_id",
		LocalKey:   d.m.primaryKey,
	}
	out, added := d.register(rel, target, opts)
	if added && out.OtherKey == "" && out.Target != nil {
		out.OtherKey = inflect.ForeignKey(out.Target.Name())
		d.amend(out)
	}
	return out
}

// MorphedByMany declares the inverse of MorphToMany on the concrete side;
// the roles of the pivot keys swap: the owner is matched by its own
// conventional foreign key and the related records by the discriminator
// pair.
func (d *Define) MorphedByMany(name string, target interface{}, morphName string, opts ...Option) Relation {
	rel := Relation{
		Name:       name,
		Kind:       MorphedByMany,
		PivotTable: inflect.Pluralize(morphName),
		MorphType:  morphName + "_type",
		MorphID:    morphName + "_id",
		ForeignKey: inflect.ForeignKey(d.m.class),
		LocalKey:   d.m.primaryKey,
	}
	out, _ := d.register(rel, target, opts)
	return out
}

// EmbedsOne declares a single value object stored inline in the owner's
// record. Embedded relations carry no keys or tables and are never proxied.
func (d *Define) EmbedsOne(name string, target interface{}) Relation {
	rel := Relation{
		Name:            name,
		Kind:            EmbedsOne,
		ProxyIneligible: true,
	}
	out, _ := d.register(rel, target, nil)
	return out
}

// EmbedsMany declares an inline collection of value objects.
func (d *Define) EmbedsMany(name string, target interface{}) Relation {
	rel := Relation{
		Name:            name,
		Kind:            EmbedsMany,
		ProxyIneligible: true,
	}
	out, _ := d.register(rel, target, nil)
	return out
}

// register applies overrides, validates the target, and performs the
// exactly-once classification side effect. The boolean reports whether this
// call inserted the relation; a duplicate name is a no-op and must not feed
// late derivation back into the map.
func (d *Define) register(rel Relation, target interface{}, opts []Option) (Relation, bool) {
	if rel.Name == "" {
		d.fail(fmt.Errorf("%s relation declared with an empty name", rel.Kind))
		return rel, false
	}

	if rel.Kind != MorphTo {
		t, err := structType(target)
		if err != nil {
			d.fail(fmt.Errorf("%s %q: %w: %v", rel.Kind, rel.Name, ErrMissingTarget, err))
			return rel, false
		}
		rel.Target = t
	}

	for _, opt := range opts {
		opt(&rel)
	}
	rel.Dynamic = d.inDynamic

	added := d.m.addRelation(&rel)
	return rel, added
}

// amend replaces a just-registered relation with late-derived defaults.
// Only the registering Define may amend, and only during boot.
func (d *Define) amend(rel Relation) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	if existing, ok := d.m.relations[rel.Name]; ok && !d.m.booted {
		*existing = rel
	}
}

// relatedTable resolves the table name of a related entity: from its
// registered mapper when available, from convention otherwise.
func (d *Define) relatedTable(t reflect.Type) string {
	if d.dir != nil {
		if m, ok := d.dir.Mapper(t); ok {
			return m.EntityMap().Table()
		}
	}
	return inflect.TableName(t.Name())
}

// relatedPrimaryKey resolves the primary key of a related entity, falling
// back to the conventional "id".
func (d *Define) relatedPrimaryKey(t reflect.Type) string {
	if t != nil && d.dir != nil {
		if m, ok := d.dir.Mapper(t); ok {
			return m.EntityMap().PrimaryKey()
		}
	}
	return "id"
}

func (d *Define) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// structType normalizes an entity given as instance, pointer, or
// reflect.Type to the underlying struct type.
func structType(entity interface{}) (reflect.Type, error) {
	if entity == nil {
		return nil, fmt.Errorf("entity is nil")
	}
	var t reflect.Type
	if rt, ok := entity.(reflect.Type); ok {
		t = rt
	} else {
		t = reflect.TypeOf(entity)
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected struct type, got %s", t.Kind())
	}
	return t, nil
}
