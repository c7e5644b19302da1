// Package entitymap implements the relationship classification and metadata
// engine of the data mapper. It discovers relationship methods on mapping
// definitions, classifies every relation along four orthogonal axes
// (cardinality, key ownership, polymorphism, embedding), and resolves
// runtime relationship descriptors for the query and hydration layers.
package entitymap

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/relorm/relorm/internal/util/inflect"
)

// Mapping is a user-written mapping definition for one entity type.
// Concrete mappings embed Definition and add one method per relationship.
type Mapping interface {
	// Entity returns a pointer to the zero value of the mapped entity,
	// e.g. &Post{}.
	Entity() interface{}
}

// TableNamer overrides the conventional table name (pluralized snake_case
// of the entity class name).
type TableNamer interface {
	Table() string
}

// Discriminated configures single-table inheritance: a discriminator column
// and a value-to-class map.
type Discriminated interface {
	DiscriminatorColumn() string
	DiscriminatorMap() map[string]string
}

// Definition is the base mapping definition. Concrete mappings embed it;
// its method set is what the discovery pass subtracts to find user-added
// relationship methods.
type Definition struct{}

// PrimaryKey returns the primary key attribute name. Mappings override it
// when the key column is not "id".
func (Definition) PrimaryKey() string { return "id" }

// With returns the relation names to eager-load by default. Mappings
// override it to opt relations in beyond the always-eager kinds.
func (Definition) With() []string { return nil }

// Map is the classification registry for one mapped entity type. It is
// populated exactly once by the discovery and classification passes and is
// read-only afterwards; post-boot getters are safe for concurrent use.
type Map struct {
	entity     reflect.Type
	class      string
	mapping    string
	table      string
	primaryKey string

	attributes  []string
	embeddables []string

	discriminatorColumn string
	discriminatorMap    map[string]string

	relations map[string]*Relation
	order     []string

	single      map[string]struct{}
	many        map[string]struct{}
	localOwner  map[string]struct{}
	foreignOwn  map[string]struct{}
	pivot       map[string]struct{}
	polymorphic map[string]struct{}
	embedded    map[string]struct{}
	nonProxy    map[string]struct{}

	eager   []string
	dynamic map[string]DynamicRelation

	booted bool
	mu     sync.RWMutex
}

// New builds the entity map for a mapping definition, deriving the class
// name, table name, primary key, and attribute columns from the entity
// type. Relationship classification happens later, in Boot.
func New(def Mapping) (*Map, error) {
	if def == nil {
		return nil, fmt.Errorf("entitymap: mapping definition is nil")
	}

	entity := def.Entity()
	t := reflect.TypeOf(entity)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("entitymap: %T.Entity() must return a struct pointer", def)
	}
	t = t.Elem()

	m := &Map{
		entity:      t,
		class:       t.Name(),
		mapping:     fmt.Sprintf("%T", def),
		table:       inflect.TableName(t.Name()),
		primaryKey:  "id",
		relations:   make(map[string]*Relation),
		single:      make(map[string]struct{}),
		many:        make(map[string]struct{}),
		localOwner:  make(map[string]struct{}),
		foreignOwn:  make(map[string]struct{}),
		pivot:       make(map[string]struct{}),
		polymorphic: make(map[string]struct{}),
		embedded:    make(map[string]struct{}),
		nonProxy:    make(map[string]struct{}),
		dynamic:     make(map[string]DynamicRelation),
	}

	if tn, ok := def.(TableNamer); ok && tn.Table() != "" {
		m.table = tn.Table()
	}
	if pk, ok := def.(interface{ PrimaryKey() string }); ok && pk.PrimaryKey() != "" {
		m.primaryKey = pk.PrimaryKey()
	}
	if d, ok := def.(Discriminated); ok {
		m.discriminatorColumn = d.DiscriminatorColumn()
		m.discriminatorMap = d.DiscriminatorMap()
	}

	m.attributes = attributeColumns(t)
	return m, nil
}

// attributeColumns derives the column list from the entity struct's exported
// fields: the db tag when present, snake_case of the field name otherwise.
// Fields tagged db:"-" are skipped. Relation-valued fields are removed from
// the list when the classification pass finishes.
func attributeColumns(t reflect.Type) []string {
	columns := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" { // unexported
			continue
		}
		tag := f.Tag.Get("db")
		if tag == "-" {
			continue
		}
		if tag != "" {
			columns = append(columns, tag)
			continue
		}
		columns = append(columns, inflect.ToSnakeCase(f.Name))
	}
	return columns
}

// EntityType returns the mapped entity struct type.
func (m *Map) EntityType() reflect.Type { return m.entity }

// Class returns the mapped entity class name.
func (m *Map) Class() string { return m.class }

// MappingType returns the concrete mapping definition type name, used in
// error messages.
func (m *Map) MappingType() string { return m.mapping }

// Table returns the table name, explicit or derived.
func (m *Map) Table() string { return m.table }

// PrimaryKey returns the primary key attribute name.
func (m *Map) PrimaryKey() string { return m.primaryKey }

// DiscriminatorColumn returns the single-table-inheritance column, or "".
func (m *Map) DiscriminatorColumn() string { return m.discriminatorColumn }

// DiscriminatorMap returns the single-table-inheritance value-to-class map.
func (m *Map) DiscriminatorMap() map[string]string {
	out := make(map[string]string, len(m.discriminatorMap))
	for k, v := range m.discriminatorMap {
		out[k] = v
	}
	return out
}

// Booted reports whether the classification pass has completed.
func (m *Map) Booted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.booted
}

// Attributes returns the entity's attribute columns, excluding any column
// claimed by a relation.
func (m *Map) Attributes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyStrings(m.attributes)
}

// Embeddables returns the fields holding embedded value objects.
func (m *Map) Embeddables() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyStrings(m.embeddables)
}

// Relations returns all relation names in declaration order.
func (m *Map) Relations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyStrings(m.order)
}

// Relation returns the static definition for a relation name. The boolean
// is false for unrecognized names; the lookup never fails hard.
func (m *Map) Relation(name string) (*Relation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rel, ok := m.relations[name]
	return rel, ok
}

// TargetType returns the related entity type for a relation, absent for
// unknown names and for polymorphic relations whose target varies.
func (m *Map) TargetType(name string) (reflect.Type, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rel, ok := m.relations[name]
	if !ok || rel.Target == nil {
		return nil, false
	}
	return rel.Target, true
}

// LocalKeys returns the owner-side key column(s) for a relation: the
// foreign key for local-owned relations, the (type, id) discriminator pair
// for the polymorphic inverse. Embedded relations carry no keys and report
// absent.
func (m *Map) LocalKeys(name string) ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rel, ok := m.relations[name]
	if !ok {
		return nil, false
	}
	switch rel.Kind {
	case BelongsTo:
		return []string{rel.ForeignKey}, true
	case MorphTo:
		return []string{rel.MorphType, rel.MorphID}, true
	case EmbedsOne, EmbedsMany:
		return nil, false
	default:
		return []string{rel.LocalKey}, true
	}
}

// SingleRelations returns relations yielding a single entity.
func (m *Map) SingleRelations() []string { return m.setMembers(m.single) }

// ManyRelations returns relations yielding collections.
func (m *Map) ManyRelations() []string { return m.setMembers(m.many) }

// LocalRelations returns relations whose linking key is on the owner.
func (m *Map) LocalRelations() []string { return m.setMembers(m.localOwner) }

// ForeignRelations returns relations whose linking key is on the related
// record or in a pivot table.
func (m *Map) ForeignRelations() []string { return m.setMembers(m.foreignOwn) }

// PivotRelations returns pivot-backed relations.
func (m *Map) PivotRelations() []string { return m.setMembers(m.pivot) }

// PolymorphicRelations returns relations with no fixed target class.
func (m *Map) PolymorphicRelations() []string { return m.setMembers(m.polymorphic) }

// EmbeddedRelations returns inline value-object relations.
func (m *Map) EmbeddedRelations() []string { return m.setMembers(m.embedded) }

// NonProxyRelations returns relations that must never be lazily proxied.
func (m *Map) NonProxyRelations() []string { return m.setMembers(m.nonProxy) }

// EagerLoads returns the relations loaded with the owner by default:
// always-eager kinds plus anything the mapping opts in through With.
func (m *Map) EagerLoads() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyStrings(m.eager)
}

// DynamicRelations returns the names registered through the dynamic path.
func (m *Map) DynamicRelations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.dynamic))
	for name := range m.dynamic {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSingle reports whether the relation yields a single entity.
func (m *Map) IsSingle(name string) bool { return m.inSet(m.single, name) }

// IsMany reports whether the relation yields a collection.
func (m *Map) IsMany(name string) bool { return m.inSet(m.many, name) }

// IsLocal reports whether the linking key is on the owning record.
func (m *Map) IsLocal(name string) bool { return m.inSet(m.localOwner, name) }

// IsForeign reports whether the linking key is foreign-owned.
func (m *Map) IsForeign(name string) bool { return m.inSet(m.foreignOwn, name) }

// IsPivot reports whether the relation is pivot-backed.
func (m *Map) IsPivot(name string) bool { return m.inSet(m.pivot, name) }

// IsPolymorphic reports whether the relation's target varies per record.
func (m *Map) IsPolymorphic(name string) bool { return m.inSet(m.polymorphic, name) }

// IsEmbedded reports whether the relation is an inline value object.
func (m *Map) IsEmbedded(name string) bool { return m.inSet(m.embedded, name) }

// IsProxyIneligible reports whether the relation must be eagerly resolved.
func (m *Map) IsProxyIneligible(name string) bool { return m.inSet(m.nonProxy, name) }

// addRelation records a relation and classifies it into the axis sets.
// Adding the same name twice is a no-op, never an error, which keeps the
// classification pass idempotent; it reports whether the relation was
// actually inserted so callers skip late derivation for duplicates.
func (m *Map) addRelation(rel *Relation) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.relations[rel.Name]; exists {
		return false
	}

	m.relations[rel.Name] = rel
	m.order = append(m.order, rel.Name)

	k := rel.Kind
	if k.Single() {
		m.single[rel.Name] = struct{}{}
	}
	if k.Many() {
		m.many[rel.Name] = struct{}{}
	}
	if k.LocalOwner() {
		m.localOwner[rel.Name] = struct{}{}
	}
	if k.ForeignOwner() {
		m.foreignOwn[rel.Name] = struct{}{}
	}
	if k.Pivot() {
		m.pivot[rel.Name] = struct{}{}
	}
	if k.Polymorphic() {
		m.polymorphic[rel.Name] = struct{}{}
	}
	if k.Embedded() {
		m.embedded[rel.Name] = struct{}{}
		m.embeddables = appendOnce(m.embeddables, rel.Name)
	}
	if rel.ProxyIneligible {
		m.nonProxy[rel.Name] = struct{}{}
	}
	if rel.Eager {
		m.eager = appendOnce(m.eager, rel.Name)
	}
	return true
}

// finalize runs once at the end of the classification pass: relation names
// are removed from the attribute column list and the default eager-load set
// is merged with the mapping's With list.
func (m *Map) finalize(with []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.booted {
		return
	}

	kept := m.attributes[:0]
	for _, col := range m.attributes {
		if _, isRelation := m.relations[col]; !isRelation {
			kept = append(kept, col)
		}
	}
	m.attributes = kept

	for _, name := range with {
		if _, ok := m.relations[name]; ok {
			m.eager = appendOnce(m.eager, name)
		}
	}

	m.booted = true
}

func (m *Map) setMembers(set map[string]struct{}) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(set))
	for _, name := range m.order {
		if _, ok := set[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

func (m *Map) inSet(set map[string]struct{}, name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := set[name]
	return ok
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func appendOnce(list []string, name string) []string {
	for _, existing := range list {
		if existing == name {
			return list
		}
	}
	return append(list, name)
}
