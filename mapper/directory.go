package mapper

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/relorm/relorm/entitymap"
	"github.com/relorm/relorm/morph"
)

// Directory sentinel errors. Resolution failures wrap
// entitymap.ErrMapperNotFound so callers can test with errors.Is across
// package boundaries.
var (
	ErrDuplicateMapper = errors.New("mapper already registered")
	ErrDirectoryBooted = errors.New("directory already booted")
	ErrNotBooted       = errors.New("directory not booted")
)

// Directory owns one mapper per registered entity class. It is an explicit,
// constructed object: callers build one, register mappings, call Boot, and
// thread it through to whatever needs mapper resolution. There is no
// package-level instance.
type Directory struct {
	mu      sync.RWMutex
	byType  map[reflect.Type]*Mapper
	byClass map[string]*Mapper
	morphs  *morph.Registry
	log     *zap.Logger
	booted  bool
}

// Option configures a Directory at construction time.
type Option func(*Directory)

// WithLogger sets the directory's logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(d *Directory) {
		if log != nil {
			d.log = log
		}
	}
}

// WithMorphRegistry sets a pre-populated morph registry. Defaults to an
// empty one that RegisterMorphAliases fills in.
func WithMorphRegistry(r *morph.Registry) Option {
	return func(d *Directory) {
		if r != nil {
			d.morphs = r
		}
	}
}

// NewDirectory creates an empty mapper directory.
func NewDirectory(opts ...Option) *Directory {
	d := &Directory{
		byType:  make(map[reflect.Type]*Mapper),
		byClass: make(map[string]*Mapper),
		morphs:  morph.NewRegistry(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a mapping definition and its connection to the directory.
// The entity map is built immediately so naming collisions surface at
// registration time; relationship classification waits for Boot.
func (d *Directory) Register(def entitymap.Mapping, db Querier) error {
	emap, err := entitymap.New(def)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.booted {
		return fmt.Errorf("mapper: register %s: %w", emap.Class(), ErrDirectoryBooted)
	}
	if _, exists := d.byType[emap.EntityType()]; exists {
		return fmt.Errorf("mapper: %w for entity %s", ErrDuplicateMapper, emap.Class())
	}
	if _, exists := d.byClass[emap.Class()]; exists {
		return fmt.Errorf("mapper: %w for class %q", ErrDuplicateMapper, emap.Class())
	}

	m := &Mapper{def: def, emap: emap, db: db, dir: d}
	d.byType[emap.EntityType()] = m
	d.byClass[emap.Class()] = m

	d.log.Debug("registered mapper",
		zap.String("class", emap.Class()),
		zap.String("table", emap.Table()))
	return nil
}

// Boot runs the discovery and classification passes over every registered
// mapping, in class-name order so failures are deterministic. The first
// error aborts the whole boot: a directory with partially classified maps
// must never serve traffic.
func (d *Directory) Boot() error {
	d.mu.Lock()
	if d.booted {
		d.mu.Unlock()
		return nil
	}
	classes := make([]string, 0, len(d.byClass))
	for class := range d.byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	mappers := make([]*Mapper, 0, len(classes))
	for _, class := range classes {
		mappers = append(mappers, d.byClass[class])
	}
	// Classification runs outside the lock: factories resolve related
	// tables and keys back through the directory, which takes a read lock.
	d.mu.Unlock()

	adapter := directoryAdapter{dir: d}
	for i, m := range mappers {
		if err := entitymap.Boot(m.emap, m.def, adapter, d.log); err != nil {
			return fmt.Errorf("mapper: booting %s: %w", classes[i], err)
		}
	}

	d.mu.Lock()
	d.booted = true
	d.mu.Unlock()

	d.log.Info("mapper directory booted", zap.Int("mappers", len(classes)))
	return nil
}

// Booted reports whether Boot has completed.
func (d *Directory) Booted() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.booted
}

// Mapper resolves the mapper for an entity, given as an instance, pointer,
// or reflect.Type.
func (d *Directory) Mapper(entity interface{}) (*Mapper, error) {
	t, err := entityStructType(entity)
	if err != nil {
		return nil, fmt.Errorf("mapper: %w", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.byType[t]
	if !ok {
		return nil, fmt.Errorf("mapper: %w for entity %s", entitymap.ErrMapperNotFound, t.Name())
	}
	return m, nil
}

// MapperFor resolves the mapper for an entity class name.
func (d *Directory) MapperFor(class string) (*Mapper, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.byClass[class]
	if !ok {
		return nil, fmt.Errorf("mapper: %w for class %q", entitymap.ErrMapperNotFound, class)
	}
	return m, nil
}

// mapperByType is the adapter-facing lookup; absence is not an error there.
func (d *Directory) mapperByType(t reflect.Type) (entitymap.Mapper, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.byType[t]
	if !ok {
		return nil, false
	}
	return m, true
}

// Morphs returns the directory's polymorphic-type registry.
func (d *Directory) Morphs() *morph.Registry { return d.morphs }

// RegisterMorphAliases maps discriminator aliases to registered entity
// classes. Every class must already be registered; aliasing an unknown
// class is a configuration error.
func (d *Directory) RegisterMorphAliases(aliases map[string]string) error {
	names := make([]string, 0, len(aliases))
	for alias := range aliases {
		names = append(names, alias)
	}
	sort.Strings(names)

	for _, alias := range names {
		m, err := d.MapperFor(aliases[alias])
		if err != nil {
			return fmt.Errorf("mapper: morph alias %q: %w", alias, err)
		}
		if err := d.morphs.Register(alias, m.emap.EntityType()); err != nil {
			return err
		}
	}
	return nil
}

// Reports returns the classification snapshot of every booted map, sorted
// by class name.
func (d *Directory) Reports() ([]entitymap.Report, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.booted {
		return nil, fmt.Errorf("mapper: reports: %w", ErrNotBooted)
	}

	reports := make([]entitymap.Report, 0, len(d.byClass))
	for _, m := range d.byClass {
		reports = append(reports, m.emap.Report())
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Class < reports[j].Class })
	return reports, nil
}

// adapter returns the narrow engine-facing view of the directory.
func (d *Directory) adapter() entitymap.Directory {
	return directoryAdapter{dir: d}
}

// entityStructType normalizes an entity argument to its struct type.
func entityStructType(entity interface{}) (reflect.Type, error) {
	var t reflect.Type
	switch v := entity.(type) {
	case nil:
		return nil, fmt.Errorf("entity is nil")
	case reflect.Type:
		t = v
	default:
		t = reflect.TypeOf(entity)
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity must be a struct type, got %s", t.Kind())
	}
	return t, nil
}
