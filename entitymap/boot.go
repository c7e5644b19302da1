package entitymap

import (
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"
)

// Boot runs the classification pass over a mapping definition. Every
// discovered relationship method is invoked once with a typed nil entity
// pointer — no entity is ever constructed, and classification reads only the
// static shape of keys and tables, never row data. The returned Relation
// values are discarded; the add-once registration into the map is the
// effect that matters.
//
// Boot is idempotent: re-running it on a booted map is a no-op and never
// duplicates or alters the classification sets. Any error raised while
// probing a relationship method aborts the registration of the whole map,
// since a partially classified map is unsafe to query against.
func Boot(m *Map, def Mapping, dir Directory, log *zap.Logger) error {
	if m == nil || def == nil {
		return fmt.Errorf("entitymap: boot requires a map and a mapping definition")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m.Booted() {
		return nil
	}

	methods := discoverMethods(def)

	dynamicNames := make([]string, 0, len(m.dynamic))
	for name := range m.dynamic {
		dynamicNames = append(dynamicNames, name)
	}
	sort.Strings(dynamicNames)

	d := newDefine(m, dir)

	if len(methods) > 0 || len(dynamicNames) > 0 {
		recv := reflect.ValueOf(def)
		placeholder := reflect.Zero(reflect.TypeOf(def.Entity()))

		for _, method := range methods {
			if err := probe(d, recv, method, placeholder); err != nil {
				return fmt.Errorf("entitymap: classifying %s.%s: %w", m.mapping, method.Name, err)
			}
			log.Debug("classified relation method",
				zap.String("mapping", m.mapping),
				zap.String("method", method.Name))
		}

		for _, name := range dynamicNames {
			if err := probeDynamic(d, m.dynamic[name], name); err != nil {
				return fmt.Errorf("entitymap: classifying %s dynamic relation %q: %w", m.mapping, name, err)
			}
			log.Debug("classified dynamic relation",
				zap.String("mapping", m.mapping),
				zap.String("relation", name))
		}
	}

	var with []string
	if w, ok := def.(interface{ With() []string }); ok {
		with = w.With()
	}
	m.finalize(with)

	log.Debug("entity map booted",
		zap.String("class", m.class),
		zap.String("table", m.table),
		zap.Int("relations", len(m.order)))
	return nil
}

// probe invokes one relationship method against the placeholder. A panic in
// user code is converted to an error so the whole registration fails fast
// rather than crashing at request time.
func probe(d *Define, recv reflect.Value, method reflect.Method, placeholder reflect.Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("relationship method panicked: %v", r)
		}
	}()

	arg := placeholder
	if param := method.Type.In(1); param.Kind() == reflect.Interface {
		arg = placeholder.Convert(param)
	}

	method.Func.Call([]reflect.Value{recv, arg, reflect.ValueOf(d)})
	if d.err != nil {
		err = d.err
		d.err = nil
	}
	return err
}

// probeDynamic invokes one dynamic resolver and verifies it declared the
// relation it was registered under.
func probeDynamic(d *Define, fn DynamicRelation, name string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dynamic resolver panicked: %v", r)
		}
	}()

	d.inDynamic = true
	rel := fn(d)
	d.inDynamic = false

	if d.err != nil {
		err = d.err
		d.err = nil
		return err
	}
	if rel.Name != name {
		return fmt.Errorf("resolver declared relation %q, registered as %q", rel.Name, name)
	}
	return nil
}
