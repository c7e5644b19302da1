package entitymap

import "fmt"

// DynamicRelation is a relation declared by name rather than as a mapping
// method. The resolver is registered before boot and invoked directly during
// the classification pass; the Relation it returns must carry the registered
// name.
type DynamicRelation func(d *Define) Relation

// RegisterDynamic registers a dynamic relation resolver. Registration is
// only allowed before the classification pass runs.
func (m *Map) RegisterDynamic(name string, fn DynamicRelation) error {
	if name == "" {
		return fmt.Errorf("entitymap: %s: dynamic relation with an empty name", m.mapping)
	}
	if fn == nil {
		return fmt.Errorf("entitymap: %s: dynamic relation %q has a nil resolver", m.mapping, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.booted {
		return fmt.Errorf("entitymap: %s: cannot register dynamic relation %q: %w", m.mapping, name, ErrAlreadyBooted)
	}
	if _, exists := m.dynamic[name]; exists {
		return fmt.Errorf("entitymap: %s: dynamic relation %q is already registered", m.mapping, name)
	}

	m.dynamic[name] = fn
	return nil
}

// Dynamic returns the resolver registered under a name. Invoking an
// undeclared dynamic relation is a caller error and fails with a
// descriptive message naming the mapping type and the missing relation.
func (m *Map) Dynamic(name string) (DynamicRelation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fn, ok := m.dynamic[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no relation %q", ErrNoSuchRelation, m.mapping, name)
	}
	return fn, nil
}
