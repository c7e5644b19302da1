// Package morph provides the polymorphic-type registry: a bidirectional
// mapping between short discriminator aliases and entity types. It is
// populated at configuration time and read-only during steady-state traffic.
package morph

import (
	"fmt"
	"reflect"
	"sync"
)

// Registry maps discriminator aliases to entity types and back.
type Registry struct {
	mu      sync.RWMutex
	byAlias map[string]reflect.Type
	byType  map[reflect.Type]string
}

// NewRegistry creates an empty morph registry.
func NewRegistry() *Registry {
	return &Registry{
		byAlias: make(map[string]reflect.Type),
		byType:  make(map[reflect.Type]string),
	}
}

// Register maps an alias to an entity type. The entity may be given as an
// instance (&Post{}), a pointer type, or the struct type itself. Registering
// a duplicate alias or type is an error: late mutation after boot is not
// supported, so collisions always indicate misconfiguration.
func (r *Registry) Register(alias string, entity interface{}) error {
	t, err := entityType(entity)
	if err != nil {
		return fmt.Errorf("morph: cannot register alias %q: %w", alias, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byAlias[alias]; ok {
		return fmt.Errorf("morph: alias %q is already registered to %s", alias, existing.Name())
	}
	if existing, ok := r.byType[t]; ok {
		return fmt.Errorf("morph: type %s is already registered as %q", t.Name(), existing)
	}

	r.byAlias[alias] = t
	r.byType[t] = alias
	return nil
}

// Alias returns the discriminator alias for an entity type.
func (r *Registry) Alias(entity interface{}) (string, bool) {
	t, err := entityType(entity)
	if err != nil {
		return "", false
	}
	return r.AliasOf(t)
}

// AliasOf returns the discriminator alias for a reflect.Type.
func (r *Registry) AliasOf(t reflect.Type) (string, bool) {
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	alias, ok := r.byType[t]
	return alias, ok
}

// TypeFor resolves a discriminator alias to the registered entity type.
func (r *Registry) TypeFor(alias string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byAlias[alias]
	return t, ok
}

// Aliases returns all registered aliases.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	aliases := make([]string, 0, len(r.byAlias))
	for alias := range r.byAlias {
		aliases = append(aliases, alias)
	}
	return aliases
}

// entityType normalizes the supported entity representations to the
// underlying struct type.
func entityType(entity interface{}) (reflect.Type, error) {
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
