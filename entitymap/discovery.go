package entitymap

import (
	"reflect"
)

// relationMethodSig reports whether a method declared on a mapping
// definition is a relationship method: its first parameter is the mapped
// entity pointer type (or an interface the entity satisfies), its second is
// the factory hub, and it returns a Relation.
func relationMethodSig(ft reflect.Type, entityPtr reflect.Type) bool {
	// In(0) is the receiver.
	if ft.NumIn() != 3 || ft.NumOut() != 1 {
		return false
	}
	if ft.Out(0) != reflect.TypeOf(Relation{}) {
		return false
	}
	if ft.In(2) != reflect.TypeOf(&Define{}) {
		return false
	}
	first := ft.In(1)
	if first == entityPtr {
		return true
	}
	return first.Kind() == reflect.Interface && entityPtr.Implements(first)
}

// baseMethodNames is the method set of the base Definition type. Methods
// promoted from it onto concrete mappings are not relationship methods.
func baseMethodNames() map[string]struct{} {
	base := reflect.TypeOf(Definition{})
	names := make(map[string]struct{}, base.NumMethod())
	for i := 0; i < base.NumMethod(); i++ {
		names[base.Method(i).Name] = struct{}{}
	}
	return names
}

// Discover enumerates the relationship methods declared on a mapping
// definition: all methods minus those of the base Definition, filtered to
// those whose first parameter matches the mapped entity type. Methods with
// a non-matching signature are excluded silently; they are ordinary helper
// methods, not configuration errors.
func Discover(def Mapping) []string {
	methods := discoverMethods(def)
	names := make([]string, 0, len(methods))
	for _, m := range methods {
		names = append(names, m.Name)
	}
	return names
}

func discoverMethods(def Mapping) []reflect.Method {
	t := reflect.TypeOf(def)
	entityPtr := reflect.TypeOf(def.Entity())
	base := baseMethodNames()

	var methods []reflect.Method
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if _, promoted := base[m.Name]; promoted {
			continue
		}
		if !relationMethodSig(m.Type, entityPtr) {
			continue
		}
		methods = append(methods, m)
	}
	return methods
}
