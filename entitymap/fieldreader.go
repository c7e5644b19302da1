package entitymap

import (
	"fmt"
	"reflect"

	"github.com/relorm/relorm/internal/util/inflect"
)

// FieldReader is the narrow attribute-storage capability the engine
// consumes: read a stored value by column name. Entities that keep their
// attributes somewhere other than struct fields implement it.
type FieldReader interface {
	ReadField(column string) (interface{}, bool)
}

// ReadField reads a named column from an entity instance. It prefers the
// FieldReader capability and falls back to reflection over struct fields,
// matching the db tag first and snake_case of the field name second.
func ReadField(entity interface{}, column string) (interface{}, bool) {
	if entity == nil || column == "" {
		return nil, false
	}
	if fr, ok := entity.(FieldReader); ok {
		return fr.ReadField(column)
	}

	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, false
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		if f.Tag.Get("db") == column || inflect.ToSnakeCase(f.Name) == column {
			return v.Field(i).Interface(), true
		}
	}
	return nil, false
}

// presentString coerces a read value to a non-empty string, reporting
// whether a usable value was present at all. Discriminator columns may
// surface as string, []byte, or a nil interface depending on the scan path.
func presentString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	case []byte:
		return string(v), len(v) > 0
	case fmt.Stringer:
		s := v.String()
		return s, s != ""
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Ptr {
			if rv.IsNil() {
				return "", false
			}
			return presentString(rv.Elem().Interface())
		}
		return "", false
	}
}
