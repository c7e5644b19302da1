// Package mapper provides the mapper directory: an explicit, constructed
// registry that owns one mapper per entity class, runs the discovery and
// classification passes at boot time, and resolves mappers for the engine
// and the query layer.
package mapper

import (
	"context"
	"database/sql"
	"reflect"

	"github.com/relorm/relorm/entitymap"
)

// Querier executes SQL queries. *sql.DB satisfies it; tests substitute
// sqlmock handles.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var _ Querier = (*sql.DB)(nil)

// Mapper binds an entity map to the connection serving its table. One
// mapper exists per registered entity class.
type Mapper struct {
	def  entitymap.Mapping
	emap *entitymap.Map
	db   Querier
	dir  *Directory
}

// EntityMap returns the mapper's classification registry.
func (m *Mapper) EntityMap() *entitymap.Map { return m.emap }

// Table returns the mapped table name.
func (m *Mapper) Table() string { return m.emap.Table() }

// DB returns the query handle for the mapper's connection.
func (m *Mapper) DB() Querier { return m.db }

// Relation resolves a relationship descriptor for a concrete owning
// instance. The directory must be booted first.
func (m *Mapper) Relation(owner interface{}, name string) (*entitymap.Descriptor, error) {
	return m.emap.Descriptor(owner, name, m.dir.adapter(), m.dir.Morphs())
}

// directoryAdapter exposes a Directory through the narrow interface the
// engine consumes.
type directoryAdapter struct {
	dir *Directory
}

func (a directoryAdapter) Mapper(t reflect.Type) (entitymap.Mapper, bool) {
	return a.dir.mapperByType(t)
}

func (a directoryAdapter) MapperFor(class string) (entitymap.Mapper, bool) {
	m, err := a.dir.MapperFor(class)
	if err != nil {
		return nil, false
	}
	return m, true
}
