package loader

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/relorm/relorm/entitymap"
	"github.com/relorm/relorm/internal/util/inflect"
	"github.com/relorm/relorm/mapper"
)

// EagerLoad loads the named relations for a set of records in batched
// queries, one query per relation regardless of record count.
func (l *Loader) EagerLoad(ctx context.Context, m *mapper.Mapper, records []Record, includes []string) error {
	if len(records) == 0 {
		return nil
	}
	return l.EagerLoadWithContext(ctx, m, records, includes, NewLoadContext(l.maxDepth))
}

// EagerLoadWithContext loads relations with depth limiting and circular
// reference prevention. Include names may be nested with dots
// ("author.posts"); a class already on the current load path is skipped
// silently, which is the expected behavior for cyclic graphs.
func (l *Loader) EagerLoadWithContext(
	ctx context.Context,
	m *mapper.Mapper,
	records []Record,
	includes []string,
	loadCtx *LoadContext,
) error {
	if len(records) == 0 {
		return nil
	}

	if err := loadCtx.IncrementDepth(); err != nil {
		return err
	}
	defer loadCtx.DecrementDepth()

	class := m.EntityMap().Class()
	if !loadCtx.MarkVisited(class) {
		return nil
	}
	defer loadCtx.Unmark(class)

	for _, include := range includes {
		name, nested := parseInclude(include)

		rel, ok := m.EntityMap().Relation(name)
		if !ok {
			return fmt.Errorf("%w: %s has no relation %q", ErrUnknownRelation, class, name)
		}

		if err := l.loadRelation(ctx, m, records, rel); err != nil {
			return fmt.Errorf("loading relation %s.%s: %w", class, name, err)
		}
		l.log.Debug("loaded relation",
			zap.String("class", class),
			zap.String("relation", name),
			zap.Int("records", len(records)))

		if len(nested) == 0 {
			continue
		}

		// Polymorphic inverses mix target classes per record, so nested
		// includes cannot run as one batch.
		if rel.Kind == entitymap.MorphTo {
			return fmt.Errorf("loading relation %s.%s: nested includes are not supported on polymorphic inverses", class, name)
		}

		target, err := l.dir.Mapper(rel.Target)
		if err != nil {
			return err
		}
		nestedRecords := extractNested(records, rel)
		if len(nestedRecords) > 0 {
			if err := l.EagerLoadWithContext(ctx, target, nestedRecords, nested, loadCtx); err != nil {
				return err
			}
		}
	}

	return nil
}

// loadRelation dispatches one relation to its batched load. Embedded
// relations are inline in the owner's row and need no query.
func (l *Loader) loadRelation(ctx context.Context, m *mapper.Mapper, records []Record, rel *entitymap.Relation) error {
	switch rel.Kind {
	case entitymap.BelongsTo:
		return l.loadBelongsTo(ctx, m, records, rel)
	case entitymap.HasOne:
		return l.loadHasOne(ctx, m, records, rel)
	case entitymap.HasMany:
		return l.loadHasMany(ctx, m, records, rel)
	case entitymap.HasManyThrough:
		return l.loadHasManyThrough(ctx, m, records, rel)
	case entitymap.ManyToMany:
		return l.loadManyToMany(ctx, m, records, rel)
	case entitymap.MorphOne:
		return l.loadMorphOwned(ctx, m, records, rel, true)
	case entitymap.MorphMany:
		return l.loadMorphOwned(ctx, m, records, rel, false)
	case entitymap.MorphTo:
		return l.loadMorphTo(ctx, m, records, rel)
	case entitymap.MorphToMany:
		return l.loadMorphToMany(ctx, m, records, rel)
	case entitymap.MorphedByMany:
		return l.loadMorphedByMany(ctx, m, records, rel)
	case entitymap.EmbedsOne, entitymap.EmbedsMany:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownRelation, rel.Kind)
	}
}

// Lazy builds a deferred proxy for one relation of one owner record.
// Always-eager kinds and embedded values refuse proxying.
func (l *Loader) Lazy(ctx context.Context, m *mapper.Mapper, owner Record, name string) (*LazyRelation, error) {
	rel, ok := m.EntityMap().Relation(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no relation %q", ErrUnknownRelation, m.EntityMap().Class(), name)
	}
	if rel.ProxyIneligible {
		return nil, fmt.Errorf("%w: %s.%s (%s) must be loaded with its owner",
			ErrNotProxyable, m.EntityMap().Class(), name, rel.Kind)
	}

	return &LazyRelation{loader: l, ctx: ctx, owner: owner, m: m, name: name}, nil
}

// LoadSingle loads one relation for one owner record, for lazy access.
func (l *Loader) LoadSingle(ctx context.Context, m *mapper.Mapper, owner Record, name string) (interface{}, error) {
	if owner == nil {
		return nil, fmt.Errorf("%w: no owner record for %s.%s", ErrNoRecords, m.EntityMap().Class(), name)
	}
	rel, ok := m.EntityMap().Relation(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no relation %q", ErrUnknownRelation, m.EntityMap().Class(), name)
	}
	if rel.ProxyIneligible {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotProxyable, m.EntityMap().Class(), name)
	}

	// The batched loads already handle the single-record case; reuse them.
	records := []Record{owner}
	if err := l.loadRelation(ctx, m, records, rel); err != nil {
		return nil, err
	}
	return owner[rel.Name], nil
}

// target resolves the mapper for a relation's fixed target class.
func (l *Loader) target(rel *entitymap.Relation) (*mapper.Mapper, error) {
	return l.dir.Mapper(rel.Target)
}

// ownerAlias is the discriminator value identifying an entity type in morph
// columns: the registered alias, snake_case of the class when unaliased.
func (l *Loader) ownerAlias(t reflect.Type) string {
	if alias, ok := l.dir.Morphs().AliasOf(t); ok {
		return alias
	}
	return inflect.ToSnakeCase(t.Name())
}

// parseInclude splits "author.posts" into ("author", ["posts"]).
func parseInclude(include string) (string, []string) {
	for i := 0; i < len(include); i++ {
		if include[i] == '.' {
			return include[:i], []string{include[i+1:]}
		}
	}
	return include, nil
}

// extractNested pulls the already-attached related records out of the
// parents, deduplicated by primary key, for recursive loading.
func extractNested(records []Record, rel *entitymap.Relation) []Record {
	var nested []Record
	seen := make(map[string]bool)

	appendRecord := func(r Record) {
		id, err := idToString(r["id"])
		if err != nil {
			return
		}
		if !seen[id] {
			nested = append(nested, r)
			seen[id] = true
		}
	}

	for _, record := range records {
		attached, ok := record[rel.Name]
		if !ok || attached == nil {
			continue
		}
		switch v := attached.(type) {
		case Record:
			appendRecord(v)
		case []Record:
			for _, r := range v {
				appendRecord(r)
			}
		}
	}

	return nested
}

// scanRows scans query results into records, normalizing []byte text values
// to strings.
func scanRows(rows *sql.Rows) ([]Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []Record
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(Record, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// idToString converts a key value to a map key with type validation.
// Supports the common key types: string, integers, []byte (UUID).
func idToString(id interface{}) (string, error) {
	switch v := id.(type) {
	case nil:
		return "", fmt.Errorf("key value is nil")
	case string:
		return v, nil
	case int:
		return fmt.Sprintf("%d", v), nil
	case int32:
		return fmt.Sprintf("%d", v), nil
	case int64:
		return fmt.Sprintf("%d", v), nil
	case uint:
		return fmt.Sprintf("%d", v), nil
	case uint64:
		return fmt.Sprintf("%d", v), nil
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}
