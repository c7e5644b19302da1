package loader

import (
	"context"
	"fmt"
	"sort"

	"github.com/lib/pq"

	"github.com/relorm/relorm/entitymap"
	"github.com/relorm/relorm/internal/util/inflect"
	"github.com/relorm/relorm/mapper"
)

// collectKeys gathers the distinct non-nil values of one column across the
// owner records, keeping an index from stringified value to record position.
func collectKeys(records []Record, column string) ([]interface{}, map[string][]int, error) {
	var keys []interface{}
	index := make(map[string][]int)

	for i, record := range records {
		v, ok := record[column]
		if !ok || v == nil {
			continue
		}
		s, err := idToString(v)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid key value in column %s: %w", column, err)
		}
		if _, seen := index[s]; !seen {
			keys = append(keys, v)
		}
		index[s] = append(index[s], i)
	}

	return keys, index, nil
}

// loadBelongsTo batches the inverse lookup: collect the owners' foreign key
// values and fetch the targets in one query.
//
//	SELECT * FROM customers WHERE id = ANY($1)
func (l *Loader) loadBelongsTo(ctx context.Context, m *mapper.Mapper, records []Record, rel *entitymap.Relation) error {
	keys, index, err := collectKeys(records, rel.ForeignKey)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		for _, record := range records {
			record[rel.Name] = nil
		}
		return nil
	}

	target, err := l.target(rel)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ANY($1)",
		pq.QuoteIdentifier(target.Table()), pq.QuoteIdentifier(rel.OtherKey))

	rows, err := target.DB().QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return fmt.Errorf("querying belongs_to: %w", err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return fmt.Errorf("scanning belongs_to rows: %w", err)
	}

	for _, record := range records {
		record[rel.Name] = nil
	}
	for _, related := range results {
		key, err := idToString(related[rel.OtherKey])
		if err != nil {
			return fmt.Errorf("invalid key in belongs_to results: %w", err)
		}
		for _, i := range index[key] {
			records[i][rel.Name] = related
		}
	}
	return nil
}

// loadHasOne fetches one related row per owner.
//
//	SELECT DISTINCT ON (user_id) * FROM profiles WHERE user_id = ANY($1) ORDER BY user_id, id
func (l *Loader) loadHasOne(ctx context.Context, m *mapper.Mapper, records []Record, rel *entitymap.Relation) error {
	keys, index, err := collectKeys(records, rel.LocalKey)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	target, err := l.target(rel)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT DISTINCT ON (%s) * FROM %s WHERE %s = ANY($1) ORDER BY %s, %s",
		pq.QuoteIdentifier(rel.ForeignKey), pq.QuoteIdentifier(target.Table()),
		pq.QuoteIdentifier(rel.ForeignKey), pq.QuoteIdentifier(rel.ForeignKey),
		pq.QuoteIdentifier(target.EntityMap().PrimaryKey()))

	rows, err := target.DB().QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return fmt.Errorf("querying has_one: %w", err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return fmt.Errorf("scanning has_one rows: %w", err)
	}

	for _, record := range records {
		record[rel.Name] = nil
	}
	return attachSingle(records, index, results, rel.Name, rel.ForeignKey)
}

// loadHasMany groups related rows by the owners' key.
//
//	SELECT * FROM posts WHERE user_id = ANY($1)
func (l *Loader) loadHasMany(ctx context.Context, m *mapper.Mapper, records []Record, rel *entitymap.Relation) error {
	keys, index, err := collectKeys(records, rel.LocalKey)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	target, err := l.target(rel)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ANY($1)",
		pq.QuoteIdentifier(target.Table()), pq.QuoteIdentifier(rel.ForeignKey))

	rows, err := target.DB().QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return fmt.Errorf("querying has_many: %w", err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return fmt.Errorf("scanning has_many rows: %w", err)
	}

	return attachMany(records, index, results, rel.Name, rel.ForeignKey)
}

// loadHasManyThrough joins across the intermediate table in one query,
// smuggling the owner key out as __parent_id.
//
//	SELECT t.*, j.user_id AS __parent_id
//	FROM comments t INNER JOIN posts j ON t.post_id = j.id
//	WHERE j.user_id = ANY($1)
func (l *Loader) loadHasManyThrough(ctx context.Context, m *mapper.Mapper, records []Record, rel *entitymap.Relation) error {
	keys, index, err := collectKeys(records, rel.LocalKey)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	target, err := l.target(rel)
	if err != nil {
		return err
	}

	throughTable, throughPK := l.throughTable(rel)
	query := fmt.Sprintf(
		"SELECT t.*, j.%s AS __parent_id FROM %s t INNER JOIN %s j ON t.%s = j.%s WHERE j.%s = ANY($1)",
		pq.QuoteIdentifier(rel.ForeignKey), pq.QuoteIdentifier(target.Table()),
		pq.QuoteIdentifier(throughTable), pq.QuoteIdentifier(rel.SecondKey),
		pq.QuoteIdentifier(throughPK), pq.QuoteIdentifier(rel.ForeignKey))

	rows, err := target.DB().QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return fmt.Errorf("querying has_many_through: %w", err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return fmt.Errorf("scanning has_many_through rows: %w", err)
	}

	return attachJoined(records, index, results, rel.Name)
}

// loadManyToMany joins across the pivot table.
//
//	SELECT t.*, p.post_id AS __parent_id
//	FROM tags t INNER JOIN posts_tags p ON t.id = p.tag_id
//	WHERE p.post_id = ANY($1)
func (l *Loader) loadManyToMany(ctx context.Context, m *mapper.Mapper, records []Record, rel *entitymap.Relation) error {
	keys, index, err := collectKeys(records, rel.LocalKey)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	target, err := l.target(rel)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		"SELECT t.*, p.%s AS __parent_id FROM %s t INNER JOIN %s p ON t.%s = p.%s WHERE p.%s = ANY($1)",
		pq.QuoteIdentifier(rel.ForeignKey), pq.QuoteIdentifier(target.Table()),
		pq.QuoteIdentifier(rel.PivotTable), pq.QuoteIdentifier(target.EntityMap().PrimaryKey()),
		pq.QuoteIdentifier(rel.OtherKey), pq.QuoteIdentifier(rel.ForeignKey))

	rows, err := target.DB().QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return fmt.Errorf("querying many_to_many: %w", err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return fmt.Errorf("scanning many_to_many rows: %w", err)
	}

	return attachJoined(records, index, results, rel.Name)
}

// loadMorphOwned loads morph_one and morph_many: the related rows carry the
// discriminator pair pointing back at the owner class.
//
//	SELECT * FROM images WHERE avatar_type = $1 AND avatar_id = ANY($2)
func (l *Loader) loadMorphOwned(ctx context.Context, m *mapper.Mapper, records []Record, rel *entitymap.Relation, single bool) error {
	keys, index, err := collectKeys(records, rel.LocalKey)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	target, err := l.target(rel)
	if err != nil {
		return err
	}
	alias := l.ownerAlias(m.EntityMap().EntityType())

	var query string
	if single {
		query = fmt.Sprintf(
			"SELECT DISTINCT ON (%s) * FROM %s WHERE %s = $1 AND %s = ANY($2) ORDER BY %s, %s",
			pq.QuoteIdentifier(rel.MorphID), pq.QuoteIdentifier(target.Table()),
			pq.QuoteIdentifier(rel.MorphType), pq.QuoteIdentifier(rel.MorphID),
			pq.QuoteIdentifier(rel.MorphID), pq.QuoteIdentifier(target.EntityMap().PrimaryKey()))
	} else {
		query = fmt.Sprintf("SELECT * FROM %s WHERE %s = $1 AND %s = ANY($2)",
			pq.QuoteIdentifier(target.Table()),
			pq.QuoteIdentifier(rel.MorphType), pq.QuoteIdentifier(rel.MorphID))
	}

	rows, err := target.DB().QueryContext(ctx, query, alias, pq.Array(keys))
	if err != nil {
		return fmt.Errorf("querying %s: %w", rel.Kind, err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return fmt.Errorf("scanning %s rows: %w", rel.Kind, err)
	}

	if single {
		for _, record := range records {
			record[rel.Name] = nil
		}
		return attachSingle(records, index, results, rel.Name, rel.MorphID)
	}
	return attachMany(records, index, results, rel.Name, rel.MorphID)
}

// loadMorphTo resolves the polymorphic inverse: owners are grouped by their
// discriminator value and each group loads from its own target table.
// Owners with an absent discriminator get nil, matching the unresolved
// descriptor state.
func (l *Loader) loadMorphTo(ctx context.Context, m *mapper.Mapper, records []Record, rel *entitymap.Relation) error {
	type group struct {
		keys  []interface{}
		index map[string][]int
	}
	groups := make(map[string]*group)

	for i, record := range records {
		record[rel.Name] = nil

		alias, ok := record[rel.MorphType].(string)
		if !ok || alias == "" {
			continue
		}
		id, ok := record[rel.MorphID]
		if !ok || id == nil {
			continue
		}
		s, err := idToString(id)
		if err != nil {
			return fmt.Errorf("invalid key value in column %s: %w", rel.MorphID, err)
		}

		g, ok := groups[alias]
		if !ok {
			g = &group{index: make(map[string][]int)}
			groups[alias] = g
		}
		if _, seen := g.index[s]; !seen {
			g.keys = append(g.keys, id)
		}
		g.index[s] = append(g.index[s], i)
	}

	aliases := make([]string, 0, len(groups))
	for alias := range groups {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	for _, alias := range aliases {
		g := groups[alias]

		targetType, ok := l.dir.Morphs().TypeFor(alias)
		if !ok {
			return fmt.Errorf("%w: %q (relation %q on %s)",
				ErrUnknownMorphAlias, alias, rel.Name, m.EntityMap().Class())
		}
		target, err := l.dir.Mapper(targetType)
		if err != nil {
			return err
		}

		pk := target.EntityMap().PrimaryKey()
		query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ANY($1)",
			pq.QuoteIdentifier(target.Table()), pq.QuoteIdentifier(pk))

		rows, err := target.DB().QueryContext(ctx, query, pq.Array(g.keys))
		if err != nil {
			return fmt.Errorf("querying morph_to targets %q: %w", alias, err)
		}

		results, err := scanRows(rows)
		rows.Close()
		if err != nil {
			return fmt.Errorf("scanning morph_to rows for %q: %w", alias, err)
		}

		for _, related := range results {
			key, err := idToString(related[pk])
			if err != nil {
				return fmt.Errorf("invalid key in morph_to results: %w", err)
			}
			for _, i := range g.index[key] {
				records[i][rel.Name] = related
			}
		}
	}

	return nil
}

// loadMorphToMany joins across the polymorphic pivot, filtered by the
// owner's discriminator value.
//
//	SELECT t.*, p.taggable_id AS __parent_id
//	FROM tags t INNER JOIN taggables p ON t.id = p.tag_id
//	WHERE p.taggable_type = $1 AND p.taggable_id = ANY($2)
func (l *Loader) loadMorphToMany(ctx context.Context, m *mapper.Mapper, records []Record, rel *entitymap.Relation) error {
	keys, index, err := collectKeys(records, rel.LocalKey)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	target, err := l.target(rel)
	if err != nil {
		return err
	}
	alias := l.ownerAlias(m.EntityMap().EntityType())

	query := fmt.Sprintf(
		"SELECT t.*, p.%s AS __parent_id FROM %s t INNER JOIN %s p ON t.%s = p.%s WHERE p.%s = $1 AND p.%s = ANY($2)",
		pq.QuoteIdentifier(rel.MorphID), pq.QuoteIdentifier(target.Table()),
		pq.QuoteIdentifier(rel.PivotTable), pq.QuoteIdentifier(target.EntityMap().PrimaryKey()),
		pq.QuoteIdentifier(rel.OtherKey), pq.QuoteIdentifier(rel.MorphType),
		pq.QuoteIdentifier(rel.MorphID))

	rows, err := target.DB().QueryContext(ctx, query, alias, pq.Array(keys))
	if err != nil {
		return fmt.Errorf("querying morph_to_many: %w", err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return fmt.Errorf("scanning morph_to_many rows: %w", err)
	}

	return attachJoined(records, index, results, rel.Name)
}

// loadMorphedByMany is the concrete side of the polymorphic pivot: the
// owner is matched by its own key column and the related morphable rows by
// the discriminator pair.
//
//	SELECT t.*, p.tag_id AS __parent_id
//	FROM posts t INNER JOIN taggables p ON t.id = p.taggable_id
//	WHERE p.taggable_type = $1 AND p.tag_id = ANY($2)
func (l *Loader) loadMorphedByMany(ctx context.Context, m *mapper.Mapper, records []Record, rel *entitymap.Relation) error {
	keys, index, err := collectKeys(records, rel.LocalKey)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	target, err := l.target(rel)
	if err != nil {
		return err
	}
	alias := l.ownerAlias(rel.Target)

	query := fmt.Sprintf(
		"SELECT t.*, p.%s AS __parent_id FROM %s t INNER JOIN %s p ON t.%s = p.%s WHERE p.%s = $1 AND p.%s = ANY($2)",
		pq.QuoteIdentifier(rel.ForeignKey), pq.QuoteIdentifier(target.Table()),
		pq.QuoteIdentifier(rel.PivotTable), pq.QuoteIdentifier(target.EntityMap().PrimaryKey()),
		pq.QuoteIdentifier(rel.MorphID), pq.QuoteIdentifier(rel.MorphType),
		pq.QuoteIdentifier(rel.ForeignKey))

	rows, err := target.DB().QueryContext(ctx, query, alias, pq.Array(keys))
	if err != nil {
		return fmt.Errorf("querying morphed_by_many: %w", err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return fmt.Errorf("scanning morphed_by_many rows: %w", err)
	}

	return attachJoined(records, index, results, rel.Name)
}

// throughTable resolves the intermediate table and primary key of a
// has-many-through, from the registered mapper when available.
func (l *Loader) throughTable(rel *entitymap.Relation) (string, string) {
	if m, err := l.dir.Mapper(rel.Through); err == nil {
		return m.Table(), m.EntityMap().PrimaryKey()
	}
	return inflect.TableName(rel.Through.Name()), "id"
}

// attachSingle maps one related row back to each owner via the given key
// column of the results.
func attachSingle(records []Record, index map[string][]int, results []Record, name, keyColumn string) error {
	for _, related := range results {
		key, err := idToString(related[keyColumn])
		if err != nil {
			return fmt.Errorf("invalid key in results: %w", err)
		}
		for _, i := range index[key] {
			records[i][name] = related
		}
	}
	return nil
}

// attachMany groups related rows by the given key column of the results.
// Owners without matches get an empty slice, never nil.
func attachMany(records []Record, index map[string][]int, results []Record, name, keyColumn string) error {
	grouped := make(map[string][]Record)
	for _, related := range results {
		key, err := idToString(related[keyColumn])
		if err != nil {
			return fmt.Errorf("invalid key in results: %w", err)
		}
		grouped[key] = append(grouped[key], related)
	}

	for _, record := range records {
		record[name] = []Record{}
	}
	for key, children := range grouped {
		for _, i := range index[key] {
			records[i][name] = children
		}
	}
	return nil
}

// attachJoined groups rows carrying the __parent_id join artifact.
func attachJoined(records []Record, index map[string][]int, results []Record, name string) error {
	grouped := make(map[string][]Record)
	for _, related := range results {
		key, err := idToString(related["__parent_id"])
		if err != nil {
			return fmt.Errorf("invalid parent key in join results: %w", err)
		}
		delete(related, "__parent_id")
		grouped[key] = append(grouped[key], related)
	}

	for _, record := range records {
		record[name] = []Record{}
	}
	for key, children := range grouped {
		for _, i := range index[key] {
			records[i][name] = children
		}
	}
	return nil
}
