package loader

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relorm/relorm/entitymap"
	"github.com/relorm/relorm/mapper"
)

type Author struct {
	ID   string
	Name string
}

type Profile struct {
	ID       string
	AuthorID string
	Bio      string
}

type Book struct {
	ID       string
	AuthorID string
	Title    string
}

type Royalty struct {
	ID     string
	BookID string
	Amount int64
}

type Review struct {
	ID             string
	ReviewableType string
	ReviewableID   string
	Body           string
}

type Label struct {
	ID   string
	Name string
}

type AuthorMapping struct{ entitymap.Definition }

func (AuthorMapping) Entity() interface{} { return &Author{} }

func (AuthorMapping) Profile(a *Author, d *entitymap.Define) entitymap.Relation {
	return d.HasOne("profile", &Profile{})
}

func (AuthorMapping) Books(a *Author, d *entitymap.Define) entitymap.Relation {
	return d.HasMany("books", &Book{})
}

func (AuthorMapping) Royalties(a *Author, d *entitymap.Define) entitymap.Relation {
	return d.HasManyThrough("royalties", &Royalty{}, &Book{})
}

type ProfileMapping struct{ entitymap.Definition }

func (ProfileMapping) Entity() interface{} { return &Profile{} }

type BookMapping struct{ entitymap.Definition }

func (BookMapping) Entity() interface{} { return &Book{} }

func (BookMapping) Author(b *Book, d *entitymap.Define) entitymap.Relation {
	return d.BelongsTo("author", &Author{})
}

func (BookMapping) Reviews(b *Book, d *entitymap.Define) entitymap.Relation {
	return d.MorphMany("reviews", &Review{}, entitymap.WithMorphColumns("reviewable_type", "reviewable_id"))
}

func (BookMapping) Labels(b *Book, d *entitymap.Define) entitymap.Relation {
	return d.MorphToMany("labels", &Label{}, "labelable")
}

type RoyaltyMapping struct{ entitymap.Definition }

func (RoyaltyMapping) Entity() interface{} { return &Royalty{} }

type ReviewMapping struct{ entitymap.Definition }

func (ReviewMapping) Entity() interface{} { return &Review{} }

func (ReviewMapping) Reviewable(r *Review, d *entitymap.Define) entitymap.Relation {
	return d.MorphTo("reviewable")
}

type LabelMapping struct{ entitymap.Definition }

func (LabelMapping) Entity() interface{} { return &Label{} }

func (LabelMapping) Books(l *Label, d *entitymap.Define) entitymap.Relation {
	return d.MorphedByMany("books", &Book{}, "labelable")
}

func setupLoader(t *testing.T) (*Loader, *mapper.Directory, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dir := mapper.NewDirectory()
	for _, def := range []entitymap.Mapping{
		AuthorMapping{}, ProfileMapping{}, BookMapping{},
		RoyaltyMapping{}, ReviewMapping{}, LabelMapping{},
	} {
		require.NoError(t, dir.Register(def, db))
	}
	require.NoError(t, dir.Boot())
	require.NoError(t, dir.RegisterMorphAliases(map[string]string{
		"authors": "Author",
		"books":   "Book",
	}))

	return NewLoader(dir), dir, mock
}

func mapperFor(t *testing.T, dir *mapper.Directory, entity interface{}) *mapper.Mapper {
	t.Helper()
	m, err := dir.Mapper(entity)
	require.NoError(t, err)
	return m
}

func TestEagerLoadBelongsTo(t *testing.T) {
	l, dir, mock := setupLoader(t)

	books := []Record{
		{"id": "book-1", "title": "First", "author_id": "author-1"},
		{"id": "book-2", "title": "Second", "author_id": "author-2"},
		{"id": "book-3", "title": "Third", "author_id": "author-1"},
	}

	mock.ExpectQuery(`SELECT \* FROM "authors" WHERE "id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "name"}).
				AddRow("author-1", "Alice").
				AddRow("author-2", "Bob"),
		)

	err := l.EagerLoad(context.Background(), mapperFor(t, dir, &Book{}), books, []string{"author"})
	require.NoError(t, err)

	first := books[0]["author"].(Record)
	third := books[2]["author"].(Record)
	assert.Equal(t, "Alice", first["name"])
	assert.Equal(t, "Alice", third["name"])
	assert.Equal(t, "Bob", books[1]["author"].(Record)["name"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEagerLoadBelongsToMissingKeys(t *testing.T) {
	l, dir, mock := setupLoader(t)

	books := []Record{
		{"id": "book-1", "title": "Orphan", "author_id": nil},
	}

	// No foreign keys, so no query runs.
	err := l.EagerLoad(context.Background(), mapperFor(t, dir, &Book{}), books, []string{"author"})
	require.NoError(t, err)

	assert.Nil(t, books[0]["author"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEagerLoadHasOne(t *testing.T) {
	l, dir, mock := setupLoader(t)

	authors := []Record{
		{"id": "author-1", "name": "Alice"},
		{"id": "author-2", "name": "Bob"},
	}

	mock.ExpectQuery(`SELECT DISTINCT ON \("author_id"\) \* FROM "profiles" WHERE "author_id" = ANY\(\$1\) ORDER BY "author_id", "id"`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "author_id", "bio"}).
				AddRow("profile-1", "author-1", "writes things"),
		)

	err := l.EagerLoad(context.Background(), mapperFor(t, dir, &Author{}), authors, []string{"profile"})
	require.NoError(t, err)

	require.NotNil(t, authors[0]["profile"])
	assert.Equal(t, "writes things", authors[0]["profile"].(Record)["bio"])
	assert.Nil(t, authors[1]["profile"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEagerLoadHasMany(t *testing.T) {
	l, dir, mock := setupLoader(t)

	authors := []Record{
		{"id": "author-1", "name": "Alice"},
		{"id": "author-2", "name": "Bob"},
	}

	mock.ExpectQuery(`SELECT \* FROM "books" WHERE "author_id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "author_id", "title"}).
				AddRow("book-1", "author-1", "First").
				AddRow("book-2", "author-1", "Second"),
		)

	err := l.EagerLoad(context.Background(), mapperFor(t, dir, &Author{}), authors, []string{"books"})
	require.NoError(t, err)

	assert.Len(t, authors[0]["books"], 2)
	// Parents without children get an empty slice, never nil.
	assert.Equal(t, []Record{}, authors[1]["books"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEagerLoadHasManyThrough(t *testing.T) {
	l, dir, mock := setupLoader(t)

	authors := []Record{{"id": "author-1", "name": "Alice"}}

	mock.ExpectQuery(`SELECT t\.\*, j\."author_id" AS __parent_id FROM "royalties" t INNER JOIN "books" j ON t\."book_id" = j\."id" WHERE j\."author_id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "book_id", "amount", "__parent_id"}).
				AddRow("royalty-1", "book-1", 100, "author-1").
				AddRow("royalty-2", "book-2", 250, "author-1"),
		)

	err := l.EagerLoad(context.Background(), mapperFor(t, dir, &Author{}), authors, []string{"royalties"})
	require.NoError(t, err)

	royalties := authors[0]["royalties"].([]Record)
	require.Len(t, royalties, 2)
	// The join artifact is stripped from the attached rows.
	_, leaked := royalties[0]["__parent_id"]
	assert.False(t, leaked)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEagerLoadMorphMany(t *testing.T) {
	l, dir, mock := setupLoader(t)

	books := []Record{
		{"id": "book-1", "title": "First"},
		{"id": "book-2", "title": "Second"},
	}

	mock.ExpectQuery(`SELECT \* FROM "reviews" WHERE "reviewable_type" = \$1 AND "reviewable_id" = ANY\(\$2\)`).
		WithArgs("books", sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "reviewable_type", "reviewable_id", "body"}).
				AddRow("review-1", "books", "book-1", "great").
				AddRow("review-2", "books", "book-1", "awful"),
		)

	err := l.EagerLoad(context.Background(), mapperFor(t, dir, &Book{}), books, []string{"reviews"})
	require.NoError(t, err)

	assert.Len(t, books[0]["reviews"], 2)
	assert.Equal(t, []Record{}, books[1]["reviews"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEagerLoadMorphTo(t *testing.T) {
	l, dir, mock := setupLoader(t)

	reviews := []Record{
		{"id": "review-1", "reviewable_type": "books", "reviewable_id": "book-1"},
		{"id": "review-2", "reviewable_type": "authors", "reviewable_id": "author-1"},
		{"id": "review-3", "reviewable_type": nil, "reviewable_id": nil},
	}

	// One query per discriminator group, in alias order.
	mock.ExpectQuery(`SELECT \* FROM "authors" WHERE "id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "name"}).AddRow("author-1", "Alice"),
		)
	mock.ExpectQuery(`SELECT \* FROM "books" WHERE "id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "title"}).AddRow("book-1", "First"),
		)

	err := l.EagerLoad(context.Background(), mapperFor(t, dir, &Review{}), reviews, []string{"reviewable"})
	require.NoError(t, err)

	assert.Equal(t, "First", reviews[0]["reviewable"].(Record)["title"])
	assert.Equal(t, "Alice", reviews[1]["reviewable"].(Record)["name"])
	// Absent discriminator stays unresolved.
	assert.Nil(t, reviews[2]["reviewable"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEagerLoadMorphToUnknownAlias(t *testing.T) {
	l, dir, _ := setupLoader(t)

	reviews := []Record{
		{"id": "review-1", "reviewable_type": "widgets", "reviewable_id": "w-1"},
	}

	err := l.EagerLoad(context.Background(), mapperFor(t, dir, &Review{}), reviews, []string{"reviewable"})
	assert.ErrorIs(t, err, ErrUnknownMorphAlias)
}

func TestEagerLoadMorphToMany(t *testing.T) {
	l, dir, mock := setupLoader(t)

	books := []Record{{"id": "book-1", "title": "First"}}

	mock.ExpectQuery(`SELECT t\.\*, p\."labelable_id" AS __parent_id FROM "labels" t INNER JOIN "labelables" p ON t\."id" = p\."label_id" WHERE p\."labelable_type" = \$1 AND p\."labelable_id" = ANY\(\$2\)`).
		WithArgs("books", sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "name", "__parent_id"}).
				AddRow("label-1", "fiction", "book-1"),
		)

	err := l.EagerLoad(context.Background(), mapperFor(t, dir, &Book{}), books, []string{"labels"})
	require.NoError(t, err)

	labels := books[0]["labels"].([]Record)
	require.Len(t, labels, 1)
	assert.Equal(t, "fiction", labels[0]["name"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEagerLoadMorphedByMany(t *testing.T) {
	l, dir, mock := setupLoader(t)

	labels := []Record{{"id": "label-1", "name": "fiction"}}

	mock.ExpectQuery(`SELECT t\.\*, p\."label_id" AS __parent_id FROM "books" t INNER JOIN "labelables" p ON t\."id" = p\."labelable_id" WHERE p\."labelable_type" = \$1 AND p\."label_id" = ANY\(\$2\)`).
		WithArgs("books", sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "title", "__parent_id"}).
				AddRow("book-1", "First", "label-1").
				AddRow("book-2", "Second", "label-1"),
		)

	err := l.EagerLoad(context.Background(), mapperFor(t, dir, &Label{}), labels, []string{"books"})
	require.NoError(t, err)

	assert.Len(t, labels[0]["books"], 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEagerLoadNestedIncludes(t *testing.T) {
	l, dir, mock := setupLoader(t)

	authors := []Record{{"id": "author-1", "name": "Alice"}}

	mock.ExpectQuery(`SELECT \* FROM "books" WHERE "author_id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "author_id", "title"}).
				AddRow("book-1", "author-1", "First"),
		)
	mock.ExpectQuery(`SELECT \* FROM "reviews" WHERE "reviewable_type" = \$1 AND "reviewable_id" = ANY\(\$2\)`).
		WithArgs("books", sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "reviewable_type", "reviewable_id", "body"}).
				AddRow("review-1", "books", "book-1", "great"),
		)

	err := l.EagerLoad(context.Background(), mapperFor(t, dir, &Author{}), authors, []string{"books.reviews"})
	require.NoError(t, err)

	books := authors[0]["books"].([]Record)
	require.Len(t, books, 1)
	reviews := books[0]["reviews"].([]Record)
	require.Len(t, reviews, 1)
	assert.Equal(t, "great", reviews[0]["body"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEagerLoadCycleSkipsSilently(t *testing.T) {
	l, dir, mock := setupLoader(t)

	books := []Record{{"id": "book-1", "title": "First", "author_id": "author-1"}}

	// Book -> author -> books would revisit Book; the nested branch is
	// skipped without error.
	mock.ExpectQuery(`SELECT \* FROM "authors" WHERE "id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "name"}).AddRow("author-1", "Alice"),
		)
	mock.ExpectQuery(`SELECT \* FROM "books" WHERE "author_id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "author_id", "title"}).
				AddRow("book-1", "author-1", "First"),
		)

	err := l.EagerLoad(context.Background(), mapperFor(t, dir, &Book{}), books, []string{"author.books.author"})
	require.NoError(t, err)

	author := books[0]["author"].(Record)
	nested := author["books"].([]Record)
	require.Len(t, nested, 1)
	// The cyclic third level never loaded.
	_, loaded := nested[0]["author"]
	assert.False(t, loaded)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEagerLoadDepthLimit(t *testing.T) {
	_, dir, mock := setupLoader(t)
	l := NewLoader(dir, WithMaxDepth(1))

	authors := []Record{{"id": "author-1", "name": "Alice"}}

	mock.ExpectQuery(`SELECT \* FROM "books" WHERE "author_id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "author_id", "title"}).
				AddRow("book-1", "author-1", "First"),
		)

	err := l.EagerLoad(context.Background(), mapperFor(t, dir, &Author{}), authors, []string{"books.reviews"})
	assert.ErrorIs(t, err, ErrMaxDepthExceeded)
}

func TestEagerLoadUnknownRelation(t *testing.T) {
	l, dir, _ := setupLoader(t)

	authors := []Record{{"id": "author-1"}}
	err := l.EagerLoad(context.Background(), mapperFor(t, dir, &Author{}), authors, []string{"publisher"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownRelation)
	assert.Contains(t, err.Error(), "publisher")
}

func TestEagerLoadEmptyRecords(t *testing.T) {
	l, dir, mock := setupLoader(t)

	err := l.EagerLoad(context.Background(), mapperFor(t, dir, &Author{}), nil, []string{"books"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLazyRelation(t *testing.T) {
	t.Run("loads once and memoizes", func(t *testing.T) {
		l, dir, mock := setupLoader(t)

		id := uuid.NewString()
		author := Record{"id": id, "name": "Alice"}

		mock.ExpectQuery(`SELECT \* FROM "books" WHERE "author_id" = ANY\(\$1\)`).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(
				sqlmock.NewRows([]string{"id", "author_id", "title"}).
					AddRow("book-1", id, "First"),
			)

		lazy, err := l.Lazy(context.Background(), mapperFor(t, dir, &Author{}), author, "books")
		require.NoError(t, err)
		assert.False(t, lazy.IsLoaded())

		value, err := lazy.Get()
		require.NoError(t, err)
		assert.Len(t, value, 1)
		assert.True(t, lazy.IsLoaded())

		// Second access hits the memoized value, not the database.
		again, err := lazy.Get()
		require.NoError(t, err)
		assert.Equal(t, value, again)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("refuses always-eager relations", func(t *testing.T) {
		l, dir, _ := setupLoader(t)

		author := Record{"id": "author-1"}
		_, err := l.Lazy(context.Background(), mapperFor(t, dir, &Author{}), author, "profile")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotProxyable)
	})

	t.Run("unknown relation", func(t *testing.T) {
		l, dir, _ := setupLoader(t)

		_, err := l.Lazy(context.Background(), mapperFor(t, dir, &Author{}), Record{}, "publisher")
		assert.ErrorIs(t, err, ErrUnknownRelation)
	})

	t.Run("nil owner record", func(t *testing.T) {
		l, dir, _ := setupLoader(t)

		_, err := l.LoadSingle(context.Background(), mapperFor(t, dir, &Author{}), nil, "books")
		assert.ErrorIs(t, err, ErrNoRecords)
	})
}

func TestEagerLoadManyToMany(t *testing.T) {
	// plainBookMapping swaps the polymorphic labels for a plain pivot, so it
	// gets its own directory.
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := mapper.NewDirectory()
	for _, def := range []entitymap.Mapping{
		plainBookMapping{}, LabelMapping{}, AuthorMapping{},
		ProfileMapping{}, RoyaltyMapping{}, ReviewMapping{},
	} {
		require.NoError(t, dir.Register(def, db))
	}
	require.NoError(t, dir.Boot())

	l := NewLoader(dir)
	books := []Record{{"id": "book-1", "title": "First"}}

	mock.ExpectQuery(`SELECT t\.\*, p\."book_id" AS __parent_id FROM "labels" t INNER JOIN "books_labels" p ON t\."id" = p\."label_id" WHERE p\."book_id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "name", "__parent_id"}).
				AddRow("label-1", "fiction", "book-1"),
		)

	m, err := dir.Mapper(&Book{})
	require.NoError(t, err)
	require.NoError(t, l.EagerLoad(context.Background(), m, books, []string{"labels"}))

	assert.Len(t, books[0]["labels"], 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type plainBookMapping struct{ entitymap.Definition }

func (plainBookMapping) Entity() interface{} { return &Book{} }

func (plainBookMapping) Labels(b *Book, d *entitymap.Define) entitymap.Relation {
	return d.ManyToMany("labels", &Label{})
}
