package entitymap

import (
	"reflect"
	"testing"

	"github.com/relorm/relorm/morph"
)

// Test entities covering every relationship variant.

type User struct {
	ID    string
	Name  string
	Email string
}

type Profile struct {
	ID     string
	UserID string
	Bio    string
}

type Post struct {
	ID       string
	Title    string
	AuthorID string `db:"author_id"`
}

func (p *Post) Ident() string { return p.ID }

type Comment struct {
	ID              string
	Body            string
	CommentableType string
	CommentableID   string
}

type Tag struct {
	ID    string
	Label string
}

type Order struct {
	ID         string
	CustomerID string
}

type Customer struct {
	ID string
}

type Image struct {
	ID            string
	ImageableType string
	ImageableID   string
}

type Address struct {
	Street string
	City   string
}

// Identifiable exercises supertype matching in discovery: a relationship
// method may declare an interface parameter the entity satisfies.
type Identifiable interface {
	Ident() string
}

// Mapping definitions.

type UserMapping struct{ Definition }

func (UserMapping) Entity() interface{} { return &User{} }

func (UserMapping) Profile(u *User, d *Define) Relation {
	return d.HasOne("profile", &Profile{})
}

func (UserMapping) Posts(u *User, d *Define) Relation {
	return d.HasMany("posts", &Post{})
}

func (UserMapping) Comments(u *User, d *Define) Relation {
	return d.HasManyThrough("comments", &Comment{}, &Post{})
}

func (UserMapping) Avatar(u *User, d *Define) Relation {
	return d.MorphOne("avatar", &Image{})
}

func (UserMapping) HomeAddress(u *User, d *Define) Relation {
	return d.EmbedsOne("home_address", &Address{})
}

// DisplayName is a plain helper; the discovery pass must skip it.
func (UserMapping) DisplayName(u *User) string { return u.Name }

type PostMapping struct{ Definition }

func (PostMapping) Entity() interface{} { return &Post{} }

func (PostMapping) Author(p *Post, d *Define) Relation {
	return d.BelongsTo("author", &User{})
}

// Tags declares its first parameter as an interface the entity implements.
func (PostMapping) Tags(p Identifiable, d *Define) Relation {
	return d.ManyToMany("tags", &Tag{})
}

func (PostMapping) Images(p *Post, d *Define) Relation {
	return d.MorphMany("images", &Image{})
}

type CommentMapping struct{ Definition }

func (CommentMapping) Entity() interface{} { return &Comment{} }

func (CommentMapping) Commentable(c *Comment, d *Define) Relation {
	return d.MorphTo("commentable")
}

type TagMapping struct{ Definition }

func (TagMapping) Entity() interface{} { return &Tag{} }

func (TagMapping) Posts(t *Tag, d *Define) Relation {
	return d.MorphedByMany("posts", &Post{}, "taggable")
}

type OrderMapping struct{ Definition }

func (OrderMapping) Entity() interface{} { return &Order{} }

func (OrderMapping) Customer(o *Order, d *Define) Relation {
	return d.BelongsTo("customer", &Customer{})
}

type CustomerMapping struct{ Definition }

func (CustomerMapping) Entity() interface{} { return &Customer{} }

type ProfileMapping struct{ Definition }

func (ProfileMapping) Entity() interface{} { return &Profile{} }

type ImageMapping struct{ Definition }

func (ImageMapping) Entity() interface{} { return &Image{} }

// Directory fake: enough of the mapper directory for classification and
// descriptor resolution.

type fakeMapper struct{ m *Map }

func (f fakeMapper) EntityMap() *Map { return f.m }

type fakeDirectory struct {
	mappers map[reflect.Type]*Map
}

func (f *fakeDirectory) Mapper(t reflect.Type) (Mapper, bool) {
	m, ok := f.mappers[t]
	if !ok {
		return nil, false
	}
	return fakeMapper{m: m}, true
}

func (f *fakeDirectory) MapperFor(class string) (Mapper, bool) {
	for _, m := range f.mappers {
		if m.Class() == class {
			return fakeMapper{m: m}, true
		}
	}
	return nil, false
}

// bootAll builds and boots maps for the given mappings against a shared
// directory, failing the test on any error.
func bootAll(t *testing.T, defs ...Mapping) (*fakeDirectory, map[string]*Map) {
	t.Helper()

	dir := &fakeDirectory{mappers: make(map[reflect.Type]*Map)}
	maps := make(map[string]*Map, len(defs))
	byDef := make(map[Mapping]*Map, len(defs))

	for _, def := range defs {
		m, err := New(def)
		if err != nil {
			t.Fatalf("New(%T): %v", def, err)
		}
		dir.mappers[m.EntityType()] = m
		maps[m.Class()] = m
		byDef[def] = m
	}

	for _, def := range defs {
		if err := Boot(byDef[def], def, dir, nil); err != nil {
			t.Fatalf("Boot(%T): %v", def, err)
		}
	}

	return dir, maps
}

func testMorphs(t *testing.T) *morph.Registry {
	t.Helper()
	morphs := morph.NewRegistry()
	for alias, entity := range map[string]interface{}{
		"posts":  &Post{},
		"users":  &User{},
		"images": &Image{},
	} {
		if err := morphs.Register(alias, entity); err != nil {
			t.Fatalf("morph register %q: %v", alias, err)
		}
	}
	return morphs
}
