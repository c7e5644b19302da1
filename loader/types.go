// Package loader provides batched relationship loading over the mapper
// directory, turning classified relations into grouped SQL queries with N+1
// prevention.
package loader

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/relorm/relorm/mapper"
)

// Record is one hydrated row, keyed by column name. Loaded relations are
// attached under the relation name: a Record for single kinds, a []Record
// for collection kinds.
type Record = map[string]interface{}

// DefaultMaxDepth bounds nested include chains.
const DefaultMaxDepth = 10

// Loader batches relationship queries across a set of owner records.
type Loader struct {
	dir      *mapper.Directory
	log      *zap.Logger
	maxDepth int
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// WithMaxDepth overrides the nested include depth limit.
func WithMaxDepth(depth int) Option {
	return func(l *Loader) {
		if depth > 0 {
			l.maxDepth = depth
		}
	}
}

// NewLoader creates a loader over a booted mapper directory.
func NewLoader(dir *mapper.Directory, opts ...Option) *Loader {
	l := &Loader{
		dir:      dir,
		log:      zap.NewNop(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadContext tracks loading state to prevent runaway include chains and
// circular loads.
type LoadContext struct {
	visited  map[string]bool
	depth    int
	maxDepth int
	mu       sync.Mutex
}

// NewLoadContext creates a load context with the given max depth.
func NewLoadContext(maxDepth int) *LoadContext {
	return &LoadContext{
		visited:  make(map[string]bool),
		maxDepth: maxDepth,
	}
}

// MarkVisited marks an entity class as being loaded in the current path.
// It reports false when the class is already on the path.
func (lc *LoadContext) MarkVisited(class string) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.visited[class] {
		return false
	}
	lc.visited[class] = true
	return true
}

// Unmark removes a class from the current path so the same class can load
// again in a sibling branch.
func (lc *LoadContext) Unmark(class string) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	delete(lc.visited, class)
}

// IncrementDepth increments the depth counter, failing past the limit.
func (lc *LoadContext) IncrementDepth() error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.depth++
	if lc.depth > lc.maxDepth {
		return ErrMaxDepthExceeded
	}
	return nil
}

// DecrementDepth decrements the depth counter.
func (lc *LoadContext) DecrementDepth() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.depth--
}

// LazyRelation defers loading a proxy-eligible relation until first access.
type LazyRelation struct {
	loader *Loader
	ctx    context.Context
	owner  Record
	m      *mapper.Mapper
	name   string

	mu     sync.Mutex
	loaded bool
	value  interface{}
	err    error
}

// Get loads the relation on first access. Subsequent calls return the
// memoized value.
func (lr *LazyRelation) Get() (interface{}, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.loaded {
		return lr.value, lr.err
	}

	lr.value, lr.err = lr.loader.LoadSingle(lr.ctx, lr.m, lr.owner, lr.name)
	lr.loaded = true
	return lr.value, lr.err
}

// IsLoaded reports whether the relation has been loaded.
func (lr *LazyRelation) IsLoaded() bool {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.loaded
}
