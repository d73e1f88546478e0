// Package memory is an in-process DocumentStore for development and tests.
// It enforces the same index rules as the Postgres store so degraded
// behaviour can be exercised without a database.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omendivilg/CoffeeBox/internal/store"
)

// Store keeps documents in nested maps guarded by a RWMutex.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	indexes     map[string]struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithIndexes replaces the provisioned index set.
func WithIndexes(names ...string) Option {
	return func(s *Store) {
		s.indexes = make(map[string]struct{}, len(names))
		for _, n := range names {
			s.indexes[n] = struct{}{}
		}
	}
}

// New returns an empty store with store.DefaultIndexes provisioned.
func New(opts ...Option) *Store {
	s := &Store{collections: make(map[string]map[string]map[string]any)}
	WithIndexes(store.DefaultIndexes...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.DocumentStore = (*Store)(nil)

// ProvisionIndex marks an index as available.
func (s *Store) ProvisionIndex(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[name] = struct{}{}
}

// Put writes a document with a known id, replacing any existing one.
func (s *Store) Put(collection, id string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(collection)[id] = copyFields(fields)
}

// Get implements store.DocumentStore.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.collections[collection][id]
	if !ok {
		return store.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, store.ErrNotFound)
	}
	return store.Document{ID: id, Fields: copyFields(fields)}, nil
}

// Query implements store.DocumentStore.
func (s *Store) Query(ctx context.Context, collection string, q store.Query) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx := store.RequiredIndex(collection, q); idx != "" {
		if _, ok := s.indexes[idx]; !ok {
			return nil, fmt.Errorf("query %s (%s): %w", collection, idx, store.ErrDegradedQuery)
		}
	}

	var out []store.Document
	for id, fields := range s.collections[collection] {
		if matches(fields, q.Filters) {
			out = append(out, store.Document{ID: id, Fields: copyFields(fields)})
		}
	}

	// Map iteration is random; sort by id first so results are stable.
	slices.SortFunc(out, func(a, b store.Document) int { return cmp.Compare(a.ID, b.ID) })
	if q.OrderBy != nil {
		field, desc := q.OrderBy.Field, q.OrderBy.Descending
		slices.SortStableFunc(out, func(a, b store.Document) int {
			c := compareValues(a.Fields[field], b.Fields[field])
			if desc {
				return -c
			}
			return c
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Insert implements store.DocumentStore.
func (s *Store) Insert(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.Put(collection, id, fields)
	return id, nil
}

// Update implements store.DocumentStore.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("update %s/%s: %w", collection, id, store.ErrNotFound)
	}
	maps.Copy(existing, copyFields(fields))
	return nil
}

func (s *Store) collection(name string) map[string]map[string]any {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]map[string]any)
		s.collections[name] = c
	}
	return c
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if list, ok := v.([]string); ok {
			v = slices.Clone(list)
		}
		out[k] = v
	}
	return out
}

func matches(fields map[string]any, filters []store.Filter) bool {
	for _, f := range filters {
		v, ok := fields[f.Field]
		if !ok || !equalValues(v, f.Value) {
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders numbers, strings and times. Missing values sort
// first; mismatched kinds compare equal.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return cmp.Compare(fa, fb)
		}
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return cmp.Compare(av, bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
