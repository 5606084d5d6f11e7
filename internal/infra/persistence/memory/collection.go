package memory

import (
	"sync"

	"socialcore/pkg/domain"
)

// Filter selects records whose JSON field equals Value. Value must carry the
// field's Go type (string for ids and text, float64 for balance, and so on).
// Only scalar fields are filterable.
type Filter struct {
	Field string
	Value any
}

// Schema describes how a Collection reads and copies one entity kind.
type Schema[T any] struct {
	Entity domain.EntityType
	ID     func(T) string
	SetID  func(*T, string)
	Field  func(T, string) (any, bool)
	Clone  func(T) T
}

// Collection is an insertion-ordered, id-keyed container for one entity kind.
// Every call is an isolated step guarded by the collection's own lock; records
// cross the boundary as copies.
type Collection[T any] struct {
	mu      sync.RWMutex
	schema  Schema[T]
	ids     domain.IDGenerator
	order   []string
	records map[string]T
}

// NewCollection constructs an empty collection.
func NewCollection[T any](schema Schema[T], ids domain.IDGenerator) *Collection[T] {
	if schema.Clone == nil {
		schema.Clone = func(v T) T { return v }
	}
	return &Collection[T]{schema: schema, ids: ids, records: make(map[string]T)}
}

// Entity reports the kind of record held.
func (c *Collection[T]) Entity() domain.EntityType { return c.schema.Entity }

// FindMany returns every record matching filter in insertion order. A nil
// filter matches all records.
func (c *Collection[T]) FindMany(filter *Filter) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.order))
	for _, id := range c.order {
		rec := c.records[id]
		if filter != nil && !c.matches(rec, *filter) {
			continue
		}
		out = append(out, c.schema.Clone(rec))
	}
	return out
}

// FindOne returns the first record matching filter.
func (c *Collection[T]) FindOne(filter Filter) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if filter.Field == "id" {
		if id, ok := filter.Value.(string); ok {
			rec, found := c.records[id]
			if !found {
				var zero T
				return zero, false
			}
			return c.schema.Clone(rec), true
		}
	}
	for _, id := range c.order {
		rec := c.records[id]
		if c.matches(rec, filter) {
			return c.schema.Clone(rec), true
		}
	}
	var zero T
	return zero, false
}

// Get is shorthand for FindOne on the id field.
func (c *Collection[T]) Get(id string) (T, bool) {
	return c.FindOne(Filter{Field: "id", Value: id})
}

// Create stores rec under a freshly generated id and returns the stored copy.
// Any id already present on rec is replaced.
func (c *Collection[T]) Create(rec T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.ids.NewID()
	for {
		if _, taken := c.records[id]; !taken {
			break
		}
		id = c.ids.NewID()
	}
	stored := c.schema.Clone(rec)
	c.schema.SetID(&stored, id)
	c.records[id] = stored
	c.order = append(c.order, id)
	return c.schema.Clone(stored)
}

// Insert stores rec under the id it already carries. It backs seeding of
// fixed-id records and fails when the id is taken.
func (c *Collection[T]) Insert(rec T) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.schema.ID(rec)
	if _, exists := c.records[id]; exists {
		var zero T
		return zero, domain.Invalidf("%s %q already exists", c.schema.Entity, id)
	}
	stored := c.schema.Clone(rec)
	c.records[id] = stored
	c.order = append(c.order, id)
	return c.schema.Clone(stored), nil
}

// Change applies mutator to the record with the given id and returns the
// updated copy. The id is restored after mutator runs.
func (c *Collection[T]) Change(id string, mutator func(*T)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.records[id]
	if !ok {
		var zero T
		return zero, domain.NotFound(c.schema.Entity, id)
	}
	updated := c.schema.Clone(current)
	mutator(&updated)
	c.schema.SetID(&updated, id)
	c.records[id] = updated
	return c.schema.Clone(updated), nil
}

// Delete removes and returns the record with the given id.
func (c *Collection[T]) Delete(id string) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.records[id]
	if !ok {
		var zero T
		return zero, domain.NotFound(c.schema.Entity, id)
	}
	delete(c.records, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return current, nil
}

// Len reports the number of stored records.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

func (c *Collection[T]) matches(rec T, filter Filter) bool {
	v, ok := c.schema.Field(rec, filter.Field)
	return ok && v == filter.Value
}
