package storage

import "github.com/behrlich/drisc/internal/kernel"

// Structure is a table indexed by K (family id, thread id, register
// address) with arbitrated read/write ports registered separately on
// the owning kernel. Structure itself only tracks occupancy and
// contents; Port (internal/kernel) decides which process may call its
// mutating methods in a given cycle.
type Structure[K comparable, V any] struct {
	id     string
	tracer kernel.Tracer
	data   map[K]V
}

// NewStructure creates an empty table.
func NewStructure[K comparable, V any](id string, tracer kernel.Tracer) *Structure[K, V] {
	return &Structure[K, V]{id: id, tracer: tracer, data: make(map[K]V)}
}

// Identity returns the table's trace identity.
func (s *Structure[K, V]) Identity() string { return s.id }

// NonEmpty reports whether the table holds any entries.
func (s *Structure[K, V]) NonEmpty() bool { return len(s.data) > 0 }

// Len returns the number of entries currently stored.
func (s *Structure[K, V]) Len() int { return len(s.data) }

// Get returns the value at k, and whether it was present.
func (s *Structure[K, V]) Get(k K) (V, bool) {
	v, ok := s.data[k]
	return v, ok
}

// Set stores v at k, overwriting any existing entry.
func (s *Structure[K, V]) Set(k K, v V) {
	s.data[k] = v
	s.tracer.Touch(s.id)
}

// Delete removes the entry at k, if any.
func (s *Structure[K, V]) Delete(k K) {
	if _, ok := s.data[k]; !ok {
		return
	}
	delete(s.data, k)
	s.tracer.Touch(s.id)
}

// Keys returns the table's keys in unspecified order, for diagnostics.
func (s *Structure[K, V]) Keys() []K {
	keys := make([]K, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}
