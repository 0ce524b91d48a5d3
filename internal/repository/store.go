// Package repository provides in-memory storage for execution records.
// Records are not durable: crash recovery is out of scope.
package repository

import (
	"errors"
	"sync"
)

// ErrNotFound is returned when the requested key does not exist.
var ErrNotFound = errors.New("not found")

// Store is a generic thread-safe in-memory key-value store.
type Store[V any] struct {
	mu      sync.RWMutex
	data    map[string]V
	keyFunc func(V) string
}

// NewStore creates a Store with a key extractor function.
func NewStore[V any](keyFunc func(V) string) *Store[V] {
	return &Store[V]{
		data:    make(map[string]V),
		keyFunc: keyFunc,
	}
}

// Set inserts or replaces the value, using keyFunc to derive the key.
func (s *Store[V]) Set(v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[s.keyFunc(v)] = v
}

// Get returns the value for key, or ErrNotFound if absent.
func (s *Store[V]) Get(key string) (V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		var zero V
		return zero, ErrNotFound
	}
	return v, nil
}

// Delete removes the value for key. Returns ErrNotFound if absent.
func (s *Store[V]) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return ErrNotFound
	}
	delete(s.data, key)
	return nil
}

// All returns all stored values in arbitrary order.
func (s *Store[V]) All() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]V, 0, len(s.data))
	for _, v := range s.data {
		out = append(out, v)
	}
	return out
}

// Len returns the number of stored values.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
