// Package memory provides an in-process implementation of the persistence
// backend used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"alienrisk/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain backend interface.
var _ domain.Backend = (*Store)(nil)

// Store keeps payloads in a process-local map. Payloads are copied on the way
// in and out so callers never share backing arrays with the store.
type Store struct {
	mu      sync.RWMutex
	entries map[string][]byte
	closed  bool
}

// NewStore returns an empty in-memory backend.
func NewStore() *Store {
	return &Store{entries: make(map[string][]byte)}
}

// Read returns a copy of the payload under key, or nil when absent.
func (s *Store) Read(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("memory store closed")
	}
	payload, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), payload...), nil
}

// Write replaces the payload under key.
func (s *Store) Write(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory store closed")
	}
	s.entries[key] = append([]byte(nil), payload...)
	return nil
}

// Remove deletes key if present.
func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory store closed")
	}
	delete(s.entries, key)
	return nil
}

// Keys lists stored keys in ascending order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close marks the store closed; later calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
