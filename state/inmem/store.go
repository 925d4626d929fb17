// Package inmem provides a map-backed state.Store for tests, avoiding a
// live Redis dependency while preserving the exact read-modify-write
// contract of the production backend.
package inmem

import (
	"context"
	"sync"

	"github.com/agentware/agentctl/state"
)

// Store is a goroutine-safe in-memory state.Store.
type Store struct {
	mu   sync.Mutex
	data map[string][]byte
}

// New constructs an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[key] = cp
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

var _ state.Store = (*Store)(nil)
