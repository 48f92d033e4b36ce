package store

import (
	"context"
	"maps"
	"sync"

	"ciphera/internal/identity"
)

// MemoryStore is an in-memory Store for tests and ephemeral nodes.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]identity.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]identity.Record{}}
}

func (s *MemoryStore) Load(_ context.Context) (map[string]identity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.records), nil
}

func (s *MemoryStore) Save(_ context.Context, records map[string]identity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = maps.Clone(records)
	return nil
}
