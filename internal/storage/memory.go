package storage

import (
	"context"
	"sync"

	"wastewater/internal/core"
)

// MemoryStore keeps the dataset in memory. Saves are counted so callers
// can check whether a write-back happened.
type MemoryStore struct {
	mu    sync.Mutex
	ds    core.Dataset
	saves int
	// SaveErr, when set, is returned wrapped in a *WriteError by Save.
	SaveErr error
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ds core.Dataset) *MemoryStore {
	return &MemoryStore{ds: append(core.Dataset(nil), ds...)}
}

func (s *MemoryStore) Load(_ context.Context) (core.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(core.Dataset{}, s.ds...), nil
}

func (s *MemoryStore) Save(_ context.Context, ds core.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return &WriteError{Path: "memory", Err: s.SaveErr}
	}
	s.ds = append(core.Dataset(nil), ds...)
	s.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
