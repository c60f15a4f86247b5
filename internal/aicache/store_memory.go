package aicache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/studyable/studyhub/internal/apperr"
)

type entryKey struct {
	fileID int64
	typ    ProcessingType
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	entries map[entryKey]Entry
}

// NewMemoryStore creates an empty in-memory cache store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[entryKey]Entry)}
}

func (s *MemoryStore) Put(_ context.Context, e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey{fileID: e.PhysicalFileID, typ: e.Type}
	if existing, ok := s.entries[key]; ok {
		e.ID = existing.ID
		e.CreatedAt = existing.CreatedAt
	} else {
		s.nextID++
		e.ID = s.nextID
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
	}
	s.entries[key] = e
	return e, nil
}

func (s *MemoryStore) Get(_ context.Context, physicalFileID int64, typ ProcessingType) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryKey{fileID: physicalFileID, typ: typ}]
	if !ok {
		return Entry{}, fmt.Errorf("%w: no %s cache for file %d", apperr.ErrNotFound, typ, physicalFileID)
	}
	return e, nil
}

func (s *MemoryStore) DeleteForFile(_ context.Context, physicalFileID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := int64(0)
	for key := range s.entries {
		if key.fileID == physicalFileID {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}
