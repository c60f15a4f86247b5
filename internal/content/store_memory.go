package content

import (
	"context"
	"fmt"
	"sync"

	"github.com/studyable/studyhub/internal/apperr"
)

// MemoryStore is an in-memory Store implementation. It also serves as a
// MembershipChecker so tests can wire a whole registry from one value.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Ref]Resolution
	members map[int64]map[int64]bool // communityID -> userID -> member
}

// NewMemoryStore creates an empty in-memory content store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[Ref]Resolution),
		members: make(map[int64]map[int64]bool),
	}
}

// Put registers a content row's facts.
func (s *MemoryStore) Put(ref Ref, res Resolution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[ref] = res
}

// Remove forgets a content row.
func (s *MemoryStore) Remove(ref Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, ref)
}

// AddMember records community membership.
func (s *MemoryStore) AddMember(communityID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[communityID] == nil {
		s.members[communityID] = make(map[int64]bool)
	}
	s.members[communityID][userID] = true
}

func (s *MemoryStore) Lookup(_ context.Context, ref Ref) (Resolution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.entries[ref]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %s", apperr.ErrNotFound, ref)
	}
	return res, nil
}

func (s *MemoryStore) IsMember(_ context.Context, communityID, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[communityID][userID], nil
}
