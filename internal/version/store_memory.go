package version

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/studyable/studyhub/internal/apperr"
	"github.com/studyable/studyhub/internal/content"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	byRef  map[content.Ref][]Version
}

// NewMemoryStore creates an empty in-memory version store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byRef: make(map[content.Ref][]Version)}
}

func (s *MemoryStore) Insert(_ context.Context, v Version) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byRef[v.Ref] {
		if existing.Number == v.Number {
			return Version{}, fmt.Errorf("%w: version %d already exists for %s", apperr.ErrConflict, v.Number, v.Ref)
		}
	}

	s.nextID++
	v.ID = s.nextID
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	s.byRef[v.Ref] = append(s.byRef[v.Ref], v)
	return v, nil
}

func (s *MemoryStore) MaxNumber(_ context.Context, ref content.Ref) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	max := 0
	for _, v := range s.byRef[ref] {
		if v.Number > max {
			max = v.Number
		}
	}
	return max, nil
}

func (s *MemoryStore) Get(_ context.Context, ref content.Ref, number int) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.byRef[ref] {
		if v.Number == number {
			return v, nil
		}
	}
	return Version{}, fmt.Errorf("%w: version %d of %s", apperr.ErrNotFound, number, ref)
}

func (s *MemoryStore) List(_ context.Context, ref content.Ref, limit, offset int) ([]Version, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := append([]Version{}, s.byRef[ref]...)
	sort.Slice(all, func(i, j int) bool { return all[i].Number > all[j].Number })

	total := len(all)
	if offset >= total {
		return []Version{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *MemoryStore) Prune(_ context.Context, ref content.Ref, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.byRef[ref]
	if len(all) <= keep {
		return 0, nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Number > all[j].Number })
	removed := len(all) - keep
	s.byRef[ref] = append([]Version{}, all[:keep]...)
	return removed, nil
}
