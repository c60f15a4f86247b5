package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studyable/studyhub/internal/apperr"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	rows    []Notification
	byEvent map[uuid.UUID]int64 // event id -> notification id, for idempotent retry
}

// NewMemoryStore creates an empty in-memory notification store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byEvent: make(map[uuid.UUID]int64)}
}

func (s *MemoryStore) Insert(_ context.Context, ev Event) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byEvent[ev.ID]; ok {
		for _, n := range s.rows {
			if n.ID == id {
				return n, nil
			}
		}
	}

	s.nextID++
	n := Notification{
		ID:          s.nextID,
		UserID:      ev.RecipientID,
		Type:        ev.Type,
		Ref:         ev.Ref,
		CommunityID: ev.CommunityID,
		ActorID:     ev.ActorID,
		Message:     ev.Message,
		CreatedAt:   ev.CreatedAt,
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	s.rows = append(s.rows, n)
	s.byEvent[ev.ID] = n.ID
	return n, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.rows {
		if n.ID == id {
			return n, nil
		}
	}
	return Notification{}, fmt.Errorf("%w: notification %d", apperr.ErrNotFound, id)
}

func (s *MemoryStore) List(_ context.Context, userID int64, f Filter) ([]Notification, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []Notification{}
	for _, n := range s.rows {
		if n.UserID != userID {
			continue
		}
		if f.Unread != nil && *f.Unread == n.Read {
			continue
		}
		if f.Type != nil && *f.Type != n.Type {
			continue
		}
		matched = append(matched, n)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	if f.Offset >= total {
		return []Notification{}, total, nil
	}
	end := f.Offset + f.Limit
	if f.Limit <= 0 || end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, id int64) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.rows {
		if n.ID == id {
			s.rows[i].Read = true
			return s.rows[i], nil
		}
	}
	return Notification{}, fmt.Errorf("%w: notification %d", apperr.ErrNotFound, id)
}

func (s *MemoryStore) MarkAllRead(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for i, n := range s.rows {
		if n.UserID == userID && !n.Read {
			s.rows[i].Read = true
			updated++
		}
	}
	return updated, nil
}

func (s *MemoryStore) UnreadCount(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, n := range s.rows {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

// All returns every stored notification; test helper.
func (s *MemoryStore) All() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification{}, s.rows...)
}
