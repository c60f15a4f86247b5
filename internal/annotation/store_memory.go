package annotation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/studyable/studyhub/internal/apperr"
	"github.com/studyable/studyhub/internal/content"
)

type ratingKey struct {
	userID int64
	ref    content.Ref
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu           sync.Mutex
	nextComment  int64
	nextRating   int64
	comments     []Comment
	ratings      map[ratingKey]Rating
	analytics    map[content.Ref]*Analytics
}

// NewMemoryStore creates an empty in-memory annotation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ratings:   make(map[ratingKey]Rating),
		analytics: make(map[content.Ref]*Analytics),
	}
}

func (s *MemoryStore) counters(ref content.Ref) *Analytics {
	a, ok := s.analytics[ref]
	if !ok {
		a = &Analytics{Ref: ref}
		s.analytics[ref] = a
	}
	return a
}

func (s *MemoryStore) InsertComment(_ context.Context, c Comment) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextComment++
	c.ID = s.nextComment
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.comments = append(s.comments, c)

	a := s.counters(c.Ref)
	a.Comments++
	a.UpdatedAt = now
	return c, nil
}

func (s *MemoryStore) GetComment(_ context.Context, id int64) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.comments {
		if c.ID == id {
			return c, nil
		}
	}
	return Comment{}, fmt.Errorf("%w: comment %d", apperr.ErrNotFound, id)
}

func (s *MemoryStore) UpdateCommentBody(_ context.Context, id int64, body string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.comments {
		if c.ID == id {
			s.comments[i].Body = body
			s.comments[i].Edited = true
			s.comments[i].UpdatedAt = time.Now()
			return s.comments[i], nil
		}
	}
	return Comment{}, fmt.Errorf("%w: comment %d", apperr.ErrNotFound, id)
}

func (s *MemoryStore) SoftDeleteComment(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.comments {
		if c.ID == id {
			if c.Deleted {
				return false, nil
			}
			s.comments[i].Deleted = true
			s.comments[i].UpdatedAt = time.Now()
			a := s.counters(c.Ref)
			a.Comments--
			a.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, fmt.Errorf("%w: comment %d", apperr.ErrNotFound, id)
}

func (s *MemoryStore) TopLevelComments(_ context.Context, ref content.Ref, limit, offset int) ([]Comment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []Comment{}
	for _, c := range s.comments {
		if c.Ref != ref || c.ParentID != nil {
			continue
		}
		// Deleted top-level comments stay visible as tombstones only
		// when replies exist; bare deleted comments disappear.
		if c.Deleted && !s.hasLiveReplies(c.ID) {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	if offset >= total {
		return []Comment{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *MemoryStore) hasLiveReplies(parentID int64) bool {
	for _, c := range s.comments {
		if c.ParentID != nil && *c.ParentID == parentID && !c.Deleted {
			return true
		}
	}
	return false
}

func (s *MemoryStore) Replies(_ context.Context, parentID int64) ([]Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replies := []Comment{}
	for _, c := range s.comments {
		if c.ParentID != nil && *c.ParentID == parentID && !c.Deleted {
			replies = append(replies, c)
		}
	}
	sort.Slice(replies, func(i, j int) bool { return replies[i].ID < replies[j].ID })
	return replies, nil
}

func (s *MemoryStore) LiveCommentCount(_ context.Context, ref content.Ref) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, c := range s.comments {
		if c.Ref == ref && !c.Deleted {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) UpsertRating(_ context.Context, r Rating) (Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ratingKey{userID: r.UserID, ref: r.Ref}
	now := time.Now()
	if existing, ok := s.ratings[key]; ok {
		existing.Value = r.Value
		existing.Review = r.Review
		existing.UpdatedAt = now
		s.ratings[key] = existing
		return existing, nil
	}

	s.nextRating++
	r.ID = s.nextRating
	r.CreatedAt, r.UpdatedAt = now, now
	s.ratings[key] = r
	return r, nil
}

func (s *MemoryStore) GetRating(_ context.Context, id int64) (Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.ratings {
		if r.ID == id {
			return r, nil
		}
	}
	return Rating{}, fmt.Errorf("%w: rating %d", apperr.ErrNotFound, id)
}

func (s *MemoryStore) DeleteRating(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, r := range s.ratings {
		if r.ID == id {
			delete(s.ratings, key)
			return nil
		}
	}
	return fmt.Errorf("%w: rating %d", apperr.ErrNotFound, id)
}

func (s *MemoryStore) ListRatings(_ context.Context, ref content.Ref, limit, offset int) ([]Rating, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []Rating{}
	for _, r := range s.ratings {
		if r.Ref == ref {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	if offset >= total {
		return []Rating{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *MemoryStore) RatingStats(_ context.Context, ref content.Ref) (RatingStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := RatingStats{Distribution: make(map[int]int)}
	sum := 0
	for _, r := range s.ratings {
		if r.Ref != ref {
			continue
		}
		stats.Total++
		stats.Distribution[r.Value]++
		sum += r.Value
	}
	if stats.Total > 0 {
		stats.Average = float64(sum) / float64(stats.Total)
	}
	return stats, nil
}

func (s *MemoryStore) AddCounter(_ context.Context, ref content.Ref, metric Metric, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.counters(ref)
	switch metric {
	case MetricView:
		a.Views += delta
	case MetricLike:
		a.Likes += delta
		if a.Likes < 0 {
			a.Likes = 0
		}
	case MetricShare:
		a.Shares += delta
	case MetricComment:
		a.Comments += delta
	default:
		return fmt.Errorf("%w: unknown metric %q", apperr.ErrValidation, metric)
	}
	a.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) GetAnalytics(_ context.Context, ref content.Ref) (Analytics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.analytics[ref]; ok {
		return *a, nil
	}
	return Analytics{Ref: ref}, nil
}

func (s *MemoryStore) TopContent(_ context.Context, kind content.Kind, metric Metric, limit int) ([]Analytics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []Analytics{}
	for ref, a := range s.analytics {
		if ref.Kind == kind {
			matched = append(matched, *a)
		}
	}
	value := func(a Analytics) int64 {
		switch metric {
		case MetricLike:
			return a.Likes
		case MetricShare:
			return a.Shares
		case MetricComment:
			return a.Comments
		default:
			return a.Views
		}
	}
	sort.Slice(matched, func(i, j int) bool { return value(matched[i]) > value(matched[j]) })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) SetCommentCount(_ context.Context, ref content.Ref, count int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.counters(ref)
	a.Comments = count
	a.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) AnalyticsRefs(_ context.Context) ([]content.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := make([]content.Ref, 0, len(s.analytics))
	for ref := range s.analytics {
		refs = append(refs, ref)
	}
	return refs, nil
}

// MemoryUsers is an in-memory UserDirectory.
type MemoryUsers struct {
	mu         sync.RWMutex
	names      map[int64]string
	moderators map[int64]bool
}

// NewMemoryUsers creates an empty in-memory user directory.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{names: make(map[int64]string), moderators: make(map[int64]bool)}
}

// Add registers a user.
func (u *MemoryUsers) Add(userID int64, name string, moderator bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.names[userID] = name
	u.moderators[userID] = moderator
}

func (u *MemoryUsers) DisplayName(_ context.Context, userID int64) (string, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.names[userID], nil
}

func (u *MemoryUsers) IsModerator(_ context.Context, userID int64) (bool, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.moderators[userID], nil
}
