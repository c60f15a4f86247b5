package notify

import (
	"context"
	"fmt"

	"github.com/studyable/studyhub/internal/apperr"
)

// Service answers notification reads and read-flag updates.
type Service struct {
	store  Store
	unread *UnreadCache // optional
}

// NewService creates a notification read/update service.
func NewService(store Store, unread *UnreadCache) *Service {
	return &Service{store: store, unread: unread}
}

// List returns a user's notifications, newest first, plus the total.
func (s *Service) List(ctx context.Context, userID int64, f Filter) ([]Notification, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	return s.store.List(ctx, userID, f)
}

// MarkRead flips the read flag on one of the user's own notifications.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID int64) (Notification, error) {
	n, err := s.store.Get(ctx, notificationID)
	if err != nil {
		return Notification{}, err
	}
	if n.UserID != userID {
		return Notification{}, fmt.Errorf("%w: notification %d does not belong to user %d", apperr.ErrForbidden, notificationID, userID)
	}
	if n.Read {
		return n, nil
	}
	updated, err := s.store.MarkRead(ctx, notificationID)
	if err != nil {
		return Notification{}, err
	}
	if s.unread != nil {
		s.unread.Invalidate(ctx, userID)
	}
	return updated, nil
}

// MarkAllRead flips the read flag on every unread notification of the
// user and reports how many were updated.
func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	updated, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	if s.unread != nil {
		s.unread.Invalidate(ctx, userID)
	}
	return updated, nil
}

// UnreadCount returns the user's unread notification count, served from
// the cache when warm.
func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	if s.unread != nil {
		if n, ok := s.unread.Get(ctx, userID); ok {
			return n, nil
		}
	}
	n, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return 0, err
	}
	if s.unread != nil {
		s.unread.Set(ctx, userID, n)
	}
	return n, nil
}
