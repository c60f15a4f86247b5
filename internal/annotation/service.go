package annotation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/studyable/studyhub/internal/apperr"
	"github.com/studyable/studyhub/internal/content"
	"github.com/studyable/studyhub/internal/notify"
)

// Service is the annotation subsystem's behavioral surface. Every write
// that takes a ref resolves it through the registry first; the registry
// check substitutes for the foreign key the store cannot express.
type Service struct {
	store    Store
	registry *content.Registry
	users    UserDirectory
	events   notify.Publisher
}

// NewService creates an annotation service. events may be a
// notify.NopPublisher when dispatch is not wired.
func NewService(store Store, registry *content.Registry, users UserDirectory, events notify.Publisher) *Service {
	if events == nil {
		events = notify.NopPublisher{}
	}
	return &Service{store: store, registry: registry, users: users, events: events}
}

// PostComment creates a comment, incrementing the target's comment
// count atomically with the insert, and emits a reply or activity event.
func (s *Service) PostComment(ctx context.Context, authorID int64, ref content.Ref, body string, parentID *int64) (Comment, error) {
	if strings.TrimSpace(body) == "" {
		return Comment{}, fmt.Errorf("%w: comment body is empty", apperr.ErrValidation)
	}
	res, err := s.registry.Authorize(ctx, ref, authorID)
	if err != nil {
		return Comment{}, err
	}

	var parent *Comment
	if parentID != nil {
		p, err := s.store.GetComment(ctx, *parentID)
		if err != nil {
			return Comment{}, fmt.Errorf("parent comment: %w", err)
		}
		if p.Ref != ref {
			return Comment{}, fmt.Errorf("%w: parent comment %d targets %s, not %s", apperr.ErrValidation, p.ID, p.Ref, ref)
		}
		if p.Deleted {
			return Comment{}, fmt.Errorf("%w: parent comment %d is deleted", apperr.ErrValidation, *parentID)
		}
		parent = &p
	}

	c, err := s.store.InsertComment(ctx, Comment{
		AuthorID: authorID,
		Ref:      ref,
		Body:     body,
		ParentID: parentID,
	})
	if err != nil {
		return Comment{}, err
	}

	actorName := s.displayName(ctx, authorID)
	if parent != nil {
		s.events.Dispatch(notify.CommentReplyEvent(parent.AuthorID, authorID, actorName, ref, body))
	} else {
		s.events.Dispatch(notify.ActivityEvent(res.OwnerID, authorID, actorName, ref, body))
	}
	return c, nil
}

// EditComment replaces a comment's body. Only the author may edit.
func (s *Service) EditComment(ctx context.Context, actorID, commentID int64, body string) (Comment, error) {
	if strings.TrimSpace(body) == "" {
		return Comment{}, fmt.Errorf("%w: comment body is empty", apperr.ErrValidation)
	}
	c, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return Comment{}, err
	}
	if c.AuthorID != actorID {
		return Comment{}, fmt.Errorf("%w: only the author may edit comment %d", apperr.ErrForbidden, commentID)
	}
	if c.Deleted {
		return Comment{}, fmt.Errorf("%w: comment %d is deleted", apperr.ErrValidation, commentID)
	}
	return s.store.UpdateCommentBody(ctx, commentID, body)
}

// SoftDeleteComment tombstones a comment and decrements the target's
// comment count. Allowed for the author or a moderator. Replies are not
// cascaded; they render against the tombstoned parent. Idempotent.
func (s *Service) SoftDeleteComment(ctx context.Context, actorID, commentID int64) error {
	c, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if c.AuthorID != actorID {
		moderator, err := s.users.IsModerator(ctx, actorID)
		if err != nil {
			return fmt.Errorf("moderator check: %w", err)
		}
		if !moderator {
			return fmt.Errorf("%w: user %d may not delete comment %d", apperr.ErrForbidden, actorID, commentID)
		}
	}
	if c.Deleted {
		return nil
	}
	_, err = s.store.SoftDeleteComment(ctx, commentID)
	return err
}

// Thread returns a page of top-level comments with one level of live
// replies. Deleted top-level comments that still anchor replies appear
// tombstoned.
func (s *Service) Thread(ctx context.Context, ref content.Ref, limit, offset int) ([]Comment, int, error) {
	if _, err := s.registry.Resolve(ctx, ref); err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	comments, total, err := s.store.TopLevelComments(ctx, ref, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for i := range comments {
		replies, err := s.store.Replies(ctx, comments[i].ID)
		if err != nil {
			return nil, 0, err
		}
		if comments[i].Deleted {
			comments[i].Body = ""
		}
		comments[i].Replies = replies
	}
	return comments, total, nil
}

// Rate upserts the user's rating for a ref. Re-rating replaces the
// stored value instead of inserting a second row.
func (s *Service) Rate(ctx context.Context, userID int64, ref content.Ref, value int, review string) (Rating, error) {
	if value < 1 || value > 5 {
		return Rating{}, fmt.Errorf("%w: rating must be between 1 and 5, got %d", apperr.ErrValidation, value)
	}
	if _, err := s.registry.Authorize(ctx, ref, userID); err != nil {
		return Rating{}, err
	}
	return s.store.UpsertRating(ctx, Rating{
		UserID: userID,
		Ref:    ref,
		Value:  value,
		Review: review,
	})
}

// DeleteRating removes a rating. Allowed for its owner or a moderator.
func (s *Service) DeleteRating(ctx context.Context, actorID, ratingID int64) error {
	r, err := s.store.GetRating(ctx, ratingID)
	if err != nil {
		return err
	}
	if r.UserID != actorID {
		moderator, err := s.users.IsModerator(ctx, actorID)
		if err != nil {
			return fmt.Errorf("moderator check: %w", err)
		}
		if !moderator {
			return fmt.Errorf("%w: user %d may not delete rating %d", apperr.ErrForbidden, actorID, ratingID)
		}
	}
	return s.store.DeleteRating(ctx, ratingID)
}

// ListRatings returns a page of ratings for a ref, newest first.
func (s *Service) ListRatings(ctx context.Context, ref content.Ref, limit, offset int) ([]Rating, int, error) {
	if _, err := s.registry.Resolve(ctx, ref); err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListRatings(ctx, ref, limit, offset)
}

// RatingStats aggregates ratings for a ref on read.
func (s *Service) RatingStats(ctx context.Context, ref content.Ref) (RatingStats, error) {
	if _, err := s.registry.Resolve(ctx, ref); err != nil {
		return RatingStats{}, err
	}
	return s.store.RatingStats(ctx, ref)
}

// RecordView counts one view. No dedup of repeated views; that policy
// belongs to the caller.
func (s *Service) RecordView(ctx context.Context, ref content.Ref) error {
	return s.record(ctx, ref, MetricView, 1)
}

// RecordShare counts one share.
func (s *Service) RecordShare(ctx context.Context, ref content.Ref) error {
	return s.record(ctx, ref, MetricShare, 1)
}

// RecordLike counts a like (+1) or an unlike (-1).
func (s *Service) RecordLike(ctx context.Context, ref content.Ref, delta int64) error {
	if delta != 1 && delta != -1 {
		return fmt.Errorf("%w: like delta must be +1 or -1, got %d", apperr.ErrValidation, delta)
	}
	return s.record(ctx, ref, MetricLike, delta)
}

func (s *Service) record(ctx context.Context, ref content.Ref, metric Metric, delta int64) error {
	if _, err := s.registry.Resolve(ctx, ref); err != nil {
		return err
	}
	return s.store.AddCounter(ctx, ref, metric, delta)
}

// Analytics returns the counter row for a ref; a ref with no activity
// yet reads as all zeros.
func (s *Service) Analytics(ctx context.Context, ref content.Ref) (Analytics, error) {
	if _, err := s.registry.Resolve(ctx, ref); err != nil {
		return Analytics{}, err
	}
	a, err := s.store.GetAnalytics(ctx, ref)
	if err != nil {
		return Analytics{}, err
	}
	a.Ref = ref
	return a, nil
}

// TopContent ranks refs of a kind by one metric.
func (s *Service) TopContent(ctx context.Context, kind content.Kind, metric Metric, limit int) ([]Analytics, error) {
	if _, err := content.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.store.TopContent(ctx, kind, metric, limit)
}

// ReconcileCommentCounts recomputes every analytics row's comment_count
// from the live comment rows. The incremental counter is a cache; this
// is the documented recompute-from-source drift repair.
func (s *Service) ReconcileCommentCounts(ctx context.Context) (int, error) {
	refs, err := s.store.AnalyticsRefs(ctx)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, ref := range refs {
		live, err := s.store.LiveCommentCount(ctx, ref)
		if err != nil {
			return repaired, err
		}
		a, err := s.store.GetAnalytics(ctx, ref)
		if err != nil {
			return repaired, err
		}
		if a.Comments == live {
			continue
		}
		slog.Warn("comment count drift",
			"ref", ref.String(),
			"counter", a.Comments,
			"live", live,
		)
		if err := s.store.SetCommentCount(ctx, ref, live); err != nil {
			return repaired, err
		}
		repaired++
	}
	return repaired, nil
}

func (s *Service) displayName(ctx context.Context, userID int64) string {
	if s.users == nil {
		return ""
	}
	name, err := s.users.DisplayName(ctx, userID)
	if err != nil {
		slog.Debug("display name lookup failed", "user_id", userID, "error", err)
		return ""
	}
	return name
}
