// Package annotation implements threaded comments, ratings, and derived
// analytics counters, all keyed by the same polymorphic content ref.
package annotation

import (
	"context"
	"fmt"
	"time"

	"github.com/studyable/studyhub/internal/apperr"
	"github.com/studyable/studyhub/internal/content"
)

// Comment is a threaded comment on a content item. A deleted comment is
// tombstoned, never physically removed, so reply threads keep shape.
type Comment struct {
	ID        int64       `json:"id"`
	AuthorID  int64       `json:"author_id"`
	Ref       content.Ref `json:"ref"`
	Body      string      `json:"comment_text"`
	ParentID  *int64      `json:"parent_comment_id,omitempty"`
	Deleted   bool        `json:"is_deleted"`
	Edited    bool        `json:"is_edited"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`

	// Replies is populated by thread reads only.
	Replies []Comment `json:"replies,omitempty"`
}

// Rating is a user's 1-5 star rating of a content item. At most one
// rating exists per (user, ref); re-rating updates in place.
type Rating struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"user_id"`
	Ref       content.Ref `json:"ref"`
	Value     int         `json:"rating"`
	Review    string      `json:"review_text,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RatingStats is computed on read, never maintained incrementally.
type RatingStats struct {
	Average      float64     `json:"average_rating"`
	Total        int         `json:"total_ratings"`
	Distribution map[int]int `json:"rating_distribution"`
}

// Analytics is the per-ref counter row.
type Analytics struct {
	Ref       content.Ref `json:"ref"`
	Views     int64       `json:"view_count"`
	Likes     int64       `json:"like_count"`
	Shares    int64       `json:"share_count"`
	Comments  int64       `json:"comment_count"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Metric names a single analytics counter.
type Metric string

const (
	MetricView    Metric = "view"
	MetricLike    Metric = "like"
	MetricShare   Metric = "share"
	MetricComment Metric = "comment"
)

// ParseMetric validates a metric name received at the boundary.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricView, MetricLike, MetricShare, MetricComment:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown metric %q", apperr.ErrValidation, s)
}

// Store persists comments, ratings, and counters.
//
// InsertComment and SoftDeleteComment adjust the target's comment_count
// atomically with the row change so the counter stays equal to the live
// comment count. AddCounter must be a single atomic arithmetic update;
// like_count never goes below zero.
type Store interface {
	InsertComment(ctx context.Context, c Comment) (Comment, error)
	GetComment(ctx context.Context, id int64) (Comment, error)
	UpdateCommentBody(ctx context.Context, id int64, body string) (Comment, error)
	// SoftDeleteComment reports whether this call performed the delete;
	// false means the comment was already tombstoned.
	SoftDeleteComment(ctx context.Context, id int64) (bool, error)
	TopLevelComments(ctx context.Context, ref content.Ref, limit, offset int) ([]Comment, int, error)
	Replies(ctx context.Context, parentID int64) ([]Comment, error)
	LiveCommentCount(ctx context.Context, ref content.Ref) (int64, error)

	UpsertRating(ctx context.Context, r Rating) (Rating, error)
	GetRating(ctx context.Context, id int64) (Rating, error)
	DeleteRating(ctx context.Context, id int64) error
	ListRatings(ctx context.Context, ref content.Ref, limit, offset int) ([]Rating, int, error)
	RatingStats(ctx context.Context, ref content.Ref) (RatingStats, error)

	AddCounter(ctx context.Context, ref content.Ref, metric Metric, delta int64) error
	GetAnalytics(ctx context.Context, ref content.Ref) (Analytics, error)
	TopContent(ctx context.Context, kind content.Kind, metric Metric, limit int) ([]Analytics, error)
	SetCommentCount(ctx context.Context, ref content.Ref, count int64) error
	AnalyticsRefs(ctx context.Context) ([]content.Ref, error)
}

// UserDirectory supplies the user facts the subsystem needs: display
// names for notification messages and the moderator flag for delete
// authorization. Backed by the auth collaborator's user rows.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID int64) (string, error)
	IsModerator(ctx context.Context, userID int64) (bool, error)
}
