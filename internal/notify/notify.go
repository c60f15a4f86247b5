// Package notify fans events out into per-user notification records.
// Dispatch is fire-and-forget for the caller: the triggering write never
// blocks on, or rolls back because of, notification delivery.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/studyable/studyhub/internal/apperr"
	"github.com/studyable/studyhub/internal/content"
)

// Type is the closed set of notification types.
type Type string

const (
	TypeNewContent      Type = "new_content"
	TypeCommentReply    Type = "comment_reply"
	TypeQuizResult      Type = "quiz_result"
	TypeCommunityInvite Type = "community_invite"
	TypeMention         Type = "mention"
)

// ParseType validates a notification type received at the boundary.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeNewContent, TypeCommentReply, TypeQuizResult, TypeCommunityInvite, TypeMention:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown notification type %q", apperr.ErrValidation, s)
}

// Event is a unit of work for the dispatcher. ID deduplicates retries.
type Event struct {
	ID          uuid.UUID
	Type        Type
	RecipientID int64
	ActorID     *int64
	Ref         *content.Ref
	CommunityID *int64
	Message     string
	CreatedAt   time.Time
}

// Notification is a stored per-user notification record.
type Notification struct {
	ID          int64        `json:"id"`
	UserID      int64        `json:"user_id"`
	Type        Type         `json:"notification_type"`
	Ref         *content.Ref `json:"related_content,omitempty"`
	CommunityID *int64       `json:"related_community_id,omitempty"`
	ActorID     *int64       `json:"actor_id,omitempty"`
	Message     string       `json:"message"`
	Read        bool         `json:"is_read"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Filter narrows notification listings.
type Filter struct {
	Unread *bool
	Type   *Type
	Limit  int
	Offset int
}

// Store persists notifications. Insert must be idempotent per event ID
// so a retried delivery cannot create duplicate rows.
type Store interface {
	Insert(ctx context.Context, ev Event) (Notification, error)
	Get(ctx context.Context, id int64) (Notification, error)
	List(ctx context.Context, userID int64, f Filter) ([]Notification, int, error)
	MarkRead(ctx context.Context, id int64) (Notification, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	UnreadCount(ctx context.Context, userID int64) (int64, error)
}

// Publisher is the interface triggering subsystems dispatch through.
type Publisher interface {
	Dispatch(ev Event)
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) Dispatch(Event) {}
