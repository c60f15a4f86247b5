package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studyable/studyhub/internal/apperr"
	"github.com/studyable/studyhub/internal/content"
)

// PostgresStore is a PostgreSQL-backed Store over notification.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed notification store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Insert(ctx context.Context, ev Event) (Notification, error) {
	var kind *content.Kind
	var contentID *int64
	if ev.Ref != nil {
		kind = &ev.Ref.Kind
		contentID = &ev.Ref.ID
	}
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	// ON CONFLICT on the event id makes retried deliveries return the
	// row the first attempt created instead of inserting a duplicate.
	row := s.pool.QueryRow(ctx,
		`INSERT INTO notification
		   (event_id, user_id, notification_type, related_content_type, related_content_id,
		    related_community_id, actor_id, message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (event_id) DO UPDATE SET event_id = EXCLUDED.event_id
		 RETURNING id, user_id, notification_type, related_content_type, related_content_id,
		           related_community_id, actor_id, message, is_read, created_at`,
		ev.ID, ev.RecipientID, ev.Type, kind, contentID, ev.CommunityID, ev.ActorID, ev.Message, createdAt,
	)
	return scanNotification(row)
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (Notification, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, notification_type, related_content_type, related_content_id,
		        related_community_id, actor_id, message, is_read, created_at
		 FROM notification WHERE id = $1`,
		id,
	)
	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, fmt.Errorf("%w: notification %d", apperr.ErrNotFound, id)
	}
	return n, err
}

func (s *PostgresStore) List(ctx context.Context, userID int64, f Filter) ([]Notification, int, error) {
	where := `WHERE user_id = $1`
	args := []any{userID}
	if f.Unread != nil {
		args = append(args, !*f.Unread)
		where += fmt.Sprintf(" AND is_read = $%d", len(args))
	}
	if f.Type != nil {
		args = append(args, *f.Type)
		where += fmt.Sprintf(" AND notification_type = $%d", len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notification `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, notification_type, related_content_type, related_content_id,
		        related_community_id, actor_id, message, is_read, created_at
		 FROM notification `+where+fmt.Sprintf(`
		 ORDER BY created_at DESC, id DESC
		 LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	notifications := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate notifications: %w", err)
	}
	return notifications, total, nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, id int64) (Notification, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE notification SET is_read = true, updated_at = NOW()
		 WHERE id = $1
		 RETURNING id, user_id, notification_type, related_content_type, related_content_id,
		           related_community_id, actor_id, message, is_read, created_at`,
		id,
	)
	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, fmt.Errorf("%w: notification %d", apperr.ErrNotFound, id)
	}
	return n, err
}

func (s *PostgresStore) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE notification SET is_read = true, updated_at = NOW()
		 WHERE user_id = $1 AND NOT is_read`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (s *PostgresStore) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notification WHERE user_id = $1 AND NOT is_read`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return count, nil
}

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	var kind *string
	var contentID *int64
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &kind, &contentID,
		&n.CommunityID, &n.ActorID, &n.Message, &n.Read, &n.CreatedAt)
	if err != nil {
		return Notification{}, err
	}
	if kind != nil && contentID != nil {
		n.Ref = &content.Ref{Kind: content.Kind(*kind), ID: *contentID}
	}
	return n, nil
}
