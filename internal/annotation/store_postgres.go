package annotation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studyable/studyhub/internal/apperr"
	"github.com/studyable/studyhub/internal/content"
)

// PostgresStore is a PostgreSQL-backed Store over content_comment,
// content_rating, and content_analytics.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed annotation store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InsertComment(ctx context.Context, c Comment) (Comment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Comment{}, fmt.Errorf("begin insert comment: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO content_comment (author_id, content_type, content_id, comment_text, parent_comment_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		c.AuthorID, c.Ref.Kind, c.Ref.ID, c.Body, c.ParentID,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO content_analytics (content_type, content_id, comment_count)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (content_type, content_id)
		 DO UPDATE SET comment_count = content_analytics.comment_count + 1, updated_at = NOW()`,
		c.Ref.Kind, c.Ref.ID,
	)
	if err != nil {
		return Comment{}, fmt.Errorf("bump comment count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Comment{}, fmt.Errorf("commit insert comment: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, id int64) (Comment, error) {
	c := Comment{ID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT author_id, content_type, content_id, comment_text, parent_comment_id,
		        is_deleted, is_edited, created_at, updated_at
		 FROM content_comment WHERE id = $1`,
		id,
	).Scan(&c.AuthorID, &c.Ref.Kind, &c.Ref.ID, &c.Body, &c.ParentID,
		&c.Deleted, &c.Edited, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, fmt.Errorf("%w: comment %d", apperr.ErrNotFound, id)
	}
	if err != nil {
		return Comment{}, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) UpdateCommentBody(ctx context.Context, id int64, body string) (Comment, error) {
	c := Comment{ID: id}
	err := s.pool.QueryRow(ctx,
		`UPDATE content_comment
		 SET comment_text = $2, is_edited = true, updated_at = NOW()
		 WHERE id = $1
		 RETURNING author_id, content_type, content_id, comment_text, parent_comment_id,
		           is_deleted, is_edited, created_at, updated_at`,
		id, body,
	).Scan(&c.AuthorID, &c.Ref.Kind, &c.Ref.ID, &c.Body, &c.ParentID,
		&c.Deleted, &c.Edited, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, fmt.Errorf("%w: comment %d", apperr.ErrNotFound, id)
	}
	if err != nil {
		return Comment{}, fmt.Errorf("update comment: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) SoftDeleteComment(ctx context.Context, id int64) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin soft delete: %w", err)
	}
	defer tx.Rollback(ctx)

	var kind content.Kind
	var contentID int64
	// The is_deleted guard makes a repeated delete a no-op, so the
	// counter can never be decremented twice for one comment.
	err = tx.QueryRow(ctx,
		`UPDATE content_comment
		 SET is_deleted = true, updated_at = NOW()
		 WHERE id = $1 AND NOT is_deleted
		 RETURNING content_type, content_id`,
		id,
	).Scan(&kind, &contentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("soft delete comment: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE content_analytics
		 SET comment_count = GREATEST(comment_count - 1, 0), updated_at = NOW()
		 WHERE content_type = $1 AND content_id = $2`,
		kind, contentID,
	)
	if err != nil {
		return false, fmt.Errorf("drop comment count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit soft delete: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) TopLevelComments(ctx context.Context, ref content.Ref, limit, offset int) ([]Comment, int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM content_comment c
		 WHERE c.content_type = $1 AND c.content_id = $2 AND c.parent_comment_id IS NULL
		   AND (NOT c.is_deleted OR EXISTS (
		     SELECT 1 FROM content_comment r
		     WHERE r.parent_comment_id = c.id AND NOT r.is_deleted
		   ))`,
		ref.Kind, ref.ID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count comments: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.author_id, c.content_type, c.content_id, c.comment_text, c.parent_comment_id,
		        c.is_deleted, c.is_edited, c.created_at, c.updated_at
		 FROM content_comment c
		 WHERE c.content_type = $1 AND c.content_id = $2 AND c.parent_comment_id IS NULL
		   AND (NOT c.is_deleted OR EXISTS (
		     SELECT 1 FROM content_comment r
		     WHERE r.parent_comment_id = c.id AND NOT r.is_deleted
		   ))
		 ORDER BY c.created_at DESC, c.id DESC
		 LIMIT $3 OFFSET $4`,
		ref.Kind, ref.ID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments, err := scanComments(rows)
	if err != nil {
		return nil, 0, err
	}
	return comments, total, nil
}

func (s *PostgresStore) Replies(ctx context.Context, parentID int64) ([]Comment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, author_id, content_type, content_id, comment_text, parent_comment_id,
		        is_deleted, is_edited, created_at, updated_at
		 FROM content_comment
		 WHERE parent_comment_id = $1 AND NOT is_deleted
		 ORDER BY created_at ASC, id ASC`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query replies: %w", err)
	}
	defer rows.Close()
	return scanComments(rows)
}

func (s *PostgresStore) LiveCommentCount(ctx context.Context, ref content.Ref) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM content_comment
		 WHERE content_type = $1 AND content_id = $2 AND NOT is_deleted`,
		ref.Kind, ref.ID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("live comment count: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) UpsertRating(ctx context.Context, r Rating) (Rating, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO content_rating (user_id, content_type, content_id, rating, review_text)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, content_type, content_id)
		 DO UPDATE SET rating = EXCLUDED.rating, review_text = EXCLUDED.review_text, updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		r.UserID, r.Ref.Kind, r.Ref.ID, r.Value, nullIfEmpty(r.Review),
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Rating{}, fmt.Errorf("upsert rating: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) GetRating(ctx context.Context, id int64) (Rating, error) {
	r := Rating{ID: id}
	var review *string
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, content_type, content_id, rating, review_text, created_at, updated_at
		 FROM content_rating WHERE id = $1`,
		id,
	).Scan(&r.UserID, &r.Ref.Kind, &r.Ref.ID, &r.Value, &review, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rating{}, fmt.Errorf("%w: rating %d", apperr.ErrNotFound, id)
	}
	if err != nil {
		return Rating{}, fmt.Errorf("get rating: %w", err)
	}
	if review != nil {
		r.Review = *review
	}
	return r, nil
}

func (s *PostgresStore) DeleteRating(ctx context.Context, id int64) error {
	cmd, err := s.pool.Exec(ctx, `DELETE FROM content_rating WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rating: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: rating %d", apperr.ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) ListRatings(ctx context.Context, ref content.Ref, limit, offset int) ([]Rating, int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM content_rating WHERE content_type = $1 AND content_id = $2`,
		ref.Kind, ref.ID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count ratings: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, content_type, content_id, rating, review_text, created_at, updated_at
		 FROM content_rating
		 WHERE content_type = $1 AND content_id = $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3 OFFSET $4`,
		ref.Kind, ref.ID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query ratings: %w", err)
	}
	defer rows.Close()

	ratings := []Rating{}
	for rows.Next() {
		var r Rating
		var review *string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Ref.Kind, &r.Ref.ID, &r.Value, &review, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan rating: %w", err)
		}
		if review != nil {
			r.Review = *review
		}
		ratings = append(ratings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate ratings: %w", err)
	}
	return ratings, total, nil
}

func (s *PostgresStore) RatingStats(ctx context.Context, ref content.Ref) (RatingStats, error) {
	stats := RatingStats{Distribution: make(map[int]int)}

	rows, err := s.pool.Query(ctx,
		`SELECT rating, COUNT(*) FROM content_rating
		 WHERE content_type = $1 AND content_id = $2
		 GROUP BY rating`,
		ref.Kind, ref.ID,
	)
	if err != nil {
		return RatingStats{}, fmt.Errorf("rating stats: %w", err)
	}
	defer rows.Close()

	sum := 0
	for rows.Next() {
		var value, count int
		if err := rows.Scan(&value, &count); err != nil {
			return RatingStats{}, fmt.Errorf("scan rating stats: %w", err)
		}
		stats.Distribution[value] = count
		stats.Total += count
		sum += value * count
	}
	if err := rows.Err(); err != nil {
		return RatingStats{}, fmt.Errorf("iterate rating stats: %w", err)
	}
	if stats.Total > 0 {
		stats.Average = float64(sum) / float64(stats.Total)
	}
	return stats, nil
}

func (s *PostgresStore) AddCounter(ctx context.Context, ref content.Ref, metric Metric, delta int64) error {
	var column string
	switch metric {
	case MetricView:
		column = "view_count"
	case MetricLike:
		column = "like_count"
	case MetricShare:
		column = "share_count"
	case MetricComment:
		column = "comment_count"
	default:
		return fmt.Errorf("%w: unknown metric %q", apperr.ErrValidation, metric)
	}

	// Single-statement arithmetic so concurrent increments never lose
	// updates; GREATEST floors like_count at zero on unlike.
	query := fmt.Sprintf(
		`INSERT INTO content_analytics (content_type, content_id, %[1]s)
		 VALUES ($1, $2, GREATEST($3, 0))
		 ON CONFLICT (content_type, content_id)
		 DO UPDATE SET %[1]s = GREATEST(content_analytics.%[1]s + $3, 0), updated_at = NOW()`,
		column,
	)
	if _, err := s.pool.Exec(ctx, query, ref.Kind, ref.ID, delta); err != nil {
		return fmt.Errorf("add %s counter: %w", metric, err)
	}
	return nil
}

func (s *PostgresStore) GetAnalytics(ctx context.Context, ref content.Ref) (Analytics, error) {
	a := Analytics{Ref: ref}
	err := s.pool.QueryRow(ctx,
		`SELECT view_count, like_count, share_count, comment_count, updated_at
		 FROM content_analytics
		 WHERE content_type = $1 AND content_id = $2`,
		ref.Kind, ref.ID,
	).Scan(&a.Views, &a.Likes, &a.Shares, &a.Comments, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Analytics{Ref: ref}, nil
	}
	if err != nil {
		return Analytics{}, fmt.Errorf("get analytics: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) TopContent(ctx context.Context, kind content.Kind, metric Metric, limit int) ([]Analytics, error) {
	var column string
	switch metric {
	case MetricLike:
		column = "like_count"
	case MetricShare:
		column = "share_count"
	case MetricComment:
		column = "comment_count"
	default:
		column = "view_count"
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT content_type, content_id, view_count, like_count, share_count, comment_count, updated_at
		 FROM content_analytics
		 WHERE content_type = $1
		 ORDER BY %s DESC
		 LIMIT $2`, column),
		kind, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top content: %w", err)
	}
	defer rows.Close()

	results := []Analytics{}
	for rows.Next() {
		var a Analytics
		if err := rows.Scan(&a.Ref.Kind, &a.Ref.ID, &a.Views, &a.Likes, &a.Shares, &a.Comments, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan top content: %w", err)
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top content: %w", err)
	}
	return results, nil
}

func (s *PostgresStore) SetCommentCount(ctx context.Context, ref content.Ref, count int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO content_analytics (content_type, content_id, comment_count)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (content_type, content_id)
		 DO UPDATE SET comment_count = EXCLUDED.comment_count, updated_at = NOW()`,
		ref.Kind, ref.ID, count,
	)
	if err != nil {
		return fmt.Errorf("set comment count: %w", err)
	}
	return nil
}

func (s *PostgresStore) AnalyticsRefs(ctx context.Context) ([]content.Ref, error) {
	rows, err := s.pool.Query(ctx, `SELECT content_type, content_id FROM content_analytics`)
	if err != nil {
		return nil, fmt.Errorf("analytics refs: %w", err)
	}
	defer rows.Close()

	refs := []content.Ref{}
	for rows.Next() {
		var ref content.Ref
		if err := rows.Scan(&ref.Kind, &ref.ID); err != nil {
			return nil, fmt.Errorf("scan analytics ref: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analytics refs: %w", err)
	}
	return refs, nil
}

func scanComments(rows pgx.Rows) ([]Comment, error) {
	comments := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.AuthorID, &c.Ref.Kind, &c.Ref.ID, &c.Body, &c.ParentID,
			&c.Deleted, &c.Edited, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// PostgresUsers is a UserDirectory over app_user.
type PostgresUsers struct {
	pool *pgxpool.Pool
}

// NewPostgresUsers creates a PostgreSQL-backed user directory.
func NewPostgresUsers(pool *pgxpool.Pool) *PostgresUsers {
	return &PostgresUsers{pool: pool}
}

func (u *PostgresUsers) DisplayName(ctx context.Context, userID int64) (string, error) {
	var name string
	err := u.pool.QueryRow(ctx,
		`SELECT COALESCE(display_name, username) FROM app_user WHERE id = $1`,
		userID,
	).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: user %d", apperr.ErrNotFound, userID)
	}
	if err != nil {
		return "", fmt.Errorf("display name: %w", err)
	}
	return name, nil
}

func (u *PostgresUsers) IsModerator(ctx context.Context, userID int64) (bool, error) {
	var role string
	err := u.pool.QueryRow(ctx,
		`SELECT role FROM app_user WHERE id = $1`,
		userID,
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("role lookup: %w", err)
	}
	return role == "admin" || role == "moderator", nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
