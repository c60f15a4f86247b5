package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studyable/studyhub/internal/apperr"
)

// PostgresStore resolves refs against the live tables. There is one
// query per kind because no single foreign key can span the targets.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed content store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Lookup(ctx context.Context, ref Ref) (Resolution, error) {
	var (
		res Resolution
		err error
	)

	switch ref.Kind {
	case KindFile:
		err = s.pool.QueryRow(ctx,
			`SELECT user_id, is_public, community_id FROM physical_file WHERE id = $1`,
			ref.ID,
		).Scan(&res.OwnerID, &res.Public, &res.CommunityID)
	case KindSummary:
		err = s.pool.QueryRow(ctx,
			`SELECT user_id, is_public, community_id FROM summary WHERE id = $1`,
			ref.ID,
		).Scan(&res.OwnerID, &res.Public, &res.CommunityID)
	case KindQuiz:
		err = s.pool.QueryRow(ctx,
			`SELECT user_id, is_public, community_id FROM mcq_quiz WHERE id = $1`,
			ref.ID,
		).Scan(&res.OwnerID, &res.Public, &res.CommunityID)
	case KindComment:
		err = s.pool.QueryRow(ctx,
			`SELECT author_id, false, NULL::bigint FROM content_comment WHERE id = $1 AND NOT is_deleted`,
			ref.ID,
		).Scan(&res.OwnerID, &res.Public, &res.CommunityID)
	case KindQuizSession:
		err = s.pool.QueryRow(ctx,
			`SELECT user_id, false, NULL::bigint FROM quiz_session WHERE id = $1`,
			ref.ID,
		).Scan(&res.OwnerID, &res.Public, &res.CommunityID)
	default:
		return Resolution{}, fmt.Errorf("%w: unknown content kind %q", apperr.ErrValidation, ref.Kind)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return Resolution{}, fmt.Errorf("%w: %s", apperr.ErrNotFound, ref)
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("lookup %s: %w", ref, err)
	}
	return res, nil
}

// PostgresMembership answers community membership from community_member.
type PostgresMembership struct {
	pool *pgxpool.Pool
}

// NewPostgresMembership creates a PostgreSQL-backed membership checker.
func NewPostgresMembership(pool *pgxpool.Pool) *PostgresMembership {
	return &PostgresMembership{pool: pool}
}

func (m *PostgresMembership) IsMember(ctx context.Context, communityID, userID int64) (bool, error) {
	var exists bool
	err := m.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM community_member
		   WHERE community_id = $1 AND user_id = $2
		 )`,
		communityID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("membership lookup: %w", err)
	}
	return exists, nil
}
