package version

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studyable/studyhub/internal/apperr"
	"github.com/studyable/studyhub/internal/content"
)

const uniqueViolation = "23505"

// PostgresStore is a PostgreSQL-backed Store over content_version.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed version store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Insert(ctx context.Context, v Version) (Version, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO content_version (content_type, content_id, user_id, version_number, version_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		v.Ref.Kind, v.Ref.ID, v.AuthorID, v.Number, v.Payload, v.CreatedAt,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Version{}, fmt.Errorf("%w: version %d already exists for %s", apperr.ErrConflict, v.Number, v.Ref)
		}
		return Version{}, fmt.Errorf("insert version: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) MaxNumber(ctx context.Context, ref content.Ref) (int, error) {
	var max int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version_number), 0)
		 FROM content_version
		 WHERE content_type = $1 AND content_id = $2`,
		ref.Kind, ref.ID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max version number: %w", err)
	}
	return max, nil
}

func (s *PostgresStore) Get(ctx context.Context, ref content.Ref, number int) (Version, error) {
	v := Version{Ref: ref, Number: number}
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, version_data, created_at
		 FROM content_version
		 WHERE content_type = $1 AND content_id = $2 AND version_number = $3`,
		ref.Kind, ref.ID, number,
	).Scan(&v.ID, &v.AuthorID, &v.Payload, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Version{}, fmt.Errorf("%w: version %d of %s", apperr.ErrNotFound, number, ref)
	}
	if err != nil {
		return Version{}, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) List(ctx context.Context, ref content.Ref, limit, offset int) ([]Version, int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM content_version WHERE content_type = $1 AND content_id = $2`,
		ref.Kind, ref.ID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count versions: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, version_number, version_data, created_at
		 FROM content_version
		 WHERE content_type = $1 AND content_id = $2
		 ORDER BY version_number DESC
		 LIMIT $3 OFFSET $4`,
		ref.Kind, ref.ID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	versions := []Version{}
	for rows.Next() {
		v := Version{Ref: ref}
		if err := rows.Scan(&v.ID, &v.AuthorID, &v.Number, &v.Payload, &v.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate versions: %w", err)
	}
	return versions, total, nil
}

func (s *PostgresStore) Prune(ctx context.Context, ref content.Ref, keep int) (int, error) {
	cmd, err := s.pool.Exec(ctx,
		`DELETE FROM content_version
		 WHERE content_type = $1 AND content_id = $2
		   AND version_number NOT IN (
		     SELECT version_number FROM content_version
		     WHERE content_type = $1 AND content_id = $2
		     ORDER BY version_number DESC
		     LIMIT $3
		   )`,
		ref.Kind, ref.ID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune versions: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}
