package aicache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studyable/studyhub/internal/apperr"
)

// PostgresStore is a PostgreSQL-backed Store over gemini_file_cache.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed cache store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Put(ctx context.Context, e Entry) (Entry, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO gemini_file_cache (physical_file_id, processing_type, provider_file_id, result)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (physical_file_id, processing_type)
		 DO UPDATE SET provider_file_id = EXCLUDED.provider_file_id, result = EXCLUDED.result
		 RETURNING id, created_at`,
		e.PhysicalFileID, e.Type, e.ProviderFileID, e.Result,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("put cache entry: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) Get(ctx context.Context, physicalFileID int64, typ ProcessingType) (Entry, error) {
	e := Entry{PhysicalFileID: physicalFileID, Type: typ}
	err := s.pool.QueryRow(ctx,
		`SELECT id, COALESCE(provider_file_id, ''), result, created_at
		 FROM gemini_file_cache
		 WHERE physical_file_id = $1 AND processing_type = $2`,
		physicalFileID, typ,
	).Scan(&e.ID, &e.ProviderFileID, &e.Result, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: no %s cache for file %d", apperr.ErrNotFound, typ, physicalFileID)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get cache entry: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) DeleteForFile(ctx context.Context, physicalFileID int64) (int64, error) {
	cmd, err := s.pool.Exec(ctx,
		`DELETE FROM gemini_file_cache WHERE physical_file_id = $1`,
		physicalFileID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete cache entries: %w", err)
	}
	return cmd.RowsAffected(), nil
}
