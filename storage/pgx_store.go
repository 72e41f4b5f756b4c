package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps cache blobs in the adapter_cache table, one row per
// source.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresPool creates and verifies a pgxpool connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

// NewPostgresStore creates the adapter_cache table if it does not exist.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres store: pool cannot be nil")
	}
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS adapter_cache (
			source     VARCHAR(64) PRIMARY KEY,
			blob       JSONB       NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Load(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx, `SELECT blob FROM adapter_cache WHERE source = $1`, key).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: load %s: %w", key, err)
	}
	return blob, nil
}

func (s *PostgresStore) Save(ctx context.Context, key string, blob []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO adapter_cache (source, blob, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (source) DO UPDATE SET blob = EXCLUDED.blob, updated_at = EXCLUDED.updated_at
	`, key, string(blob))
	if err != nil {
		return fmt.Errorf("postgres store: save %s: %w", key, err)
	}
	return nil
}
