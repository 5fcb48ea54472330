// Package postgres is a BlobStore backed by a single Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourorg/fpl-cohorts/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS cohort_blobs (
    key        TEXT PRIMARY KEY,
    body       BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store keeps one row per key; Put is an upsert.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.BlobStore = (*Store)(nil)

// New connects to dsn and creates the blob table if needed.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create blob table: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Put inserts or replaces the blob at key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	const q = `
INSERT INTO cohort_blobs (key, body, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`

	if _, err := s.pool.Exec(ctx, q, key, data); err != nil {
		return storage.Unavailable("put", key, err)
	}
	return nil
}

// Get returns the blob at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM cohort_blobs WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.Unavailable("get", key, err)
	}
	return data, nil
}

// Exists reports whether a row for key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM cohort_blobs WHERE key = $1)`, key).Scan(&ok)
	if err != nil {
		return false, storage.Unavailable("exists", key, err)
	}
	return ok, nil
}
