package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore remembers which document a client key produced.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// ErrIdempotencyInFlight indicates the same key is still being processed.
var ErrIdempotencyInFlight = errors.New("idempotent request still in flight")

// Begin claims key within scope. When the key already produced a document its
// reference is returned and the caller must replay instead of executing again.
func (s *IdempotencyStore) Begin(ctx context.Context, scope, key string) (string, error) {
	if s == nil {
		return "", errors.New("idempotency store not initialised")
	}
	if key == "" || scope == "" {
		return "", errors.New("idempotency scope and key required")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (scope, key, ref, created_at) VALUES ($1, $2, '', $3)`, scope, key, time.Now().UTC())
	if err == nil {
		return "", nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", err
	}
	var ref string
	if err := s.pool.QueryRow(ctx, `SELECT ref FROM idempotency_keys WHERE scope=$1 AND key=$2`, scope, key).Scan(&ref); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrIdempotencyInFlight
		}
		return "", err
	}
	if ref == "" {
		return "", ErrIdempotencyInFlight
	}
	return ref, nil
}

// Complete binds the produced document reference to the key.
func (s *IdempotencyStore) Complete(ctx context.Context, scope, key, ref string) error {
	if s == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE idempotency_keys SET ref=$3 WHERE scope=$1 AND key=$2`, scope, key, ref)
	return err
}

// Delete removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, scope, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE scope=$1 AND key=$2`, scope, key)
	return err
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
