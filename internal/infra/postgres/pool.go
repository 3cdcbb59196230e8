// Package postgres stores profile documents and scheduling data in
// PostgreSQL through a pgx connection pool. The profiles table mirrors the
// Supabase layout: one JSONB document per user id.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boddenberg/timely-go/internal/domain"
)

// NewPool constructs a pgx connection pool using the provided connection string.
func NewPool(ctx context.Context, connString string, maxConns int32) (*pgxpool.Pool, error) {
	if connString == "" {
		return nil, fmt.Errorf("postgres: empty connection string")
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	return pgxpool.NewWithConfig(ctx, cfg)
}

// storeError classifies a pgx error.
func storeError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501" || pgErr.Code[:2] == "28":
			return domain.NewStoreError(domain.StorePermissionDenied, op, err)
		case pgErr.Code[:2] == "08" || pgErr.Code[:2] == "57":
			return domain.NewStoreError(domain.StoreNetwork, op, err)
		default:
			return domain.NewStoreError(domain.StoreUnknown, op, err)
		}
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return domain.NewStoreError(domain.StoreNetwork, op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewStoreError(domain.StoreNetwork, op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return domain.NewStoreError(domain.StoreNetwork, op, err)
	}
	return domain.NewStoreError(domain.StoreUnknown, op, err)
}

// isNoRows reports a missing row.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
