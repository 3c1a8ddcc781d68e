// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
)

// poolIface is the subset of *pgxpool.Pool used by PostgresKV. pgxmock
// satisfies it in unit tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresKV implements KV on the mod_kv table.
type PostgresKV struct {
	pool poolIface
}

// NewPostgresKV connects to dsn and verifies the connection.
func NewPostgresKV(ctx context.Context, dsn string) (*PostgresKV, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.In("store").Code("KV_CONNECT_FAILED").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.In("store").Code("KV_CONNECT_FAILED").Hint("check database-url").Wrap(err)
	}
	return &PostgresKV{pool: pool}, nil
}

// newPostgresKVWithPool wraps an existing pool.
func newPostgresKVWithPool(pool poolIface) *PostgresKV {
	return &PostgresKV{pool: pool}
}

// Close releases the pool.
func (s *PostgresKV) Close() {
	s.pool.Close()
}

// wrapPgError attaches a hint for errors an operator can act on.
func wrapPgError(err error, op, namespace, key string) error {
	b := oops.In("store").With("operation", op).With("namespace", namespace).With("key", key)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		b = b.With("sqlstate", pgErr.Code)
		switch pgErr.Code {
		case pgerrcode.UndefinedTable:
			b = b.Code("KV_SCHEMA_MISSING").Hint("run `modhost migrate` to create the kv table")
		case pgerrcode.CheckViolation:
			return b.Code("KV_INVALID_KEY").Wrap(errors.Join(ErrInvalidKey, err))
		}
	}
	return b.Wrap(err)
}

// Get implements KV.
func (s *PostgresKV) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := checkKey(namespace, key); err != nil {
		return nil, err
	}

	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM mod_kv WHERE mod = $1 AND key = $2`,
		namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapPgError(err, "get", namespace, key)
	}
	return value, nil
}

// Set implements KV.
func (s *PostgresKV) Set(ctx context.Context, namespace, key string, value []byte) error {
	if err := checkKey(namespace, key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO mod_kv (mod, key, value)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (mod, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		namespace, key, value)
	if err != nil {
		return wrapPgError(err, "set", namespace, key)
	}
	return nil
}

// Delete implements KV.
func (s *PostgresKV) Delete(ctx context.Context, namespace, key string) error {
	if err := checkKey(namespace, key); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `DELETE FROM mod_kv WHERE mod = $1 AND key = $2`, namespace, key)
	if err != nil {
		return wrapPgError(err, "delete", namespace, key)
	}
	return nil
}
