// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridforge/modhost/pkg/errutil"
)

func TestMemoryKV(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	v, err := kv.Get(ctx, "Bar", "count")
	require.NoError(t, err)
	assert.Nil(t, v, "missing key is nil without error")

	in := []byte("1")
	require.NoError(t, kv.Set(ctx, "Bar", "count", in))
	in[0] = '9'

	v, err = kv.Get(ctx, "Bar", "count")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v, "stored value is a copy")

	v, err = kv.Get(ctx, "Other", "count")
	require.NoError(t, err)
	assert.Nil(t, v, "namespaces are isolated")

	require.NoError(t, kv.Delete(ctx, "Bar", "count"))
	require.NoError(t, kv.Delete(ctx, "Bar", "count"))
	v, err = kv.Get(ctx, "Bar", "count")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestMemoryKV_InvalidKey(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	err := kv.Set(ctx, "Bar", "", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidKey)
	errutil.AssertErrorCode(t, err, "KV_INVALID_KEY")

	_, err = kv.Get(ctx, "Bar", strings.Repeat("k", MaxKeyLength+1))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestMemoryKV_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryKV().Get(ctx, "Bar", "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPostgresKV_Get(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		want      []byte
		wantErr   string
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT value FROM mod_kv`).
					WithArgs("Bar", "count").
					WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte("3")))
			},
			want: []byte("3"),
		},
		{
			name: "missing",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT value FROM mod_kv`).
					WithArgs("Bar", "count").
					WillReturnError(pgx.ErrNoRows)
			},
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT value FROM mod_kv`).
					WithArgs("Bar", "count").
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			tt.setupMock(mock)

			got, err := newPostgresKVWithPool(mock).Get(context.Background(), "Bar", "count")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresKV_Set(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO mod_kv`).
		WithArgs("Bar", "count", []byte("4")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO mod_kv`).
		WithArgs("Bar", "empty", []byte{}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	kv := newPostgresKVWithPool(mock)
	require.NoError(t, kv.Set(context.Background(), "Bar", "count", []byte("4")))
	require.NoError(t, kv.Set(context.Background(), "Bar", "empty", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresKV_Set_MissingTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO mod_kv`).
		WithArgs("Bar", "count", []byte("4")).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UndefinedTable, Message: `relation "mod_kv" does not exist`})

	err = newPostgresKVWithPool(mock).Set(context.Background(), "Bar", "count", []byte("4"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "KV_SCHEMA_MISSING")
	errutil.AssertErrorContext(t, err, "sqlstate", pgerrcode.UndefinedTable)
}

func TestPostgresKV_Set_CheckViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO mod_kv`).
		WithArgs("Bar", "count", []byte("4")).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.CheckViolation})

	err = newPostgresKVWithPool(mock).Set(context.Background(), "Bar", "count", []byte("4"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestPostgresKV_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM mod_kv`).
		WithArgs("Bar", "count").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, newPostgresKVWithPool(mock).Delete(context.Background(), "Bar", "count"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresKV_InvalidKeyNeverQueries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = newPostgresKVWithPool(mock).Get(context.Background(), "Bar", "")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}
