package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/archivemart/internal/model"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: pgerrcode.SerializationFailure}, true},
		{"deadlock", fmt.Errorf("lock user: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), true},
		{"unique violation", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"context canceled", fmt.Errorf("begin tx: %w", context.Canceled), false},
		{"business error", model.ErrInsufficientBalance, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestErrorsWrapDomainSentinels(t *testing.T) {
	assert.ErrorIs(t, ErrUserNotFound, model.ErrNotFound)
	assert.ErrorIs(t, ErrOrderNotFound, model.ErrNotFound)
	assert.ErrorIs(t, ErrPromoNotFound, model.ErrNotFound)
	assert.ErrorIs(t, ErrUserExists, model.ErrValidation)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	body, err := fs.ReadFile(migrationsFS, "migrations/00001_init.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "-- +goose Up")
	assert.Contains(t, string(body), "CHECK (point_balance >= 0)")
	assert.Contains(t, string(body), "PRIMARY KEY (user_id, product_id)")
}
