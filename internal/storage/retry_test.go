package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"skillswap/backend/internal/apperr"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(&pgconn.PgError{Code: "08006"}), "connection failure")
	assert.True(t, isTransient(&pgconn.PgError{Code: "40001"}), "serialization failure")
	assert.True(t, isTransient(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"})), "deadlock")
	assert.True(t, isTransient(context.DeadlineExceeded))
	assert.False(t, isTransient(&pgconn.PgError{Code: "23505"}), "unique violation")
	assert.False(t, isTransient(context.Canceled))
	assert.False(t, isTransient(errors.New("boom")))
	assert.False(t, isTransient(nil))
}

func TestWithReadRetry(t *testing.T) {
	svc := NewStorageService(nil, nil)
	ctx := context.Background()

	calls := 0
	err := svc.withReadRetry(ctx, "op", func() error {
		calls++
		return &pgconn.PgError{Code: "08006"}
	})
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	assert.Equal(t, 2, calls, "a transient read is attempted exactly twice")

	calls = 0
	err = svc.withReadRetry(ctx, "op", func() error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = svc.withReadRetry(ctx, "op", func() error {
		calls++
		return gorm.ErrRecordNotFound
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 1, calls)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	calls = 0
	_ = svc.withReadRetry(cancelled, "op", func() error {
		calls++
		return &pgconn.PgError{Code: "08006"}
	})
	assert.Equal(t, 1, calls, "no retry once the caller has gone")
}

func TestNextTimestampIsStrictlyIncreasing(t *testing.T) {
	ahead := time.Now().Add(time.Hour)

	next := nextTimestamp(ahead)
	assert.True(t, next.After(ahead), "a clock behind the last message still moves forward")
	assert.True(t, nextTimestamp(next).After(next))
}
