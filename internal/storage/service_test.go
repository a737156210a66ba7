package storage_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"skillswap/backend/internal/apperr"
	"skillswap/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newPostgresStore(t *testing.T) storage.Storage {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("set TEST_DATABASE_DSN to run postgres-backed storage tests")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	svc := storage.NewStorageService(db, nil)
	require.NoError(t, svc.Migrate())
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return svc
}

func TestPostgresService(t *testing.T) {
	runStoreContract(t, newPostgresStore)
}

func TestPostgresService_CancelledContextIsNotRetried(t *testing.T) {
	st := newPostgresStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := st.ListSessions(ctx, identity("u"), 1, 10)
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperr.ErrUnavailable))
}
