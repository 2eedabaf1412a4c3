package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	sqlDB, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	db := NewDB(sqlDB, zap.NewNop())
	db.backoff = 0
	return db
}

func TestIsBusy(t *testing.T) {
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	assert.True(t, IsBusy(busy))
	assert.True(t, IsBusy(fmt.Errorf("update trip: %w", busy)))
	assert.True(t, IsBusy(sqlite3.Error{Code: sqlite3.ErrLocked}))
	assert.False(t, IsBusy(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.False(t, IsBusy(errors.New("boom")))
	assert.False(t, IsBusy(nil))
}

func TestWithTransaction_RetriesBusy(t *testing.T) {
	db := newTestDB(t)

	calls := 0
	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithTransaction_GivesUpAfterRetries(t *testing.T) {
	db := newTestDB(t)

	calls := 0
	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		calls++
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	})
	assert.True(t, IsBusy(err))
	assert.Equal(t, busyRetries+1, calls)
}

func TestWithTransaction_OtherErrorsAreNotRetried(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Exec("CREATE TABLE trips (code TEXT PRIMARY KEY)")
	require.NoError(t, err)

	calls := 0
	wantErr := errors.New("version conflict")
	err = db.WithTransaction(context.Background(), func(ctx context.Context) error {
		calls++
		if _, err := Executor(ctx, db.DB).ExecContext(ctx, "INSERT INTO trips (code) VALUES ('TRIP-0001')"); err != nil {
			return err
		}
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls)

	var count int
	require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM trips"))
	assert.Equal(t, 0, count)
}

func TestWithTransaction_NestedReusesOuter(t *testing.T) {
	db := newTestDB(t)

	err := db.WithTransaction(context.Background(), func(outer context.Context) error {
		return db.WithTransaction(outer, func(inner context.Context) error {
			assert.Same(t, extractTx(outer), extractTx(inner))
			return nil
		})
	})
	require.NoError(t, err)
}
