// Package sqlite carries transactions through context for the repositories.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/trip-expense/internal/application/port"
)

type txKey struct{}

// busyRetries bounds how often a transaction that hit a locked database is
// started again
const busyRetries = 3

// DB implements port.TransactionManager over a SQLite connection
type DB struct {
	*sqlx.DB
	logger  *zap.Logger
	backoff time.Duration
}

// NewDB creates a transaction manager
func NewDB(sqlDB *sqlx.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:      sqlDB,
		logger:  logger,
		backoff: 50 * time.Millisecond,
	}
}

// WithTransaction runs fn in a transaction carried by ctx. Nested calls
// reuse the outer transaction. A transaction that fails with SQLITE_BUSY
// is retried from the start, so fn may run more than once.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := extractTx(ctx); tx != nil {
		return fn(ctx)
	}

	var err error
	for attempt := 0; attempt <= busyRetries; attempt++ {
		if attempt > 0 {
			db.logger.Warn("Database busy, retrying transaction", zap.Int("attempt", attempt))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(db.backoff * time.Duration(attempt)):
			}
		}
		err = db.run(ctx, fn)
		if !IsBusy(err) {
			return err
		}
	}
	return err
}

func (db *DB) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsBusy reports whether err is SQLite refusing a write on a locked database
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func extractTx(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx
}

// Executor returns the transaction carried by ctx, or db when there is none
func Executor(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return db
}

var _ port.TransactionManager = (*DB)(nil)
