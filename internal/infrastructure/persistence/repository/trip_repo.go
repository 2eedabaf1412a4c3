package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/garyjia/trip-expense/internal/application/port"
	"github.com/garyjia/trip-expense/internal/domain/entity"
	"github.com/garyjia/trip-expense/internal/infrastructure/persistence/sqlite"
)

const tripColumns = `trip_code, location, start_date, end_date, subsidy_amount,
	payment_method, subsidy_method, submitted_by, submitted_date, leader_name,
	password_hash, trip_status, status, review_note, review_date, is_locked,
	server_last_modified`

// TripRepository implements port.TripRepository
type TripRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewTripRepository creates a new trip repository
func NewTripRepository(db *sqlx.DB, logger *zap.Logger) port.TripRepository {
	return &TripRepository{
		db:     db,
		logger: logger,
	}
}

// NextCode reserves the next TRIP-#### code from the row sequence
func (r *TripRepository) NextCode(ctx context.Context) (string, error) {
	var next int64
	err := sqlx.GetContext(ctx, sqlite.Executor(ctx, r.db), &next,
		`SELECT COALESCE(MAX(id), 0) + 1 FROM trips`)
	if err != nil {
		r.logger.Error("Failed to compute next trip code", zap.Error(err))
		return "", fmt.Errorf("failed to compute next trip code: %w", err)
	}
	return fmt.Sprintf("TRIP-%04d", next), nil
}

// Create inserts a new trip
func (r *TripRepository) Create(ctx context.Context, trip *entity.Trip) error {
	query := `
		INSERT INTO trips (` + tripColumns + `) VALUES (
			:trip_code, :location, :start_date, :end_date, :subsidy_amount,
			:payment_method, :subsidy_method, :submitted_by, :submitted_date, :leader_name,
			:password_hash, :trip_status, :status, :review_note, :review_date, :is_locked,
			:server_last_modified
		)
	`
	if _, err := sqlx.NamedExecContext(ctx, sqlite.Executor(ctx, r.db), query, trip); err != nil {
		r.logger.Error("Failed to create trip", zap.String("trip_code", trip.TripCode), zap.Error(err))
		return fmt.Errorf("failed to create trip: %w", err)
	}
	return nil
}

// GetByCode retrieves a trip by its code
func (r *TripRepository) GetByCode(ctx context.Context, tripCode string) (*entity.Trip, error) {
	var trip entity.Trip
	err := sqlx.GetContext(ctx, sqlite.Executor(ctx, r.db), &trip,
		`SELECT `+tripColumns+` FROM trips WHERE trip_code = ?`, tripCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get trip", zap.String("trip_code", tripCode), zap.Error(err))
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return &trip, nil
}

// Update overwrites every mutable column of the trip
func (r *TripRepository) Update(ctx context.Context, trip *entity.Trip) error {
	query := `
		UPDATE trips SET
			location = :location,
			start_date = :start_date,
			end_date = :end_date,
			subsidy_amount = :subsidy_amount,
			payment_method = :payment_method,
			subsidy_method = :subsidy_method,
			submitted_by = :submitted_by,
			submitted_date = :submitted_date,
			leader_name = :leader_name,
			password_hash = :password_hash,
			trip_status = :trip_status,
			status = :status,
			review_note = :review_note,
			review_date = :review_date,
			is_locked = :is_locked,
			server_last_modified = :server_last_modified
		WHERE trip_code = :trip_code
	`
	result, err := sqlx.NamedExecContext(ctx, sqlite.Executor(ctx, r.db), query, trip)
	if err != nil {
		r.logger.Error("Failed to update trip", zap.String("trip_code", trip.TripCode), zap.Error(err))
		return fmt.Errorf("failed to update trip: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: trip %s", entity.ErrNotFound, trip.TripCode)
	}
	return nil
}

// List returns trips newest first, optionally filtered by review status
func (r *TripRepository) List(ctx context.Context, status entity.ReviewStatus) ([]*entity.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`

	trips := []*entity.Trip{}
	if err := sqlx.SelectContext(ctx, sqlite.Executor(ctx, r.db), &trips, query, args...); err != nil {
		r.logger.Error("Failed to list trips", zap.Error(err))
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	return trips, nil
}

var _ port.TripRepository = (*TripRepository)(nil)
