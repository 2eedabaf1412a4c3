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

const expenseColumns = `expense_id, trip_code, category, date, description, currency,
	amount, exchange_rate, amount_ntd, photo_file_id, employee_name, belong_to,
	expense_status, expense_review_note, last_modified_by`

type expenseRow struct {
	*entity.Expense
	UpdatedAt int64 `db:"updated_at"`
}

// ExpenseRepository implements port.ExpenseRepository
type ExpenseRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *sqlx.DB, logger *zap.Logger) port.ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an expense; ExpenseID must already be assigned
func (r *ExpenseRepository) Create(ctx context.Context, exp *entity.Expense, updatedAt int64) error {
	query := `
		INSERT INTO expenses (` + expenseColumns + `, updated_at) VALUES (
			:expense_id, :trip_code, :category, :date, :description, :currency,
			:amount, :exchange_rate, :amount_ntd, :photo_file_id, :employee_name, :belong_to,
			:expense_status, :expense_review_note, :last_modified_by, :updated_at
		)
	`
	row := expenseRow{Expense: exp, UpdatedAt: updatedAt}
	if _, err := sqlx.NamedExecContext(ctx, sqlite.Executor(ctx, r.db), query, row); err != nil {
		r.logger.Error("Failed to create expense",
			zap.String("trip_code", exp.TripCode),
			zap.String("expense_id", exp.ExpenseID),
			zap.Error(err))
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

// GetByID retrieves an expense by its server id
func (r *ExpenseRepository) GetByID(ctx context.Context, expenseID string) (*entity.Expense, error) {
	var exp entity.Expense
	err := sqlx.GetContext(ctx, sqlite.Executor(ctx, r.db), &exp,
		`SELECT `+expenseColumns+` FROM expenses WHERE expense_id = ?`, expenseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get expense", zap.String("expense_id", expenseID), zap.Error(err))
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	exp.ID = exp.ExpenseID
	return &exp, nil
}

// Update overwrites every mutable column of the expense
func (r *ExpenseRepository) Update(ctx context.Context, exp *entity.Expense, updatedAt int64) error {
	query := `
		UPDATE expenses SET
			category = :category,
			date = :date,
			description = :description,
			currency = :currency,
			amount = :amount,
			exchange_rate = :exchange_rate,
			amount_ntd = :amount_ntd,
			photo_file_id = :photo_file_id,
			employee_name = :employee_name,
			belong_to = :belong_to,
			expense_status = :expense_status,
			expense_review_note = :expense_review_note,
			last_modified_by = :last_modified_by,
			updated_at = :updated_at
		WHERE expense_id = :expense_id
	`
	row := expenseRow{Expense: exp, UpdatedAt: updatedAt}
	result, err := sqlx.NamedExecContext(ctx, sqlite.Executor(ctx, r.db), query, row)
	if err != nil {
		r.logger.Error("Failed to update expense", zap.String("expense_id", exp.ExpenseID), zap.Error(err))
		return fmt.Errorf("failed to update expense: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: expense %s", entity.ErrNotFound, exp.ExpenseID)
	}
	return nil
}

// Delete removes an expense; deleting a missing row is not an error
func (r *ExpenseRepository) Delete(ctx context.Context, expenseID string) error {
	if _, err := sqlite.Executor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM expenses WHERE expense_id = ?`, expenseID); err != nil {
		r.logger.Error("Failed to delete expense", zap.String("expense_id", expenseID), zap.Error(err))
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return nil
}

// ListByTrip returns the expenses of a trip in insertion order
func (r *ExpenseRepository) ListByTrip(ctx context.Context, tripCode string) ([]*entity.Expense, error) {
	expenses := []*entity.Expense{}
	err := sqlx.SelectContext(ctx, sqlite.Executor(ctx, r.db), &expenses,
		`SELECT `+expenseColumns+` FROM expenses WHERE trip_code = ? ORDER BY rowid`, tripCode)
	if err != nil {
		r.logger.Error("Failed to list expenses", zap.String("trip_code", tripCode), zap.Error(err))
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	for _, exp := range expenses {
		exp.ID = exp.ExpenseID
	}
	return expenses, nil
}

// SubmitterActivity counts a submitter's expenses and their latest update
func (r *ExpenseRepository) SubmitterActivity(ctx context.Context, tripCode, submitter string) (*port.SubmitterActivity, error) {
	var row struct {
		Count       int   `db:"expense_count"`
		LastUpdated int64 `db:"last_updated"`
	}
	err := sqlx.GetContext(ctx, sqlite.Executor(ctx, r.db), &row, `
		SELECT COUNT(*) AS expense_count, COALESCE(MAX(updated_at), 0) AS last_updated
		FROM expenses WHERE trip_code = ? AND employee_name = ?
	`, tripCode, submitter)
	if err != nil {
		r.logger.Error("Failed to get submitter activity",
			zap.String("trip_code", tripCode),
			zap.String("submitter", submitter),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get submitter activity: %w", err)
	}
	return &port.SubmitterActivity{ExpenseCount: row.Count, LastUpdated: row.LastUpdated}, nil
}

// PhotoFileIDs returns the photo file ids referenced by any expense
func (r *ExpenseRepository) PhotoFileIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := sqlx.SelectContext(ctx, sqlite.Executor(ctx, r.db), &ids,
		`SELECT DISTINCT photo_file_id FROM expenses WHERE photo_file_id <> ''`)
	if err != nil {
		r.logger.Error("Failed to list photo file ids", zap.Error(err))
		return nil, fmt.Errorf("failed to list photo file ids: %w", err)
	}
	return ids, nil
}

var _ port.ExpenseRepository = (*ExpenseRepository)(nil)
