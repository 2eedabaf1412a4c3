package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/garyjia/trip-expense/internal/application/port"
	"github.com/garyjia/trip-expense/internal/domain/entity"
	"github.com/garyjia/trip-expense/internal/infrastructure/persistence/sqlite"
)

// EmployeeRepository implements port.EmployeeRepository
type EmployeeRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(db *sqlx.DB, logger *zap.Logger) port.EmployeeRepository {
	return &EmployeeRepository{
		db:     db,
		logger: logger,
	}
}

// ReplaceForTrip swaps the employee list of a trip. Call it inside a
// transaction so readers never observe the empty intermediate state.
func (r *EmployeeRepository) ReplaceForTrip(ctx context.Context, tripCode string, employees []entity.Employee) error {
	exec := sqlite.Executor(ctx, r.db)

	if _, err := exec.ExecContext(ctx, `DELETE FROM employees WHERE trip_code = ?`, tripCode); err != nil {
		r.logger.Error("Failed to clear employees", zap.String("trip_code", tripCode), zap.Error(err))
		return fmt.Errorf("failed to clear employees: %w", err)
	}

	for _, emp := range employees {
		_, err := exec.ExecContext(ctx,
			`INSERT INTO employees (trip_code, name, apply, start_date, department) VALUES (?, ?, ?, ?, ?)`,
			tripCode, emp.Name, emp.Apply, emp.StartDate, emp.Department)
		if err != nil {
			r.logger.Error("Failed to insert employee",
				zap.String("trip_code", tripCode),
				zap.String("name", emp.Name),
				zap.Error(err))
			return fmt.Errorf("failed to insert employee: %w", err)
		}
	}
	return nil
}

// ListByTrip returns employees in insertion order
func (r *EmployeeRepository) ListByTrip(ctx context.Context, tripCode string) ([]entity.Employee, error) {
	employees := []entity.Employee{}
	err := sqlx.SelectContext(ctx, sqlite.Executor(ctx, r.db), &employees,
		`SELECT name, apply, start_date, department FROM employees WHERE trip_code = ? ORDER BY id`, tripCode)
	if err != nil {
		r.logger.Error("Failed to list employees", zap.String("trip_code", tripCode), zap.Error(err))
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	return employees, nil
}

var _ port.EmployeeRepository = (*EmployeeRepository)(nil)
