package port

import (
	"context"

	"github.com/garyjia/trip-expense/internal/domain/entity"
)

// TripRepository defines trip data access operations
type TripRepository interface {
	// NextCode reserves the next TRIP-#### code
	NextCode(ctx context.Context) (string, error)
	Create(ctx context.Context, trip *entity.Trip) error
	// GetByCode returns nil, nil when the trip does not exist
	GetByCode(ctx context.Context, tripCode string) (*entity.Trip, error)
	Update(ctx context.Context, trip *entity.Trip) error
	// List returns trips newest first; an empty status lists all
	List(ctx context.Context, status entity.ReviewStatus) ([]*entity.Trip, error)
}

// EmployeeRepository defines employee data access operations
type EmployeeRepository interface {
	ReplaceForTrip(ctx context.Context, tripCode string, employees []entity.Employee) error
	ListByTrip(ctx context.Context, tripCode string) ([]entity.Employee, error)
}

// SubmitterActivity summarizes the expenses stored under one submitter name
type SubmitterActivity struct {
	ExpenseCount int
	LastUpdated  int64
}

// ExpenseRepository defines expense data access operations
type ExpenseRepository interface {
	Create(ctx context.Context, exp *entity.Expense, updatedAt int64) error
	// GetByID returns nil, nil when the expense does not exist
	GetByID(ctx context.Context, expenseID string) (*entity.Expense, error)
	Update(ctx context.Context, exp *entity.Expense, updatedAt int64) error
	Delete(ctx context.Context, expenseID string) error
	ListByTrip(ctx context.Context, tripCode string) ([]*entity.Expense, error)
	SubmitterActivity(ctx context.Context, tripCode, submitter string) (*SubmitterActivity, error)
	// PhotoFileIDs returns every photo file id still referenced by an expense
	PhotoFileIDs(ctx context.Context) ([]string, error)
}

// TransactionManager defines transaction management operations
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
