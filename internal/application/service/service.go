package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/trip-expense/internal/application/port"
	"github.com/garyjia/trip-expense/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsRecorder receives domain counters; the metrics package implements it
type MetricsRecorder interface {
	ObserveReview(target, verdict string)
	ObserveConflict()
}

type nopRecorder struct{}

func (nopRecorder) ObserveReview(string, string) {}
func (nopRecorder) ObserveConflict()             {}

// nextVersion returns a unix-millisecond stamp strictly above prev
func nextVersion(now time.Time, prev int64) int64 {
	v := now.UnixMilli()
	if v <= prev {
		v = prev + 1
	}
	return v
}

// photoTrip returns the trip code prefix of a photo file id
func photoTrip(fileID string) string {
	trip, _, found := strings.Cut(fileID, "/")
	if !found {
		return ""
	}
	return trip
}

// tripReader loads trips and their children; both services embed it
type tripReader struct {
	tripRepo     port.TripRepository
	employeeRepo port.EmployeeRepository
	expenseRepo  port.ExpenseRepository
	logger       Logger
}

// getTrip returns entity.ErrNotFound instead of a nil trip
func (r tripReader) getTrip(ctx context.Context, tripCode string) (*entity.Trip, error) {
	if tripCode == "" {
		return nil, fmt.Errorf("%w: tripCode is required", entity.ErrValidation)
	}
	trip, err := r.tripRepo.GetByCode(ctx, tripCode)
	if err != nil {
		r.logger.Error("Failed to get trip", "error", err, "trip_code", tripCode)
		return nil, err
	}
	if trip == nil {
		return nil, fmt.Errorf("%w: trip %s", entity.ErrNotFound, tripCode)
	}
	return trip, nil
}

// getExpense returns entity.ErrNotFound instead of a nil expense
func (r tripReader) getExpense(ctx context.Context, expenseID string) (*entity.Expense, error) {
	if expenseID == "" {
		return nil, fmt.Errorf("%w: expenseId is required", entity.ErrValidation)
	}
	exp, err := r.expenseRepo.GetByID(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, fmt.Errorf("%w: expense %s", entity.ErrNotFound, expenseID)
	}
	return exp, nil
}

func (r tripReader) snapshot(ctx context.Context, tripCode string) (*TripSnapshot, error) {
	trip, err := r.getTrip(ctx, tripCode)
	if err != nil {
		return nil, err
	}
	employees, err := r.employeeRepo.ListByTrip(ctx, tripCode)
	if err != nil {
		return nil, err
	}
	expenses, err := r.expenseRepo.ListByTrip(ctx, tripCode)
	if err != nil {
		return nil, err
	}
	return &TripSnapshot{Trip: trip, Employees: employees, Expenses: expenses}, nil
}
