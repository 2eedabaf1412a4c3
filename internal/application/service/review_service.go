package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/garyjia/trip-expense/internal/application/port"
	"github.com/garyjia/trip-expense/internal/domain/access"
	"github.com/garyjia/trip-expense/internal/domain/entity"
	"github.com/garyjia/trip-expense/internal/domain/expense"
	"github.com/garyjia/trip-expense/internal/domain/review"
	"github.com/garyjia/trip-expense/internal/domain/subsidy"
)

// TripDetail is the reviewer view of one trip
type TripDetail struct {
	TripSnapshot
	Counts  expense.Counts
	Summary subsidy.Summary
}

// BatchResult is the outcome of one decision of a batch review
type BatchResult struct {
	ExpenseID string
	Err       error
}

// Photo is a stored receipt image
type Photo struct {
	Content  []byte
	MimeType string
}

// ReviewService serves the privileged reviewer actions.
// Every method expects an authenticated auditor or leader role.
type ReviewService interface {
	ListTrips(ctx context.Context, role access.Role, status entity.ReviewStatus) ([]*entity.Trip, error)
	GetTripDetail(ctx context.Context, role access.Role, tripCode string) (*TripDetail, error)
	ReviewTrip(ctx context.Context, role access.Role, tripCode string, action entity.ReviewStatus, note string) (*entity.Trip, error)
	ReviewExpense(ctx context.Context, role access.Role, expenseID string, action entity.ReviewStatus, note string) (*entity.Expense, error)
	BatchReviewExpenses(ctx context.Context, role access.Role, tripCode string, decisions []review.ExpenseDecision) ([]BatchResult, int64, error)
	EditExpense(ctx context.Context, role access.Role, expenseID string, patch expense.Patch) (*entity.Expense, error)
	SetLock(ctx context.Context, role access.Role, tripCode string, locked bool) (*entity.Trip, error)
	SetTripStatus(ctx context.Context, role access.Role, tripCode string, status entity.TripStatus) (*entity.Trip, error)
	GetPhoto(ctx context.Context, role access.Role, fileID string) (*Photo, error)
}

type reviewServiceImpl struct {
	tripReader
	photos     port.PhotoStorage
	authorizer *access.Authorizer
	txManager  port.TransactionManager
	metrics    MetricsRecorder
}

// NewReviewService creates a new ReviewService. metrics may be nil.
func NewReviewService(
	tripRepo port.TripRepository,
	employeeRepo port.EmployeeRepository,
	expenseRepo port.ExpenseRepository,
	photos port.PhotoStorage,
	authorizer *access.Authorizer,
	txManager port.TransactionManager,
	metrics MetricsRecorder,
	logger Logger,
) ReviewService {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &reviewServiceImpl{
		tripReader: tripReader{
			tripRepo:     tripRepo,
			employeeRepo: employeeRepo,
			expenseRepo:  expenseRepo,
			logger:       logger,
		},
		photos:     photos,
		authorizer: authorizer,
		txManager:  txManager,
		metrics:    metrics,
	}
}

// ListTrips lists every trip for auditors and only the own trip for leaders
func (s *reviewServiceImpl) ListTrips(ctx context.Context, role access.Role, status entity.ReviewStatus) ([]*entity.Trip, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status filter %q", entity.ErrValidation, status)
	}

	if s.authorizer.Can(role, access.CapViewAllTrips, "") {
		return s.tripRepo.List(ctx, status)
	}

	if err := s.authorizer.Authorize(role, access.CapReview, role.TripCode()); err != nil {
		return nil, err
	}
	trip, err := s.getTrip(ctx, role.TripCode())
	if err != nil {
		return nil, err
	}
	if status != "" && trip.Status != status {
		return []*entity.Trip{}, nil
	}
	return []*entity.Trip{trip}, nil
}

// GetTripDetail returns the trip with derived counts and the subsidy summary
func (s *reviewServiceImpl) GetTripDetail(ctx context.Context, role access.Role, tripCode string) (*TripDetail, error) {
	if err := s.authorizer.Authorize(role, access.CapReview, tripCode); err != nil {
		return nil, err
	}
	snapshot, err := s.snapshot(ctx, tripCode)
	if err != nil {
		return nil, err
	}
	return &TripDetail{
		TripSnapshot: *snapshot,
		Counts:       expense.DeriveCounts(snapshot.Expenses),
		Summary:      subsidy.Summarize(snapshot.Trip.TripInfo, snapshot.Employees, snapshot.Expenses),
	}, nil
}

// ReviewTrip sets the trip verdict
func (s *reviewServiceImpl) ReviewTrip(ctx context.Context, role access.Role, tripCode string, action entity.ReviewStatus, note string) (*entity.Trip, error) {
	var trip *entity.Trip
	err := s.mutateTrip(ctx, role, tripCode, access.CapReview, true, func(t *entity.Trip, now time.Time) error {
		trip = t
		return review.ReviewTrip(ctx, t, action, note, now)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveReview("trip", string(action))
	s.logger.Info("Trip reviewed", "trip_code", tripCode, "status", trip.Status, "reviewer", role.DisplayName())
	return trip, nil
}

// ReviewExpense sets one expense verdict
func (s *reviewServiceImpl) ReviewExpense(ctx context.Context, role access.Role, expenseID string, action entity.ReviewStatus, note string) (*entity.Expense, error) {
	if err := review.ValidateExpenseReview(action, note); err != nil {
		return nil, err
	}

	var reviewed *entity.Expense
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		exp, err := s.getExpense(txCtx, expenseID)
		if err != nil {
			return err
		}
		trip, err := s.writableTrip(txCtx, role, exp.TripCode, access.CapReview)
		if err != nil {
			return err
		}

		if err := review.ReviewExpense(txCtx, exp, action, note, role.DisplayName()); err != nil {
			return err
		}
		version := nextVersion(time.Now(), trip.ServerLastModified)
		if err := s.expenseRepo.Update(txCtx, exp, version); err != nil {
			return err
		}
		trip.ServerLastModified = version
		if err := s.tripRepo.Update(txCtx, trip); err != nil {
			return err
		}
		reviewed = exp
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to review expense", "error", err, "expense_id", expenseID)
		return nil, err
	}

	s.metrics.ObserveReview("expense", string(action))
	s.logger.Info("Expense reviewed", "expense_id", expenseID, "status", reviewed.ExpenseStatus, "reviewer", role.DisplayName())
	return reviewed, nil
}

// BatchReviewExpenses applies every decision in one transaction. A bad entry
// fails alone; lock and permission failures fail the whole batch.
func (s *reviewServiceImpl) BatchReviewExpenses(ctx context.Context, role access.Role, tripCode string, decisions []review.ExpenseDecision) ([]BatchResult, int64, error) {
	if len(decisions) == 0 {
		return nil, 0, fmt.Errorf("%w: no review entries", entity.ErrValidation)
	}

	var (
		results []BatchResult
		version int64
		applied []review.ExpenseDecision
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		trip, err := s.writableTrip(txCtx, role, tripCode, access.CapReview)
		if err != nil {
			return err
		}
		expenses, err := s.expenseRepo.ListByTrip(txCtx, tripCode)
		if err != nil {
			return err
		}
		byID := make(map[string]*entity.Expense, len(expenses))
		for _, exp := range expenses {
			byID[exp.ExpenseID] = exp
		}

		version = nextVersion(time.Now(), trip.ServerLastModified)
		results = make([]BatchResult, 0, len(decisions))
		for _, d := range decisions {
			result := BatchResult{ExpenseID: d.ExpenseID}
			exp, ok := byID[d.ExpenseID]
			if ok {
				result.Err = review.ReviewExpense(txCtx, exp, d.Action, d.Note, role.DisplayName())
			} else {
				result.Err = fmt.Errorf("%w: expense %s in %s", entity.ErrNotFound, d.ExpenseID, tripCode)
			}
			if result.Err == nil {
				if err := s.expenseRepo.Update(txCtx, exp, version); err != nil {
					return err
				}
				applied = append(applied, d)
			}
			results = append(results, result)
		}

		if len(applied) == 0 {
			version = trip.ServerLastModified
			return nil
		}
		trip.ServerLastModified = version
		return s.tripRepo.Update(txCtx, trip)
	})
	if err != nil {
		s.logger.Error("Failed to batch review expenses", "error", err, "trip_code", tripCode)
		return nil, 0, err
	}

	for _, d := range applied {
		s.metrics.ObserveReview("expense", string(d.Action))
	}
	s.logger.Info("Expenses batch reviewed", "trip_code", tripCode, "requested", len(decisions), "applied", len(applied))
	return results, version, nil
}

// EditExpense merges reviewer corrections into an expense
func (s *reviewServiceImpl) EditExpense(ctx context.Context, role access.Role, expenseID string, patch expense.Patch) (*entity.Expense, error) {
	var edited *entity.Expense
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		exp, err := s.getExpense(txCtx, expenseID)
		if err != nil {
			return err
		}
		trip, err := s.getTrip(txCtx, exp.TripCode)
		if err != nil {
			return err
		}
		if err := s.authorizer.CanWriteExpense(role, trip, exp); err != nil {
			return err
		}

		patch.Photo = nil
		patch.Apply(exp)
		if err := exp.Validate(); err != nil {
			return err
		}
		exp.LastModifiedBy = role.DisplayName()

		version := nextVersion(time.Now(), trip.ServerLastModified)
		if err := s.expenseRepo.Update(txCtx, exp, version); err != nil {
			return err
		}
		trip.ServerLastModified = version
		if err := s.tripRepo.Update(txCtx, trip); err != nil {
			return err
		}
		edited = exp
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to edit expense", "error", err, "expense_id", expenseID)
		return nil, err
	}

	s.logger.Info("Expense edited", "expense_id", expenseID, "editor", role.DisplayName())
	return edited, nil
}

// SetLock locks or unlocks a trip; a locked trip can always be unlocked
func (s *reviewServiceImpl) SetLock(ctx context.Context, role access.Role, tripCode string, locked bool) (*entity.Trip, error) {
	var trip *entity.Trip
	err := s.mutateTrip(ctx, role, tripCode, access.CapLockTrip, false, func(t *entity.Trip, _ time.Time) error {
		t.IsLocked = locked
		trip = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Trip lock changed", "trip_code", tripCode, "locked", locked, "actor", role.DisplayName())
	return trip, nil
}

// SetTripStatus moves the trip lifecycle flag
func (s *reviewServiceImpl) SetTripStatus(ctx context.Context, role access.Role, tripCode string, status entity.TripStatus) (*entity.Trip, error) {
	var trip *entity.Trip
	err := s.mutateTrip(ctx, role, tripCode, access.CapSetTripStatus, true, func(t *entity.Trip, _ time.Time) error {
		trip = t
		return review.SetTripStatus(ctx, t, status)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Trip status changed", "trip_code", tripCode, "trip_status", status, "actor", role.DisplayName())
	return trip, nil
}

// GetPhoto loads a receipt photo of a trip in the caller's scope
func (s *reviewServiceImpl) GetPhoto(ctx context.Context, role access.Role, fileID string) (*Photo, error) {
	tripCode := photoTrip(fileID)
	if tripCode == "" {
		return nil, fmt.Errorf("%w: malformed file id %q", entity.ErrValidation, fileID)
	}
	if err := s.authorizer.Authorize(role, access.CapReview, tripCode); err != nil {
		return nil, err
	}

	content, err := s.photos.Load(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return &Photo{Content: content, MimeType: http.DetectContentType(content)}, nil
}

// mutateTrip loads the trip, checks capability (and the lock when
// checkLock is set), applies fn and stores the trip with a new version
func (s *reviewServiceImpl) mutateTrip(ctx context.Context, role access.Role, tripCode string, capability access.Capability, checkLock bool, fn func(*entity.Trip, time.Time) error) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var (
			trip *entity.Trip
			err  error
		)
		if checkLock {
			trip, err = s.writableTrip(txCtx, role, tripCode, capability)
		} else {
			trip, err = s.authorizedTrip(txCtx, role, tripCode, capability)
		}
		if err != nil {
			return err
		}

		now := time.Now()
		if err := fn(trip, now); err != nil {
			return err
		}
		trip.ServerLastModified = nextVersion(now, trip.ServerLastModified)
		return s.tripRepo.Update(txCtx, trip)
	})
	if err != nil {
		s.logger.Error("Failed to update trip", "error", err, "trip_code", tripCode, "capability", capability)
	}
	return err
}

func (s *reviewServiceImpl) authorizedTrip(ctx context.Context, role access.Role, tripCode string, capability access.Capability) (*entity.Trip, error) {
	if err := s.authorizer.Authorize(role, capability, tripCode); err != nil {
		return nil, err
	}
	return s.getTrip(ctx, tripCode)
}

// writableTrip is authorizedTrip plus the lock check
func (s *reviewServiceImpl) writableTrip(ctx context.Context, role access.Role, tripCode string, capability access.Capability) (*entity.Trip, error) {
	trip, err := s.authorizedTrip(ctx, role, tripCode, capability)
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.CheckWritable(role, trip); err != nil {
		return nil, err
	}
	return trip, nil
}
