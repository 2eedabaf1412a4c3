package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/trip-expense/internal/domain/access"
	"github.com/garyjia/trip-expense/internal/domain/entity"
	"github.com/garyjia/trip-expense/internal/domain/expense"
	"github.com/garyjia/trip-expense/internal/domain/review"
	"github.com/garyjia/trip-expense/internal/protocol"
)

// TripDetail is the reviewer view of one trip
type TripDetail struct {
	Snapshot
	Counts expense.Counts
}

// BulkResult reports a bulk approval
type BulkResult struct {
	Approved int
	Failed   []protocol.ReviewResult
	// Fallback is true when the server lacked batch review and entries were sent one by one
	Fallback bool
}

// LoginAuditor exchanges the admin password for an auditor token
func (e *SyncEngine) LoginAuditor(ctx context.Context, password string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	resp, err := e.api.Call(ctx, protocol.Request{Action: protocol.ActionAdminLogin, Password: password})
	if err != nil {
		return err
	}
	e.session.SetRole(access.Auditor{Token: resp.Token})
	e.logger.Info("Logged in as auditor")
	return nil
}

// LoginLeader exchanges a trip password for a leader token on that trip
func (e *SyncEngine) LoginLeader(ctx context.Context, tripCode, password string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	resp, err := e.api.Call(ctx, protocol.Request{
		Action:   protocol.ActionLoginLeader,
		TripCode: tripCode,
		Password: password,
	})
	if err != nil {
		return err
	}
	e.session.SetRole(access.Leader{Token: resp.Token, Trip: resp.TripCode, Name: e.session.UserName()})
	e.logger.Info("Logged in as leader", zap.String("trip_code", resp.TripCode))
	return nil
}

// ListTrips lists the trips visible to the logged-in reviewer. An empty
// filter lists every review status.
func (e *SyncEngine) ListTrips(ctx context.Context, filter entity.ReviewStatus) ([]*entity.Trip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	resp, err := e.call(ctx, protocol.Request{Action: protocol.ActionAdminGetTrips, StatusFilter: filter})
	if err != nil {
		return nil, err
	}
	return resp.Trips, nil
}

// TripDetail fetches the live reviewer view of a trip
func (e *SyncEngine) TripDetail(ctx context.Context, tripCode string) (*TripDetail, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tripDetail(ctx, tripCode)
}

func (e *SyncEngine) tripDetail(ctx context.Context, tripCode string) (*TripDetail, error) {
	resp, err := e.call(ctx, protocol.Request{Action: protocol.ActionAdminGetTripDetail, TripCode: tripCode})
	if err != nil {
		return nil, err
	}
	detail := &TripDetail{
		Snapshot: Snapshot{Trip: resp.Trip, Employees: resp.Employees, Expenses: resp.Expenses},
	}
	if resp.Counts != nil {
		detail.Counts = *resp.Counts
	} else {
		detail.Counts = expense.DeriveCounts(resp.Expenses)
	}
	return detail, nil
}

// ReviewTrip sets the trip-level verdict
func (e *SyncEngine) ReviewTrip(ctx context.Context, tripCode string, action entity.ReviewStatus, note string) (*entity.Trip, error) {
	if !action.IsAction() {
		return nil, fmt.Errorf("%w: unknown review action %q", entity.ErrValidation, action)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	resp, err := e.call(ctx, protocol.Request{
		Action:       protocol.ActionAdminReview,
		TripCode:     tripCode,
		ReviewAction: action,
		Note:         note,
	})
	if err != nil {
		return nil, err
	}
	return resp.Trip, nil
}

// ReviewExpense sets one expense verdict. A needs_revision verdict without
// a note is rejected before any request is sent.
func (e *SyncEngine) ReviewExpense(ctx context.Context, expenseID string, action entity.ReviewStatus, note string) (*entity.Expense, error) {
	if err := review.ValidateExpenseReview(action, note); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	resp, err := e.call(ctx, protocol.Request{
		Action:       protocol.ActionAdminReviewExpense,
		ExpenseID:    expenseID,
		ReviewAction: action,
		Note:         note,
	})
	if err != nil {
		return nil, err
	}
	return resp.Expense, nil
}

// BulkApprove approves every expense still pending on the server. The set
// is fetched live, so a stale local view cannot approve the wrong entries.
func (e *SyncEngine) BulkApprove(ctx context.Context, tripCode string) (*BulkResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	detail, err := e.tripDetail(ctx, tripCode)
	if err != nil {
		return nil, err
	}
	decisions, err := review.BulkApprove(detail.Expenses)
	if err != nil {
		return nil, err
	}

	resp, err := e.call(ctx, protocol.Request{
		Action:   protocol.ActionAdminBatchReviewExpenses,
		TripCode: tripCode,
		Reviews:  decisions,
	})
	if errors.Is(err, entity.ErrUnknownAction) {
		e.logger.Info("Batch review unsupported, reviewing one by one", zap.String("trip_code", tripCode))
		return e.reviewEach(ctx, decisions), nil
	}
	if err != nil {
		return nil, err
	}

	result := &BulkResult{}
	for _, r := range resp.Results {
		if r.Success {
			result.Approved++
			continue
		}
		result.Failed = append(result.Failed, r)
	}
	return result, nil
}

func (e *SyncEngine) reviewEach(ctx context.Context, decisions []review.ExpenseDecision) *BulkResult {
	result := &BulkResult{Fallback: true}
	for _, d := range decisions {
		_, err := e.call(ctx, protocol.Request{
			Action:       protocol.ActionAdminReviewExpense,
			ExpenseID:    d.ExpenseID,
			ReviewAction: d.Action,
			Note:         d.Note,
		})
		if err != nil {
			result.Failed = append(result.Failed, protocol.ReviewResult{
				ExpenseID: d.ExpenseID,
				Error:     err.Error(),
				ErrorCode: protocol.CodeFor(err),
			})
			continue
		}
		result.Approved++
	}
	return result
}

// EditExpense applies reviewer corrections to a submitted expense
func (e *SyncEngine) EditExpense(ctx context.Context, expenseID string, patch expense.Patch) (*entity.Expense, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	resp, err := e.call(ctx, protocol.Request{
		Action:    protocol.ActionAdminEditExpense,
		ExpenseID: expenseID,
		Changes:   &patch,
	})
	if err != nil {
		return nil, err
	}
	return resp.Expense, nil
}

// SetLock locks or unlocks a trip against member writes
func (e *SyncEngine) SetLock(ctx context.Context, tripCode string, locked bool) (*entity.Trip, error) {
	action := protocol.ActionAdminUnlockTrip
	if locked {
		action = protocol.ActionAdminLockTrip
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	resp, err := e.call(ctx, protocol.Request{Action: action, TripCode: tripCode})
	if err != nil {
		return nil, err
	}
	if tripCode == e.session.TripCode() {
		e.session.observeTrip(resp.Trip)
	}
	return resp.Trip, nil
}

// SetTripStatus moves the trip between Open, Submitted and Closed
func (e *SyncEngine) SetTripStatus(ctx context.Context, tripCode string, status entity.TripStatus) (*entity.Trip, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown trip status %q", entity.ErrValidation, status)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	resp, err := e.call(ctx, protocol.Request{
		Action:     protocol.ActionSubmitTripStatus,
		TripCode:   tripCode,
		TripStatus: status,
	})
	if err != nil {
		return nil, err
	}
	if tripCode == e.session.TripCode() {
		e.session.observeTrip(resp.Trip)
	}
	return resp.Trip, nil
}

// Photo downloads a stored receipt photo
func (e *SyncEngine) Photo(ctx context.Context, fileID string) ([]byte, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	resp, err := e.call(ctx, protocol.Request{Action: protocol.ActionAdminGetPhoto, FileID: fileID})
	if err != nil {
		return nil, "", err
	}
	content, err := base64.StdEncoding.DecodeString(resp.Photo)
	if err != nil {
		return nil, "", fmt.Errorf("%w: photo %s is not base64", ErrUnavailable, fileID)
	}
	return content, resp.MimeType, nil
}

// Members lists the names known on a trip
func (e *SyncEngine) Members(ctx context.Context, tripCode string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	resp, err := e.call(ctx, protocol.Request{Action: protocol.ActionGetMembers, TripCode: tripCode})
	if err != nil {
		return nil, err
	}
	return resp.Members, nil
}
