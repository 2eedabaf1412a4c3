// Package review applies reviewer verdicts and lifecycle changes to trips
// and expenses through the workflow state machines.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/trip-expense/internal/domain/entity"
	"github.com/garyjia/trip-expense/internal/domain/workflow"
)

// ReviewDateLayout is the timestamp format stamped on reviewed trips
const ReviewDateLayout = time.RFC3339

// ExpenseDecision is one entry of a batch expense review
type ExpenseDecision struct {
	ExpenseID string              `json:"expenseId"`
	Action    entity.ReviewStatus `json:"action"`
	Note      string              `json:"note"`
}

// Validate checks a single decision before it leaves the client
func (d ExpenseDecision) Validate() error {
	return ValidateExpenseReview(d.Action, d.Note)
}

// ValidateExpenseReview rejects unknown actions and blank revision notes
func ValidateExpenseReview(action entity.ReviewStatus, note string) error {
	if !action.IsAction() {
		return fmt.Errorf("%w: unknown review action %q", entity.ErrValidation, action)
	}
	if action == entity.ReviewNeedsRevision && strings.TrimSpace(note) == "" {
		return entity.ErrRevisionNoteRequired
	}
	return nil
}

// ReviewTrip overwrites the trip verdict and stamps reviewDate and reviewNote
func ReviewTrip(ctx context.Context, trip *entity.Trip, action entity.ReviewStatus, note string, now time.Time) error {
	trigger, err := workflow.TriggerForVerdict(action)
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}

	machine, err := workflow.NewTripVerdictMachine(trip.Status)
	if err != nil {
		return fmt.Errorf("%w: trip %s: %v", entity.ErrValidation, trip.TripCode, err)
	}

	next, err := machine.Fire(workflow.WithNote(ctx, note), trigger)
	if err != nil {
		return fmt.Errorf("failed to review trip %s: %w", trip.TripCode, err)
	}

	trip.Status = entity.ReviewStatus(next)
	trip.ReviewNote = note
	trip.ReviewDate = now.UTC().Format(ReviewDateLayout)
	return nil
}

// ReviewExpense sets the per-expense verdict. A needs_revision verdict
// without a note returns entity.ErrRevisionNoteRequired and leaves exp untouched.
func ReviewExpense(ctx context.Context, exp *entity.Expense, action entity.ReviewStatus, note, reviewer string) error {
	if err := ValidateExpenseReview(action, note); err != nil {
		return err
	}

	trigger, err := workflow.TriggerForVerdict(action)
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}

	machine, err := workflow.NewExpenseVerdictMachine(exp.ExpenseStatus)
	if err != nil {
		return fmt.Errorf("%w: expense %s: %v", entity.ErrValidation, exp.ExpenseID, err)
	}

	next, err := machine.Fire(workflow.WithNote(ctx, note), trigger)
	if errors.Is(err, workflow.ErrGuardFailed) {
		return entity.ErrRevisionNoteRequired
	}
	if err != nil {
		return fmt.Errorf("failed to review expense %s: %w", exp.ExpenseID, err)
	}

	exp.ExpenseStatus = entity.ReviewStatus(next)
	exp.ExpenseReviewNote = note
	if reviewer != "" {
		exp.LastModifiedBy = reviewer
	}
	return nil
}

// ResubmitExpense moves an expense sent back for revision to pending once
// its submitter changed it. Any other status is left alone and false is
// returned.
func ResubmitExpense(ctx context.Context, exp *entity.Expense) (bool, error) {
	machine, err := workflow.NewExpenseVerdictMachine(exp.ExpenseStatus)
	if err != nil {
		return false, fmt.Errorf("%w: expense %s: %v", entity.ErrValidation, exp.ExpenseID, err)
	}
	if !machine.CanFire(workflow.TriggerResubmit) {
		return false, nil
	}

	next, err := machine.Fire(ctx, workflow.TriggerResubmit)
	if err != nil {
		return false, fmt.Errorf("failed to resubmit expense %s: %w", exp.ExpenseID, err)
	}
	exp.ExpenseStatus = entity.ReviewStatus(next)
	return true, nil
}

// SetTripStatus moves the trip lifecycle flag; any status may follow any other
func SetTripStatus(ctx context.Context, trip *entity.Trip, status entity.TripStatus) error {
	trigger, err := workflow.TriggerForTripStatus(status)
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}

	machine, err := workflow.NewTripStatusMachine(trip.TripStatus)
	if err != nil {
		return fmt.Errorf("%w: trip %s: %v", entity.ErrValidation, trip.TripCode, err)
	}

	next, err := machine.Fire(ctx, trigger)
	if err != nil {
		return fmt.Errorf("failed to set trip status: %w", err)
	}

	trip.TripStatus = entity.TripStatus(next)
	return nil
}

// BulkApprove builds one approval per currently pending expense.
// The expenses must be the live set just fetched from the server.
func BulkApprove(expenses []*entity.Expense) ([]ExpenseDecision, error) {
	var decisions []ExpenseDecision
	for _, exp := range expenses {
		if exp.ExpenseStatus != entity.ReviewPending && exp.ExpenseStatus != "" {
			continue
		}
		decisions = append(decisions, ExpenseDecision{
			ExpenseID: exp.ExpenseID,
			Action:    entity.ReviewApproved,
		})
	}
	if len(decisions) == 0 {
		return nil, entity.ErrNothingToReview
	}
	return decisions, nil
}
