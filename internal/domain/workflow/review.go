package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/trip-expense/internal/domain/entity"
)

type noteKey struct{}

// WithNote attaches a reviewer note to ctx for guard evaluation
func WithNote(ctx context.Context, note string) context.Context {
	return context.WithValue(ctx, noteKey{}, note)
}

// NoteFromContext returns the reviewer note attached to ctx
func NoteFromContext(ctx context.Context) string {
	note, _ := ctx.Value(noteKey{}).(string)
	return note
}

func hasNote(ctx context.Context) bool {
	return strings.TrimSpace(NoteFromContext(ctx)) != ""
}

// Verdicts may be overwritten at any time; no reviewer trigger leads back
// to pending.
func verdictBuilder(revisionGuard GuardFunc) StateMachineBuilder {
	return NewBuilder(VerdictStates...).
		PermitFromAny(TriggerApprove, StateApproved, nil).
		PermitFromAny(TriggerReject, StateRejected, nil).
		PermitFromAny(TriggerRequestRevision, StateNeedsRevision, revisionGuard)
}

// NewTripVerdictMachine builds the trip-level verdict machine
func NewTripVerdictMachine(current entity.ReviewStatus) (StateMachine, error) {
	return verdictBuilder(nil).Build(verdictState(current))
}

// NewExpenseVerdictMachine builds the per-expense verdict machine.
// Requesting a revision needs a non-blank note in ctx. A revised expense
// returns to pending only through TriggerResubmit.
func NewExpenseVerdictMachine(current entity.ReviewStatus) (StateMachine, error) {
	b := verdictBuilder(hasNote)
	b.Configure(StateNeedsRevision).Permit(TriggerResubmit, StatePending)
	return b.Build(verdictState(current))
}

// NewTripStatusMachine builds the unordered Open/Submitted/Closed machine
func NewTripStatusMachine(current entity.TripStatus) (StateMachine, error) {
	if current == "" {
		current = entity.TripOpen
	}
	return NewBuilder(TripStatusStates...).
		PermitFromAny(TriggerReopen, StateOpen, nil).
		PermitFromAny(TriggerSubmit, StateSubmitted, nil).
		PermitFromAny(TriggerClose, StateClosed, nil).
		Build(State(current))
}

// TriggerForVerdict maps a requested verdict to its trigger
func TriggerForVerdict(v entity.ReviewStatus) (Trigger, error) {
	switch v {
	case entity.ReviewApproved:
		return TriggerApprove, nil
	case entity.ReviewRejected:
		return TriggerReject, nil
	case entity.ReviewNeedsRevision:
		return TriggerRequestRevision, nil
	}
	return "", fmt.Errorf("%w: %q is not a review action", ErrInvalidTransition, v)
}

// TriggerForTripStatus maps a requested trip status to its trigger
func TriggerForTripStatus(s entity.TripStatus) (Trigger, error) {
	switch s {
	case entity.TripOpen:
		return TriggerReopen, nil
	case entity.TripSubmitted:
		return TriggerSubmit, nil
	case entity.TripClosed:
		return TriggerClose, nil
	}
	return "", fmt.Errorf("%w: %q is not a trip status", ErrInvalidTransition, s)
}

// Legacy rows may carry an empty verdict; they count as pending.
func verdictState(v entity.ReviewStatus) State {
	if v == "" {
		return StatePending
	}
	return State(v)
}
