package workflow

import (
	"context"
	"errors"
)

var (
	ErrInvalidTransition = errors.New("review transition not allowed")
	ErrInvalidState      = errors.New("unknown review state")
	// ErrGuardFailed means the trigger exists but its precondition, such as
	// a revision note, was not met
	ErrGuardFailed = errors.New("transition precondition not met")
)

// StateMachine holds one verdict or lifecycle value and applies triggers to it
type StateMachine interface {
	State() State

	// CanFire ignores guards
	CanFire(trigger Trigger) bool

	// Fire returns the state entered, or the unchanged state and an error
	Fire(ctx context.Context, trigger Trigger) (State, error)

	// PermittedTriggers is sorted by name
	PermittedTriggers() []Trigger
}
