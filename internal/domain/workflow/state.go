package workflow

import "github.com/garyjia/trip-expense/internal/domain/entity"

// State is a node of a review state machine
type State string

// Verdict states shared by trips and expenses
const (
	StatePending       State = State(entity.ReviewPending)
	StateApproved      State = State(entity.ReviewApproved)
	StateRejected      State = State(entity.ReviewRejected)
	StateNeedsRevision State = State(entity.ReviewNeedsRevision)
)

// Trip lifecycle states
const (
	StateOpen      State = State(entity.TripOpen)
	StateSubmitted State = State(entity.TripSubmitted)
	StateClosed    State = State(entity.TripClosed)
)

// VerdictStates lists the states of the review verdict axis
var VerdictStates = []State{StatePending, StateApproved, StateRejected, StateNeedsRevision}

// TripStatusStates lists the states of the trip lifecycle axis
var TripStatusStates = []State{StateOpen, StateSubmitted, StateClosed}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}
