package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

// Reviewer verdict triggers
const (
	TriggerApprove         Trigger = "APPROVE"
	TriggerReject          Trigger = "REJECT"
	TriggerRequestRevision Trigger = "REQUEST_REVISION"
)

// TriggerResubmit is the submitter editing an expense sent back for revision
const TriggerResubmit Trigger = "RESUBMIT"

// Trip lifecycle triggers
const (
	TriggerReopen Trigger = "REOPEN"
	TriggerSubmit Trigger = "SUBMIT"
	TriggerClose  Trigger = "CLOSE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
