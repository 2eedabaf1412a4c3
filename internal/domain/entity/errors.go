package entity

import "errors"

var (
	// ErrValidation is returned for malformed input, before any write happens
	ErrValidation = errors.New("validation failed")

	// ErrTripLocked is returned when a write hits a locked or closed trip
	ErrTripLocked = errors.New("trip is locked")

	// ErrVersionConflict is returned when the upload base version is stale
	ErrVersionConflict = errors.New("version conflict")

	// ErrAuth is returned for missing, invalid or expired credentials
	ErrAuth = errors.New("authentication failed")

	// ErrForbidden is returned when a role lacks a capability
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a trip or expense does not exist
	ErrNotFound = errors.New("not found")

	// ErrUnknownAction is returned when the server does not know an action
	ErrUnknownAction = errors.New("unknown action")

	// ErrRevisionNoteRequired is returned when needs_revision has no note
	ErrRevisionNoteRequired = errors.New("revision note is required")

	// ErrNothingToReview is returned by bulk approve when nothing is pending
	ErrNothingToReview = errors.New("nothing to review")
)
