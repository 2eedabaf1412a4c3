package entity

import (
	"fmt"
	"strings"
)

// Trip defaults applied when a draft omits them
const (
	DefaultSubsidyAmount = 10000
	DefaultPaymentMethod = "統一匯款"
	DefaultSubsidyMethod = "實支實付"

	// MaxSubsidyPerEmployee caps any single employee's subsidy
	MaxSubsidyPerEmployee = 10000
)

// TripStatus is the coarse lifecycle flag of a trip
type TripStatus string

const (
	TripOpen      TripStatus = "Open"
	TripSubmitted TripStatus = "Submitted"
	TripClosed    TripStatus = "Closed"
)

// IsValid returns true for the three known trip statuses
func (s TripStatus) IsValid() bool {
	switch s {
	case TripOpen, TripSubmitted, TripClosed:
		return true
	}
	return false
}

// ReviewStatus is a review verdict, used for both trips and expenses
type ReviewStatus string

const (
	ReviewPending       ReviewStatus = "pending"
	ReviewApproved      ReviewStatus = "approved"
	ReviewRejected      ReviewStatus = "rejected"
	ReviewNeedsRevision ReviewStatus = "needs_revision"
)

// IsValid returns true for known verdicts
func (s ReviewStatus) IsValid() bool {
	switch s {
	case ReviewPending, ReviewApproved, ReviewRejected, ReviewNeedsRevision:
		return true
	}
	return false
}

// IsAction returns true if the verdict can be requested by a reviewer.
// Pending is only ever an initial state.
func (s ReviewStatus) IsAction() bool {
	return s.IsValid() && s != ReviewPending
}

// TripInfo holds the editable header of a trip
type TripInfo struct {
	Location      string  `json:"location" db:"location"`
	StartDate     string  `json:"startDate" db:"start_date"`
	EndDate       string  `json:"endDate" db:"end_date"`
	SubsidyAmount float64 `json:"subsidyAmount" db:"subsidy_amount"`
	PaymentMethod string  `json:"paymentMethod" db:"payment_method"`
	SubsidyMethod string  `json:"subsidyMethod" db:"subsidy_method"`
}

// ApplyDefaults fills empty fields with the standard trip defaults
func (i *TripInfo) ApplyDefaults() {
	if i.SubsidyAmount == 0 {
		i.SubsidyAmount = DefaultSubsidyAmount
	}
	if i.PaymentMethod == "" {
		i.PaymentMethod = DefaultPaymentMethod
	}
	if i.SubsidyMethod == "" {
		i.SubsidyMethod = DefaultSubsidyMethod
	}
}

// Validate checks dates and the subsidy amount
func (i TripInfo) Validate() error {
	if i.StartDate != "" {
		if _, err := ParseDate(i.StartDate); err != nil {
			return fmt.Errorf("%w: startDate: %v", ErrValidation, err)
		}
	}
	if i.EndDate != "" {
		if _, err := ParseDate(i.EndDate); err != nil {
			return fmt.Errorf("%w: endDate: %v", ErrValidation, err)
		}
	}
	if i.StartDate != "" && i.EndDate != "" && i.EndDate < i.StartDate {
		return fmt.Errorf("%w: endDate %s before startDate %s", ErrValidation, i.EndDate, i.StartDate)
	}
	if i.SubsidyAmount < 0 {
		return fmt.Errorf("%w: subsidyAmount must not be negative", ErrValidation)
	}
	return nil
}

// UnsetLocation stands in for an empty location in a trip id
const UnsetLocation = "未設定"

// ID returns the offline identity of a trip used to match exported files
func (i TripInfo) ID() string {
	location := i.Location
	if location == "" {
		location = UnsetLocation
	}
	return strings.Join([]string{location, i.StartDate, i.EndDate}, "_")
}

// Trip is the server-side record of a submitted trip
type Trip struct {
	TripInfo

	TripCode      string `json:"tripCode" db:"trip_code"`
	SubmittedBy   string `json:"submittedBy" db:"submitted_by"`
	SubmittedDate string `json:"submittedDate" db:"submitted_date"`
	LeaderName    string `json:"leaderName,omitempty" db:"leader_name"`

	// PasswordHash is never serialized
	PasswordHash string `json:"-" db:"password_hash"`

	TripStatus TripStatus   `json:"tripStatus" db:"trip_status"`
	Status     ReviewStatus `json:"status" db:"status"`
	ReviewNote string       `json:"reviewNote" db:"review_note"`
	ReviewDate string       `json:"reviewDate" db:"review_date"`
	IsLocked   bool         `json:"isLocked" db:"is_locked"`

	// ServerLastModified is the server clock in unix milliseconds at the last write
	ServerLastModified int64 `json:"serverLastModified" db:"server_last_modified"`
}

// IsReadOnlyForMembers reports whether member writes must be refused
func (t *Trip) IsReadOnlyForMembers() bool {
	return t.IsLocked || t.TripStatus == TripClosed
}
