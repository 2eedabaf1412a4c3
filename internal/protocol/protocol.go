// Package protocol defines the single-endpoint JSON protocol shared by the
// server and the client: action names, the request and response envelopes,
// and the mapping between error codes and domain errors.
package protocol

import (
	"github.com/garyjia/trip-expense/internal/domain/entity"
	"github.com/garyjia/trip-expense/internal/domain/expense"
	"github.com/garyjia/trip-expense/internal/domain/review"
)

// Action discriminates requests on the single endpoint
type Action string

// Member actions, callable without a token
const (
	ActionSubmitTrip         Action = "submitTrip"
	ActionGetTripStatus      Action = "getTripStatus"
	ActionDownloadTrip       Action = "downloadTrip"
	ActionCheckServerVersion Action = "checkServerVersion"
	ActionCheckDuplicate     Action = "checkDuplicate"
	ActionGetMembers         Action = "getMembers"
)

// Login actions
const (
	ActionAdminLogin  Action = "adminLogin"
	ActionLoginLeader Action = "loginLeader"
)

// Privileged actions, each requiring a bearer token
const (
	ActionSubmitTripStatus         Action = "submitTripStatus"
	ActionAdminGetTrips            Action = "adminGetTrips"
	ActionAdminGetTripDetail       Action = "adminGetTripDetail"
	ActionAdminReview              Action = "adminReview"
	ActionAdminReviewExpense       Action = "adminReviewExpense"
	ActionAdminBatchReviewExpenses Action = "adminBatchReviewExpenses"
	ActionAdminEditExpense         Action = "adminEditExpense"
	ActionAdminLockTrip            Action = "adminLockTrip"
	ActionAdminUnlockTrip          Action = "adminUnlockTrip"
	ActionAdminGetPhoto            Action = "adminGetPhoto"
)

// Request is the union of every action's fields
type Request struct {
	Action Action `json:"action"`
	Token  string `json:"token,omitempty"`

	TripCode string `json:"tripCode,omitempty"`

	// submitTrip
	TripInfo        *entity.TripInfo   `json:"tripInfo,omitempty"`
	// Employees is omitted to keep the stored list; an empty list clears it
	Employees       *[]entity.Employee `json:"employees,omitempty"`
	Expenses        []*entity.Expense  `json:"expenses,omitempty"`
	SubmittedBy     string             `json:"submittedBy,omitempty"`
	LeaderName      string             `json:"leaderName,omitempty"`
	BaseVersion     int64              `json:"baseVersion,omitempty"`
	ClientTimestamp int64              `json:"clientTimestamp,omitempty"`

	// logins and first submit
	Password string `json:"password,omitempty"`

	// member views
	MemberName string `json:"memberName,omitempty"`

	// reviewer actions
	TripStatus   entity.TripStatus        `json:"tripStatus,omitempty"`
	ReviewAction entity.ReviewStatus      `json:"reviewAction,omitempty"`
	Note         string                   `json:"note,omitempty"`
	ExpenseID    string                   `json:"expenseId,omitempty"`
	Reviews      []review.ExpenseDecision `json:"reviews,omitempty"`
	Changes      *expense.Patch           `json:"changes,omitempty"`
	FileID       string                   `json:"fileId,omitempty"`
	StatusFilter entity.ReviewStatus      `json:"statusFilter,omitempty"`
}

// Duplicate reports existing data under a submitter name
type Duplicate struct {
	Exists       bool  `json:"exists"`
	ExpenseCount int   `json:"expenseCount"`
	LastUpdated  int64 `json:"lastUpdated"`
}

// ReviewResult is the outcome of one entry of a batch review
type ReviewResult struct {
	ExpenseID string    `json:"expenseId"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	ErrorCode ErrorCode `json:"errorCode,omitempty"`
}

// Response is the union of every action's reply
type Response struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	ErrorCode ErrorCode `json:"errorCode,omitempty"`
	AuthError bool      `json:"authError,omitempty"`

	TripCode           string `json:"tripCode,omitempty"`
	ServerLastModified int64  `json:"serverLastModified,omitempty"`

	Token string `json:"token,omitempty"`
	Role  string `json:"role,omitempty"`

	Trip      *entity.Trip      `json:"trip,omitempty"`
	Trips     []*entity.Trip    `json:"trips,omitempty"`
	Employees []entity.Employee `json:"employees,omitempty"`
	Expenses  []*entity.Expense `json:"expenses,omitempty"`
	Expense   *entity.Expense   `json:"expense,omitempty"`
	Counts    *expense.Counts   `json:"counts,omitempty"`
	Members   []string          `json:"members,omitempty"`

	Duplicate *Duplicate     `json:"duplicate,omitempty"`
	Results   []ReviewResult `json:"results,omitempty"`

	// Photo is base64 text; MimeType describes the decoded bytes
	Photo    string `json:"photo,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}
