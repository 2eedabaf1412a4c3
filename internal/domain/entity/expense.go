package entity

import (
	"fmt"
	"strings"
)

// Category is the accounting bucket of an expense
type Category string

const (
	CategoryPassThrough   Category = "代收轉付收據"
	CategoryAccommodation Category = "住宿費"
	CategoryTransport     Category = "交通費"
	CategoryMeal          Category = "餐費"
	CategoryOther         Category = "其他費用"
)

// Categories lists every category in reporting order
var Categories = []Category{
	CategoryPassThrough,
	CategoryAccommodation,
	CategoryTransport,
	CategoryMeal,
	CategoryOther,
}

// IsValid returns true for the fixed category set
func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Expense is a single receipt line on a trip
type Expense struct {
	ID        string `json:"id,omitempty" db:"-"`
	ExpenseID string `json:"expenseId,omitempty" db:"expense_id"`
	TripCode  string `json:"tripCode,omitempty" db:"trip_code"`

	Category     Category `json:"category" db:"category"`
	Date         string   `json:"date" db:"date"`
	Description  string   `json:"description" db:"description"`
	Currency     string   `json:"currency" db:"currency"`
	Amount       float64  `json:"amount" db:"amount"`
	ExchangeRate float64  `json:"exchangeRate" db:"exchange_rate"`
	AmountNTD    float64  `json:"amountNTD" db:"amount_ntd"`

	// Photo is an opaque handle owned by the local photo store
	Photo string `json:"photo,omitempty" db:"-"`
	// PhotoData carries base64 receipt bytes on upload only
	PhotoData   string `json:"photoData,omitempty" db:"-"`
	PhotoFileID string `json:"photoFileId,omitempty" db:"photo_file_id"`

	EmployeeName      string       `json:"employeeName" db:"employee_name"`
	BelongTo          string       `json:"belongTo,omitempty" db:"belong_to"`
	ExpenseStatus     ReviewStatus `json:"expenseStatus" db:"expense_status"`
	ExpenseReviewNote string       `json:"expenseReviewNote" db:"expense_review_note"`
	LastModifiedBy    string       `json:"lastModifiedBy,omitempty" db:"last_modified_by"`
}

// RecomputeNTD restores amountNTD = amount × exchangeRate
func (e *Expense) RecomputeNTD() {
	e.AmountNTD = e.Amount * e.ExchangeRate
}

// Owner returns the person the expense is accounted to
func (e *Expense) Owner() string {
	if e.BelongTo != "" {
		return e.BelongTo
	}
	return e.EmployeeName
}

// VisibleTo reports whether a member named name may see the expense
func (e *Expense) VisibleTo(name string) bool {
	return e.EmployeeName == name || e.BelongTo == name
}

// Validate checks the fields a member must provide
func (e *Expense) Validate() error {
	if !e.Category.IsValid() {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, e.Category)
	}
	if _, err := ParseDate(e.Date); err != nil {
		return fmt.Errorf("%w: expense date: %v", ErrValidation, err)
	}
	if e.Amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	if e.ExchangeRate <= 0 {
		return fmt.Errorf("%w: exchangeRate must be positive", ErrValidation)
	}
	if strings.TrimSpace(e.Currency) == "" {
		return fmt.Errorf("%w: currency is required", ErrValidation)
	}
	return nil
}

// Clone returns a shallow copy safe to mutate
func (e *Expense) Clone() *Expense {
	c := *e
	return &c
}
