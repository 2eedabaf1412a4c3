package entity

import (
	"fmt"
	"strings"
)

// FullYearSentinel marks an employee with at least one year of tenure
const FullYearSentinel = "滿一年"

// Employee is a participant of a trip who may claim a subsidy
type Employee struct {
	Name       string `json:"name" db:"name"`
	Apply      string `json:"apply" db:"apply"`
	StartDate  string `json:"startDate" db:"start_date"`
	Department string `json:"department,omitempty" db:"department"`
}

// Applies reports whether the employee requested a subsidy
func (e Employee) Applies() bool {
	switch strings.ToLower(strings.TrimSpace(e.Apply)) {
	case "y", "yes":
		return true
	}
	return false
}

// HasFullYear reports whether the start date holds the full-year sentinel
func (e Employee) HasFullYear() bool {
	return strings.TrimSpace(e.StartDate) == FullYearSentinel
}

// Validate checks the name and start date shape
func (e Employee) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: employee name is required", ErrValidation)
	}
	if e.StartDate == "" || e.HasFullYear() {
		return nil
	}
	if _, err := ParseDate(e.StartDate); err != nil {
		return fmt.Errorf("%w: employee %s startDate: %v", ErrValidation, e.Name, err)
	}
	return nil
}
