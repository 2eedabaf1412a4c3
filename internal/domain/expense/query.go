package expense

import (
	"sort"

	"github.com/garyjia/trip-expense/internal/domain/entity"
)

// Criteria filters expenses; empty fields match everything
type Criteria struct {
	Member   string
	Category entity.Category
	Status   entity.ReviewStatus
}

// SortField selects the sort key
type SortField string

const (
	SortByDate   SortField = "date"
	SortByAmount SortField = "amount"
	SortByName   SortField = "name"
)

// SortDirection selects ascending or descending order
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Counts are review aggregates derived from a set of expenses
type Counts struct {
	Total         int `json:"total"`
	Pending       int `json:"pending"`
	Approved      int `json:"approved"`
	Rejected      int `json:"rejected"`
	NeedsRevision int `json:"needsRevision"`
}

// FilterAndSort returns a new slice with the matching expenses in the
// requested order. The input is not modified. An unknown field keeps input order.
func FilterAndSort(expenses []*entity.Expense, criteria Criteria, field SortField, dir SortDirection) []*entity.Expense {
	out := make([]*entity.Expense, 0, len(expenses))
	for _, exp := range expenses {
		if criteria.matches(exp) {
			out = append(out, exp)
		}
	}

	less := lessFunc(field)
	if less == nil {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		if dir == SortDesc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func (c Criteria) matches(exp *entity.Expense) bool {
	if c.Member != "" && !exp.VisibleTo(c.Member) {
		return false
	}
	if c.Category != "" && exp.Category != c.Category {
		return false
	}
	if c.Status != "" && statusOf(exp) != c.Status {
		return false
	}
	return true
}

func lessFunc(field SortField) func(a, b *entity.Expense) bool {
	switch field {
	case SortByDate:
		// YYYY-MM-DD sorts correctly as a string
		return func(a, b *entity.Expense) bool { return a.Date < b.Date }
	case SortByAmount:
		return func(a, b *entity.Expense) bool { return a.AmountNTD < b.AmountNTD }
	case SortByName:
		return func(a, b *entity.Expense) bool { return a.EmployeeName < b.EmployeeName }
	}
	return nil
}

// DeriveCounts aggregates review verdicts; an empty verdict counts as pending
func DeriveCounts(expenses []*entity.Expense) Counts {
	counts := Counts{Total: len(expenses)}
	for _, exp := range expenses {
		switch statusOf(exp) {
		case entity.ReviewApproved:
			counts.Approved++
		case entity.ReviewRejected:
			counts.Rejected++
		case entity.ReviewNeedsRevision:
			counts.NeedsRevision++
		default:
			counts.Pending++
		}
	}
	return counts
}

func statusOf(exp *entity.Expense) entity.ReviewStatus {
	if exp.ExpenseStatus == "" {
		return entity.ReviewPending
	}
	return exp.ExpenseStatus
}
