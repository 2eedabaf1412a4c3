// Package subsidy computes tenure-prorated subsidies and the claimable total of a trip.
package subsidy

import (
	"math"

	"github.com/garyjia/trip-expense/internal/domain/entity"
	"github.com/shopspring/decimal"
)

const daysPerYear = 365

// Line is the subsidy outcome for one employee
type Line struct {
	Employee entity.Employee `json:"employee"`
	Ratio    float64         `json:"ratio"`
	Subsidy  float64         `json:"subsidy"`
}

// Summary is the reimbursement outcome of a whole trip
type Summary struct {
	Lines        []Line  `json:"lines"`
	TotalExpense float64 `json:"totalExpense"`
	TotalSubsidy float64 `json:"totalSubsidy"`
	TotalClaim   float64 `json:"totalClaim"`
}

// ComputeRatio returns the tenure ratio in [0,1].
//
// The full-year sentinel and a missing trip start both yield 1. A hire date
// after the trip start yields 0. A missing or unparseable hire date yields 0.
func ComputeRatio(emp entity.Employee, tripStartDate string) float64 {
	if emp.HasFullYear() || tripStartDate == "" {
		return 1
	}

	hired, err := entity.ParseDate(emp.StartDate)
	if err != nil {
		return 0
	}
	tripStart, err := entity.ParseDate(tripStartDate)
	if err != nil {
		return 1
	}

	days := tripStart.Sub(hired).Hours() / 24
	ratio := math.Min(days/daysPerYear, 1)
	return math.Max(ratio, 0)
}

// ComputeSubsidy returns min(subsidyAmount × ratio, 10000) for applying employees, else 0
func ComputeSubsidy(emp entity.Employee, info entity.TripInfo) float64 {
	if !emp.Applies() {
		return 0
	}
	ratio := ComputeRatio(emp, info.StartDate)
	return math.Min(info.SubsidyAmount*ratio, entity.MaxSubsidyPerEmployee)
}

// TotalSubsidy sums the subsidy of every employee
func TotalSubsidy(employees []entity.Employee, info entity.TripInfo) float64 {
	total := decimal.Zero
	for _, emp := range employees {
		total = total.Add(decimal.NewFromFloat(ComputeSubsidy(emp, info)))
	}
	return total.InexactFloat64()
}

// TotalExpense sums amountNTD over the expenses
func TotalExpense(expenses []*entity.Expense) float64 {
	total := decimal.Zero
	for _, exp := range expenses {
		total = total.Add(decimal.NewFromFloat(exp.AmountNTD))
	}
	return total.InexactFloat64()
}

// TotalClaim is the reimbursable amount: expenses capped by the subsidy pool
func TotalClaim(expenses []*entity.Expense, employees []entity.Employee, info entity.TripInfo) float64 {
	return math.Min(TotalExpense(expenses), TotalSubsidy(employees, info))
}

// Summarize computes per-employee lines and the trip totals in one pass
func Summarize(info entity.TripInfo, employees []entity.Employee, expenses []*entity.Expense) Summary {
	summary := Summary{Lines: make([]Line, 0, len(employees))}

	subsidyTotal := decimal.Zero
	for _, emp := range employees {
		line := Line{Employee: emp}
		if emp.Applies() {
			line.Ratio = ComputeRatio(emp, info.StartDate)
			line.Subsidy = ComputeSubsidy(emp, info)
		}
		subsidyTotal = subsidyTotal.Add(decimal.NewFromFloat(line.Subsidy))
		summary.Lines = append(summary.Lines, line)
	}

	summary.TotalSubsidy = subsidyTotal.InexactFloat64()
	summary.TotalExpense = TotalExpense(expenses)
	summary.TotalClaim = math.Min(summary.TotalExpense, summary.TotalSubsidy)
	return summary
}

// TruncateNTD drops the fractional part of an NTD amount for display
func TruncateNTD(amount float64) int64 {
	return decimal.NewFromFloat(amount).Truncate(0).IntPart()
}
