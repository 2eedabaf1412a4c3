package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/garyjia/trip-expense/internal/domain/entity"
	"github.com/garyjia/trip-expense/internal/domain/subsidy"
	"github.com/garyjia/trip-expense/pkg/utils"
)

// photoScope groups local photos that have no trip code yet
const photoScope = "draft"

func runTrip(a *app, ctx context.Context, args []string) error {
	verb, rest, err := subcommand(args, "show", "set")
	if err != nil {
		return err
	}
	if verb == "show" {
		return a.showTrip()
	}

	info := a.session.TripInfo()
	fs := newFlagSet("trip set")
	fs.StringVar(&info.Location, "location", info.Location, "trip location")
	fs.StringVar(&info.StartDate, "start", info.StartDate, "start date YYYY-MM-DD")
	fs.StringVar(&info.EndDate, "end", info.EndDate, "end date YYYY-MM-DD")
	fs.Float64Var(&info.SubsidyAmount, "subsidy", info.SubsidyAmount, "subsidy amount per employee")
	fs.StringVar(&info.PaymentMethod, "payment", info.PaymentMethod, "payment method")
	fs.StringVar(&info.SubsidyMethod, "method", info.SubsidyMethod, "subsidy method")
	leader := fs.String("leader", "", "trip leader name")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	info.Location = utils.SanitizeString(info.Location)
	if err := a.session.SetTripInfo(info); err != nil {
		return err
	}
	if *leader != "" {
		a.session.SetLeaderName(utils.SanitizeString(*leader))
	}
	return a.showTrip()
}

func (a *app) showTrip() error {
	info := a.session.TripInfo()
	employees := a.session.Employees()
	summary := subsidy.Summarize(info, employees, a.session.VisibleExpenses())

	fmt.Fprintf(a.out, "Trip:      %s\n", info.ID())
	if code := a.session.TripCode(); code != "" {
		fmt.Fprintf(a.out, "Code:      %s\n", code)
	}
	fmt.Fprintf(a.out, "Subsidy:   %.0f (%s, %s)\n", info.SubsidyAmount, info.SubsidyMethod, info.PaymentMethod)
	fmt.Fprintf(a.out, "Expenses:  %d NTD\n", subsidy.TruncateNTD(summary.TotalExpense))
	fmt.Fprintf(a.out, "Subsidies: %d NTD\n", subsidy.TruncateNTD(summary.TotalSubsidy))
	fmt.Fprintf(a.out, "Claim:     %d NTD\n", subsidy.TruncateNTD(summary.TotalClaim))
	fmt.Fprintf(a.out, "Status:    %s\n", a.session.Status())
	return nil
}

func runEmployee(a *app, ctx context.Context, args []string) error {
	verb, rest, err := subcommand(args, "list", "add", "rm")
	if err != nil {
		return err
	}

	employees := a.session.Employees()
	switch verb {
	case "add":
		fs := newFlagSet("employee add")
		name := fs.String("name", "", "employee name")
		apply := fs.String("apply", "y", "requests a subsidy (y/n)")
		start := fs.String("start", entity.FullYearSentinel, "hire date YYYY-MM-DD or "+entity.FullYearSentinel)
		dept := fs.String("dept", "", "department")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		answer, err := utils.NormalizeApply(*apply)
		if err != nil {
			return err
		}
		emp := entity.Employee{
			Name:       utils.SanitizeString(*name),
			Apply:      answer,
			StartDate:  utils.SanitizeString(*start),
			Department: utils.SanitizeString(*dept),
		}
		replaced := false
		for i := range employees {
			if employees[i].Name == emp.Name {
				employees[i] = emp
				replaced = true
			}
		}
		if !replaced {
			employees = append(employees, emp)
		}
		if err := a.session.SetEmployees(employees); err != nil {
			return err
		}

	case "rm":
		if len(rest) != 1 {
			return fmt.Errorf("usage: employee rm <name>")
		}
		kept := employees[:0]
		for _, emp := range employees {
			if emp.Name != rest[0] {
				kept = append(kept, emp)
			}
		}
		if len(kept) == len(employees) {
			return fmt.Errorf("%w: employee %s", entity.ErrNotFound, rest[0])
		}
		if err := a.session.SetEmployees(kept); err != nil {
			return err
		}
	}

	summary := subsidy.Summarize(a.session.TripInfo(), a.session.Employees(), nil)
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tAPPLY\tSTART\tRATIO\tSUBSIDY")
	for _, line := range summary.Lines {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%d\n", line.Employee.Name, line.Employee.Apply,
			line.Employee.StartDate, line.Ratio, subsidy.TruncateNTD(line.Subsidy))
	}
	return tw.Flush()
}

// expenseFlags binds the editable expense fields and reports which were set
type expenseFlags struct {
	fs       *flag.FlagSet
	category string
	date     string
	desc     string
	currency string
	amount   float64
	rate     float64
	photo    string
	belongTo string
	owner    string
}

func newExpenseFlags(name string) *expenseFlags {
	f := &expenseFlags{fs: newFlagSet(name)}
	f.fs.StringVar(&f.category, "category", string(entity.CategoryOther), "expense category")
	f.fs.StringVar(&f.date, "date", "", "receipt date YYYY-MM-DD")
	f.fs.StringVar(&f.desc, "desc", "", "description")
	f.fs.StringVar(&f.currency, "currency", "TWD", "currency code")
	f.fs.Float64Var(&f.amount, "amount", 0, "amount in currency")
	f.fs.Float64Var(&f.rate, "rate", 1, "exchange rate to NTD")
	f.fs.StringVar(&f.photo, "photo", "", "receipt photo file")
	f.fs.StringVar(&f.belongTo, "belong", "", "person the expense is accounted to")
	f.fs.StringVar(&f.owner, "owner", "", "member who paid (defaults to this device's user)")
	return f
}

func (f *expenseFlags) set() map[string]bool {
	seen := map[string]bool{}
	f.fs.Visit(func(fl *flag.Flag) { seen[fl.Name] = true })
	return seen
}

// storePhoto copies a receipt file into the local photo store
func (a *app) storePhoto(ctx context.Context, path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read photo: %w", err)
	}
	scope := a.session.TripCode()
	if scope == "" {
		scope = photoScope
	}
	return a.photos.Store(ctx, scope, content)
}

func runExpense(a *app, ctx context.Context, args []string) error {
	verb, rest, err := subcommand(args, "list", "add", "edit", "rm")
	if err != nil {
		return err
	}

	switch verb {
	case "add":
		f := newExpenseFlags("expense add")
		if err := f.fs.Parse(rest); err != nil {
			return err
		}
		exp := entity.Expense{
			Category:     entity.Category(f.category),
			Date:         f.date,
			Description:  utils.SanitizeString(f.desc),
			Currency:     f.currency,
			Amount:       f.amount,
			ExchangeRate: f.rate,
			EmployeeName: utils.SanitizeString(f.owner),
			BelongTo:     utils.SanitizeString(f.belongTo),
		}
		if f.photo != "" {
			if exp.Photo, err = a.storePhoto(ctx, f.photo); err != nil {
				return err
			}
		}
		added, err := a.session.AddExpense(exp)
		if err != nil {
			if exp.Photo != "" {
				_ = a.photos.Release(ctx, exp.Photo)
			}
			return err
		}
		fmt.Fprintf(a.out, "Added %s (%.2f NTD)\n", added.ID, added.AmountNTD)

	case "edit":
		if len(rest) == 0 {
			return fmt.Errorf("usage: expense edit <id> [flags]")
		}
		id := rest[0]
		f := newExpenseFlags("expense edit")
		if err := f.fs.Parse(rest[1:]); err != nil {
			return err
		}
		patch := f.patch()
		if f.set()["photo"] {
			handle, err := a.storePhoto(ctx, f.photo)
			if err != nil {
				return err
			}
			patch.Photo = &handle
		}
		updated, err := a.session.UpdateExpense(id, patch)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Updated %s (%.2f NTD)\n", updated.ID, updated.AmountNTD)

	case "rm":
		if len(rest) != 1 {
			return fmt.Errorf("usage: expense rm <id>")
		}
		if err := a.session.RemoveExpense(ctx, rest[0]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Removed %s\n", rest[0])
		return nil
	}

	return a.listExpenses()
}

func (a *app) listExpenses() error {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tDATE\tDESCRIPTION\tAMOUNT\tNTD\tOWNER\tSTATUS")
	for _, exp := range a.session.VisibleExpenses() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f %s\t%d\t%s\t%s\n",
			exp.ID, exp.Category, exp.Date, exp.Description, exp.Amount, exp.Currency,
			subsidy.TruncateNTD(exp.AmountNTD), exp.Owner(), exp.ExpenseStatus)
	}
	return tw.Flush()
}
