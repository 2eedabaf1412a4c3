package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/garyjia/trip-expense/internal/domain/entity"
	"github.com/garyjia/trip-expense/internal/domain/expense"
	"github.com/garyjia/trip-expense/internal/domain/subsidy"
	"github.com/garyjia/trip-expense/pkg/utils"
)

func runReview(a *app, ctx context.Context, args []string) error {
	verb, rest, err := subcommand(args,
		"login", "leader", "list", "detail", "approve-all", "expense", "trip",
		"edit", "lock", "unlock", "set-status", "photo", "members")
	if err != nil {
		return err
	}

	switch verb {
	case "login":
		fs := newFlagSet("review login")
		password := fs.String("password", os.Getenv("TRIP_ADMIN_PASSWORD"), "admin password")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if err := a.engine.LoginAuditor(ctx, *password); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Logged in as auditor")

	case "leader":
		fs := newFlagSet("review leader")
		tripCode := fs.String("trip", a.session.TripCode(), "trip code")
		password := fs.String("password", "", "leader password")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if err := a.engine.LoginLeader(ctx, *tripCode, *password); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Logged in as leader of %s\n", *tripCode)

	case "list":
		fs := newFlagSet("review list")
		status := fs.String("status", "", "review status filter (pending, approved, rejected, needs_revision)")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		trips, err := a.engine.ListTrips(ctx, entity.ReviewStatus(*status))
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CODE\tTRIP\tSUBMITTED BY\tTRIP STATUS\tREVIEW\tLOCKED")
		for _, t := range trips {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n",
				t.TripCode, t.ID(), t.SubmittedBy, t.TripStatus, t.Status, t.IsLocked)
		}
		return tw.Flush()

	case "detail":
		tripCode, err := oneArg(rest, "review detail <trip>")
		if err != nil {
			return err
		}
		return a.showDetail(ctx, tripCode)

	case "approve-all":
		tripCode, err := oneArg(rest, "review approve-all <trip>")
		if err != nil {
			return err
		}
		result, err := a.engine.BulkApprove(ctx, tripCode)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Approved %d expenses", result.Approved)
		if result.Fallback {
			fmt.Fprint(a.out, " one by one")
		}
		fmt.Fprintln(a.out)
		for _, f := range result.Failed {
			fmt.Fprintf(a.out, "  %s failed: %s %s\n", f.ExpenseID, f.ErrorCode, f.Error)
		}

	case "expense":
		fs := newFlagSet("review expense")
		id := fs.String("id", "", "server expense id")
		action := fs.String("action", string(entity.ReviewApproved), "approved, rejected or needs_revision")
		note := fs.String("note", "", "review note, required for needs_revision")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		exp, err := a.engine.ReviewExpense(ctx, *id, entity.ReviewStatus(*action), utils.SanitizeString(*note))
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Expense %s is %s\n", exp.ExpenseID, exp.ExpenseStatus)

	case "trip":
		fs := newFlagSet("review trip")
		tripCode := fs.String("trip", "", "trip code")
		action := fs.String("action", string(entity.ReviewApproved), "approved, rejected or needs_revision")
		note := fs.String("note", "", "review note")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		trip, err := a.engine.ReviewTrip(ctx, *tripCode, entity.ReviewStatus(*action), utils.SanitizeString(*note))
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Trip %s is %s\n", trip.TripCode, trip.Status)

	case "edit":
		if len(rest) == 0 {
			return fmt.Errorf("usage: review edit <expense-id> [flags]")
		}
		f := newExpenseFlags("review edit")
		if err := f.fs.Parse(rest[1:]); err != nil {
			return err
		}
		patch := f.patch()
		exp, err := a.engine.EditExpense(ctx, rest[0], patch)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Expense %s now %.2f NTD\n", exp.ExpenseID, exp.AmountNTD)

	case "lock", "unlock":
		tripCode, err := oneArg(rest, "review "+verb+" <trip>")
		if err != nil {
			return err
		}
		trip, err := a.engine.SetLock(ctx, tripCode, verb == "lock")
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Trip %s locked: %t\n", trip.TripCode, trip.IsLocked)

	case "set-status":
		if len(rest) != 2 {
			return fmt.Errorf("usage: review set-status <trip> <Open|Submitted|Closed>")
		}
		trip, err := a.engine.SetTripStatus(ctx, rest[0], entity.TripStatus(rest[1]))
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Trip %s is %s\n", trip.TripCode, trip.TripStatus)

	case "photo":
		fs := newFlagSet("review photo")
		out := fs.String("out", "", "output file (defaults to <file-id>)")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		fileID, err := oneArg(fs.Args(), "review photo [-out file] <file-id>")
		if err != nil {
			return err
		}
		content, mime, err := a.engine.Photo(ctx, fileID)
		if err != nil {
			return err
		}
		path := valueOr(*out, fileID)
		if err := os.WriteFile(path, content, 0644); err != nil {
			return fmt.Errorf("failed to write photo: %w", err)
		}
		fmt.Fprintf(a.out, "Saved %s (%s, %d bytes)\n", path, mime, len(content))

	case "members":
		tripCode, err := oneArg(rest, "review members <trip>")
		if err != nil {
			return err
		}
		members, err := a.engine.Members(ctx, tripCode)
		if err != nil {
			return err
		}
		for _, m := range members {
			fmt.Fprintln(a.out, m)
		}
	}
	return nil
}

func (a *app) showDetail(ctx context.Context, tripCode string) error {
	detail, err := a.engine.TripDetail(ctx, tripCode)
	if err != nil {
		return err
	}
	trip := detail.Trip
	summary := subsidy.Summarize(trip.TripInfo, detail.Employees, detail.Expenses)

	fmt.Fprintf(a.out, "Trip %s (%s) by %s\n", trip.TripCode, trip.ID(), trip.SubmittedBy)
	fmt.Fprintf(a.out, "Status %s, review %s, locked %t\n", trip.TripStatus, trip.Status, trip.IsLocked)
	fmt.Fprintf(a.out, "Expenses %d: %d pending, %d approved, %d rejected, %d needs revision\n",
		detail.Counts.Total, detail.Counts.Pending, detail.Counts.Approved,
		detail.Counts.Rejected, detail.Counts.NeedsRevision)
	fmt.Fprintf(a.out, "Claim %d of %d NTD\n",
		subsidy.TruncateNTD(summary.TotalClaim), subsidy.TruncateNTD(summary.TotalExpense))

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tDATE\tDESCRIPTION\tNTD\tOWNER\tSTATUS\tPHOTO")
	for _, exp := range detail.Expenses {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			exp.ExpenseID, exp.Category, exp.Date, exp.Description,
			subsidy.TruncateNTD(exp.AmountNTD), exp.Owner(), exp.ExpenseStatus, exp.PhotoFileID)
	}
	return tw.Flush()
}

// patch converts the flags that were set into a reviewer correction
func (f *expenseFlags) patch() expense.Patch {
	seen := f.set()
	var p expense.Patch
	if seen["category"] {
		c := entity.Category(f.category)
		p.Category = &c
	}
	if seen["date"] {
		p.Date = &f.date
	}
	if seen["desc"] {
		d := utils.SanitizeString(f.desc)
		p.Description = &d
	}
	if seen["currency"] {
		p.Currency = &f.currency
	}
	if seen["amount"] {
		p.Amount = &f.amount
	}
	if seen["rate"] {
		p.ExchangeRate = &f.rate
	}
	if seen["belong"] {
		b := utils.SanitizeString(f.belongTo)
		p.BelongTo = &b
	}
	return p
}

func oneArg(args []string, usage string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: %s", usage)
	}
	return args[0], nil
}
