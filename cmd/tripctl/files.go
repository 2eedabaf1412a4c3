package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/garyjia/trip-expense/internal/client"
	"github.com/garyjia/trip-expense/internal/export"
)

func runExport(a *app, ctx context.Context, args []string) error {
	fs := newFlagSet("export")
	all := fs.Bool("all", false, "include every expense, not only those visible to this user")
	if err := fs.Parse(args); err != nil {
		return err
	}

	expenses := a.session.VisibleExpenses()
	if *all {
		expenses = a.session.Expenses()
	}
	path, err := a.exports.Write(ctx, export.Reimbursement{
		Info:      a.session.TripInfo(),
		Employees: a.session.Employees(),
		Expenses:  expenses,
		Date:      time.Now(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Wrote %s\n", path)
	return nil
}

func runExportMember(a *app, ctx context.Context, args []string) error {
	fs := newFlagSet("export-member")
	name := fs.String("name", a.session.UserName(), "member name")
	dir := fs.String("dir", a.cfg.Export.OutputDir, "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	now := time.Now()
	f, err := a.session.ExportMemberExpenses(*name, now)
	if err != nil {
		return err
	}
	path := filepath.Join(*dir, client.MemberFileName(f.MemberName, now))
	if err := writeExchange(path, f); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Wrote %d expenses to %s\n", len(f.Expenses), path)
	return nil
}

func runMerge(a *app, ctx context.Context, args []string) error {
	fs := newFlagSet("merge")
	adopt := fs.Bool("adopt", false, "add the merged expenses to the local draft")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: merge [-adopt] <member-file>...")
	}

	var files []*client.MemberFile
	for _, path := range fs.Args() {
		r, err := os.Open(path)
		if err != nil {
			return err
		}
		f, err := client.ReadMemberFile(r)
		r.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		files = append(files, f)
	}
	merged := client.MergeMemberExpenses(files)

	if *adopt {
		added, err := a.session.AdoptMerged(merged)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Added %d expenses from %d members\n", added, len(merged.Members))
		return nil
	}

	path, err := a.exports.Write(ctx, export.Reimbursement{
		Info:      a.session.TripInfo(),
		Employees: a.session.Employees(),
		Expenses:  merged.Expenses,
		Merged:    true,
		Date:      time.Now(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Merged %d members into %s\n", len(merged.Members), path)
	return nil
}

func runTripConfig(a *app, ctx context.Context, args []string) error {
	verb, rest, err := subcommand(args, "export", "import")
	if err != nil {
		return err
	}

	switch verb {
	case "export":
		fs := newFlagSet("config export")
		employees := fs.Bool("employees", true, "include employees")
		expenses := fs.Bool("expenses", false, "include expenses")
		out := fs.String("out", "trip-config.json", "output file")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if err := writeExchange(*out, a.session.ExportTripConfig(*employees, *expenses)); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Wrote %s\n", *out)

	case "import":
		fs := newFlagSet("config import")
		overwrite := fs.Bool("overwrite", false, "replace local employees and expenses")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		path, err := oneArg(fs.Args(), "config import [-overwrite] <file>")
		if err != nil {
			return err
		}
		r, err := os.Open(path)
		if err != nil {
			return err
		}
		defer r.Close()
		f, err := client.ReadTripConfigFile(r)
		if err != nil {
			return err
		}
		if err := a.session.ImportTripConfig(ctx, f, *overwrite); err != nil {
			return err
		}
		return a.showTrip()
	}
	return nil
}

func writeExchange(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	w, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := client.WriteExchangeFile(w, v); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
