package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/trip-expense/internal/client"
	"github.com/garyjia/trip-expense/internal/infrastructure/worker"
)

func runUpload(a *app, ctx context.Context, args []string) error {
	fs := newFlagSet("upload")
	confirm := fs.Bool("confirm", false, "upload even if another submission exists under this name")
	password := fs.String("password", "", "leader password to set on the first upload")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := a.engine.Upload(ctx, client.UploadOptions{
		ConfirmOverwrite: *confirm,
		Password:         *password,
	})
	if err != nil {
		return err
	}

	switch result.Outcome {
	case client.UploadOutcomeSuccess:
		fmt.Fprintf(a.out, "Uploaded trip %s (server version %d)\n", result.TripCode, result.ServerVersion)
	case client.UploadOutcomeDuplicate:
		fmt.Fprintf(a.out, "%s already submitted %d expenses to %s at %s.\n",
			a.session.UserName(), result.Duplicate.ExpenseCount, result.TripCode,
			time.UnixMilli(result.Duplicate.LastUpdated).Format(time.RFC3339))
		fmt.Fprintln(a.out, "Run upload -confirm to overwrite them.")
	case client.UploadOutcomeConflict:
		fmt.Fprintf(a.out, "Trip %s changed on the server (version %d, %d expenses).\n",
			result.TripCode, result.ServerVersion, len(result.Server.Expenses))
		fmt.Fprintln(a.out, "Run download to take the server copy, or upload -confirm after reviewing.")
	}
	return nil
}

func runDownload(a *app, ctx context.Context, args []string) error {
	fs := newFlagSet("download")
	tripCode := fs.String("trip", "", "trip code (defaults to the current trip)")
	force := fs.Bool("force", false, "discard unsynced local changes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if a.session.Status() == client.StatusLocalChanges && !*force {
		return fmt.Errorf("local changes would be lost; rerun with -force")
	}

	snap, err := a.engine.Download(ctx, *tripCode)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Downloaded trip %s: %d employees, %d expenses (server version %d)\n",
		snap.Trip.TripCode, len(snap.Employees), len(snap.Expenses), snap.Trip.ServerLastModified)
	return nil
}

func runStatus(a *app, ctx context.Context, args []string) error {
	fs := newFlagSet("status")
	refresh := fs.Bool("refresh", false, "ask the server for lock and review state")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *refresh {
		if _, err := a.engine.RefreshStatus(ctx); err != nil {
			return err
		}
	} else if _, err := a.engine.CheckServerUpdate(ctx); err != nil {
		a.logger.Warn("Server update check failed", zap.Error(err))
	}

	fmt.Fprintf(a.out, "User:    %s (%s)\n", a.session.UserName(), a.session.Role().Kind())
	fmt.Fprintf(a.out, "Trip:    %s\n", valueOr(a.session.TripCode(), "not uploaded"))
	fmt.Fprintf(a.out, "Status:  %s\n", a.session.Status())
	if ms := a.session.LastSyncTime(); ms > 0 {
		fmt.Fprintf(a.out, "Synced:  %s\n", time.UnixMilli(ms).Format(time.RFC3339))
	}
	if trip := a.session.Trip(); trip != nil {
		fmt.Fprintf(a.out, "Server:  %s, review %s, locked %t\n", trip.TripStatus, trip.Status, trip.IsLocked)
		if trip.ReviewNote != "" {
			fmt.Fprintf(a.out, "Note:    %s\n", trip.ReviewNote)
		}
	}
	return nil
}

func runWatch(a *app, ctx context.Context, args []string) error {
	fs := newFlagSet("watch")
	interval := fs.Duration("interval", a.cfg.Client.PollInterval, "poll interval")
	pull := fs.Bool("pull", false, "download updates when there are no local changes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	poller := client.NewPoller(a.engine, client.PollerConfig{
		Interval: *interval,
		OnUpdate: func() {
			fmt.Fprintf(a.out, "%s: trip %s has a newer server version\n",
				time.Now().Format(time.RFC3339), a.session.TripCode())
			if !*pull || a.session.Status() == client.StatusLocalChanges {
				return
			}
			if _, err := a.engine.Download(ctx, ""); err != nil {
				a.logger.Error("Automatic download failed", zap.Error(err))
				return
			}
			if err := a.session.Save(a.cfg.Client.StatePath); err != nil {
				a.logger.Error("Failed to save local draft", zap.Error(err))
			}
		},
	}, a.logger)

	manager := worker.NewManager(a.logger)
	manager.Register(poller)
	if err := manager.StartAll(ctx); err != nil {
		return err
	}
	poller.Trigger()

	fmt.Fprintf(a.out, "Watching trip %s every %s, Ctrl-C to stop\n",
		valueOr(a.session.TripCode(), "(none)"), *interval)
	<-ctx.Done()
	return manager.StopAll()
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
