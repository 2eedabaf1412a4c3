// Command tripctl is the trip expense sync client. It keeps a local draft,
// uploads it to the server, and offers the reviewer and export workflows.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"go.uber.org/zap"

	"github.com/garyjia/trip-expense/internal/client"
	"github.com/garyjia/trip-expense/internal/config"
	"github.com/garyjia/trip-expense/internal/export"
	"github.com/garyjia/trip-expense/internal/infrastructure/storage"
	"github.com/garyjia/trip-expense/pkg/utils"
)

// app wires one tripctl invocation
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	photos  *storage.LocalPhotoStorage
	session *client.Session
	engine  *client.SyncEngine
	exports *export.Generator
	out     io.Writer
}

type command struct {
	summary string
	run     func(a *app, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"trip":          {"show or edit the trip header", runTrip},
	"employee":      {"add, remove or list trip employees", runEmployee},
	"expense":       {"add, edit, remove or list expenses", runExpense},
	"upload":        {"upload the local draft", runUpload},
	"download":      {"replace the local draft with the server copy", runDownload},
	"status":        {"show the sync status", runStatus},
	"watch":         {"poll the server for updates until interrupted", runWatch},
	"review":        {"reviewer and trip leader actions", runReview},
	"export":        {"write the reimbursement workbook", runExport},
	"export-member": {"write this member's expenses to a JSON file", runExportMember},
	"merge":         {"merge member JSON files into the draft or a workbook", runMerge},
	"config":        {"export or import a trip configuration file", runTripConfig},
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	userName := flag.String("user", "", "member name of this device (overrides client.user_name)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *userName != "" {
		cfg.Client.UserName = *userName
	}

	// Command output owns stdout
	outputPath := cfg.Logger.OutputPath
	if outputPath == "" || outputPath == "stdout" {
		outputPath = "stderr"
	}
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: outputPath,
		Format:     cfg.Logger.Format,
		Component:  "tripctl",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	a, err := newApp(cfg, logger, os.Stdout)
	if err != nil {
		logger.Fatal("Failed to open local draft", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := cmd.run(a, ctx, flag.Args()[1:])
	if err := a.session.Save(cfg.Client.StatePath); err != nil {
		logger.Error("Failed to save local draft", zap.Error(err))
	}
	if runErr != nil {
		if errors.Is(runErr, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "tripctl %s: %v\n", flag.Arg(0), runErr)
		os.Exit(1)
	}
}

func newApp(cfg *config.Config, logger *zap.Logger, out io.Writer) (*app, error) {
	photos := storage.NewLocalPhotoStorage(cfg.Client.PhotoDir, logger)
	session, err := client.LoadSession(cfg.Client.StatePath, cfg.Client.UserName, photos, logger)
	if err != nil {
		return nil, err
	}

	api := client.NewAPIClient(client.APIConfig{
		URL:     cfg.Client.ServerURL,
		Timeout: cfg.Client.Timeout,
	}, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		photos:  photos,
		session: session,
		engine:  client.NewSyncEngine(api, session, logger),
		exports: export.NewGenerator(export.Config{
			OutputDir:   cfg.Export.OutputDir,
			CompanyName: cfg.Export.CompanyName,
			FontName:    cfg.Export.FontName,
		}, logger),
		out: out,
	}, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: tripctl [-config path] [-user name] <command> [args]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(os.Stderr, "\nGlobal flags:\n")
	flag.PrintDefaults()
}

// subcommand splits "<verb> args..." and reports a missing or unknown verb
func subcommand(args []string, verbs ...string) (string, []string, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("expected one of %v", verbs)
	}
	for _, v := range verbs {
		if args[0] == v {
			return v, args[1:], nil
		}
	}
	return "", nil, fmt.Errorf("unknown subcommand %q, expected one of %v", args[0], verbs)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}
