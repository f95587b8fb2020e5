package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"materiality/internal/core/app"
	"materiality/internal/core/config"
	"materiality/internal/shared/observability"
	"materiality/internal/ui/report"
)

var (
	configPath = flag.String("config", "./materiality.toml", "Path to config file")
	entryFlag  = flag.String("entry", "", "Entry Python file (defaults to project.entry)")
	maxSteps   = flag.Int("max-steps", -1, "Stop the crawl after this many files (0 = unlimited)")
	treePath   = flag.String("tree", "", "Write the reachability tree to this file")
	authorsTSV = flag.String("authors", "", "Write per-author stats as TSV to this file")
	listRuns   = flag.Bool("runs", false, "List recorded runs and exit")
	since      = flag.Duration("since", 0, "With -runs, only list runs newer than this")
	printTree  = flag.Bool("print-tree", false, "Print the reachability tree to stdout")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	version    = flag.Bool("version", false, "Print version and exit")
)

const VERSION = "0.1.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("materiality v%s\n", VERSION)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *maxSteps >= 0 {
		cfg.Crawl.MaxSteps = *maxSteps
	}
	if *treePath != "" {
		cfg.Output.Tree = *treePath
	}
	if *authorsTSV != "" {
		cfg.Output.AuthorsTSV = *authorsTSV
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdown, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Endpoint: cfg.Telemetry.OTLPEndpoint,
		Insecure: cfg.Telemetry.Insecure,
		Version:  VERSION,
	})
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	a, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := run(ctx, a); err != nil {
		slog.Error("run failed", "error", err)
		a.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App) error {
	if *listRuns {
		var from time.Time
		if *since > 0 {
			from = time.Now().Add(-*since)
		}
		runs, err := a.Runs(ctx, from, 0)
		if err != nil {
			return err
		}
		out, err := report.RenderRunTSV(runs)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	entry := *entryFlag
	if entry == "" && flag.NArg() > 0 {
		entry = flag.Arg(0)
	}
	res, err := a.Run(ctx, entry)
	if err != nil {
		return err
	}
	if *printTree {
		if err := report.WriteTree(os.Stdout, res.Tree); err != nil {
			return err
		}
	}
	if a.Config.Output.ShowSummary() {
		fmt.Println(report.RenderSummary(res.Entry, res.Summary))
	}
	for path, ferr := range res.Failures {
		slog.Warn("module not analysed", "path", path, "error", ferr)
	}
	return nil
}

// loadConfig falls back to defaults when the default config file is absent.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == "./materiality.toml" && os.IsNotExist(err) {
		slog.Debug("no config file, using defaults", "path", path)
		return config.DefaultConfig(), nil
	}
	return nil, err
}
