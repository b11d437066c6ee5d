package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/aluiziolira/go-scrape-customers/app"
	"github.com/aluiziolira/go-scrape-customers/config"
	"github.com/aluiziolira/go-scrape-customers/planner"
	"github.com/aluiziolira/go-scrape-customers/queue"
	"github.com/aluiziolira/go-scrape-customers/tracker"
)

func main() {
	cfg := config.DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.CatalogFile, "catalog", cfg.CatalogFile, "TOML file overriding target page counts")
	flag.StringVar(&cfg.Schedule, "schedule", cfg.Schedule, "Cron expression; empty runs a single cycle")
	flag.DurationVar(&cfg.FullScanInterval, "full-scan-interval", cfg.FullScanInterval, "Minimum time between full scans of a target")
	flag.DurationVar(&cfg.BaseDelay, "base-delay", cfg.BaseDelay, "Spacing delay per page index")
	flag.Float64Var(&cfg.DelayJitter, "jitter", cfg.DelayJitter, "Relative jitter applied to job delays")
	flag.DurationVar(&cfg.DispatchTimeout, "dispatch-timeout", cfg.DispatchTimeout, "Time budget for enqueueing one target")
	flag.DurationVar(&cfg.PlanTimeout, "plan-timeout", cfg.PlanTimeout, "Time budget for one planning cycle")
	flag.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "State backend: redis or sqlite")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address")
	flag.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "Redis database")
	flag.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database path")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9091)")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")
	dryRun := flag.Bool("dry-run", false, "Print the plan without dispatching")
	flag.Parse()

	app.SetupLogging(cfg.Verbose)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	catalog, err := app.LoadCatalog(cfg)
	if err != nil {
		slog.Error("loading catalog", slog.Any("error", err))
		os.Exit(1)
	}

	backend, err := app.OpenBackend(cfg)
	if err != nil {
		slog.Error("opening backend", slog.Any("error", err))
		os.Exit(1)
	}
	defer backend.Close()

	registry := prometheus.NewRegistry()
	p := planner.New(
		catalog,
		tracker.NewScanStates(backend.Store),
		queue.NewDispatcher(backend.Queue, cfg),
		cfg,
		planner.NewMetrics(registry),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *dryRun {
		plans, err := p.DryRun(ctx)
		if err != nil {
			slog.Error("dry run failed", slog.Any("error", err))
			os.Exit(1)
		}
		for _, plan := range plans {
			mode := "incremental"
			if plan.FullScan {
				mode = "full"
			}
			fmt.Printf("%-5s %-12s %5d jobs\n", plan.Target, mode, len(plan.Jobs))
		}
		return
	}

	if cfg.Schedule == "" {
		if err := runCycle(ctx, p); err != nil {
			os.Exit(1)
		}
		return
	}

	if cfg.MetricsAddr != "" {
		shutdown := app.Serve(cfg.MetricsAddr, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		defer shutdown()
	}

	c := cron.New(
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger), cron.Recover(cron.DefaultLogger)),
	)
	if _, err := c.AddFunc(cfg.Schedule, func() { runCycle(ctx, p) }); err != nil {
		slog.Error("invalid schedule", slog.String("schedule", cfg.Schedule), slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()
	slog.Info("planner scheduled", slog.String("schedule", cfg.Schedule))

	<-ctx.Done()
	slog.Info("shutdown signal received, waiting for running cycle")
	<-c.Stop().Done()
}

func runCycle(ctx context.Context, p *planner.Planner) error {
	report, err := p.RunCycle(ctx)
	if err != nil {
		var dispatchErr *queue.DispatchError
		if errors.As(err, &dispatchErr) {
			slog.Error("planning cycle aborted",
				slog.Int("jobs_queued", report.JobsQueued),
				slog.Duration("duration", report.Duration),
				slog.Any("error", err),
			)
		} else {
			slog.Error("planning cycle failed", slog.Duration("duration", report.Duration), slog.Any("error", err))
		}
		return err
	}

	slog.Info("planning cycle complete",
		slog.Int("jobs_queued", report.JobsQueued),
		slog.Duration("duration", report.Duration),
	)
	return nil
}
