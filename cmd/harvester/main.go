package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-customers/app"
	"github.com/aluiziolira/go-scrape-customers/config"
	"github.com/aluiziolira/go-scrape-customers/pipeline"
	"github.com/aluiziolira/go-scrape-customers/scraper"
	"github.com/aluiziolira/go-scrape-customers/targets"
	"github.com/aluiziolira/go-scrape-customers/tracker"
)

func main() {
	cfg := config.DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Customer listing URL")
	flag.StringVar(&cfg.CatalogFile, "catalog", cfg.CatalogFile, "TOML file overriding target page counts")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	flag.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Fetch attempts per page")
	flag.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Initial retry backoff")
	flag.DurationVar(&cfg.RetryBackoffMax, "retry-backoff-max", cfg.RetryBackoffMax, "Maximum retry backoff")
	flag.IntVar(&cfg.Parallelism, "parallel", cfg.Parallelism, "Concurrent requests to the listing host")
	flag.DurationVar(&cfg.Delay, "delay", cfg.Delay, "Delay between requests")
	flag.DurationVar(&cfg.RandomDelay, "random-delay", cfg.RandomDelay, "Random jitter added to delay")
	flag.BoolVar(&cfg.RespectRobotsTxt, "respect-robots", cfg.RespectRobotsTxt, "Respect robots.txt directives")
	flag.BoolVar(&cfg.MirrorToAggregate, "mirror-to-all", cfg.MirrorToAggregate, "Also mark region records seen for the all target")
	flag.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "State backend: redis or sqlite")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address")
	flag.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "Redis database")
	flag.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database path")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent harvest jobs")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Queue poll interval")
	flag.IntVar(&cfg.ClaimBatch, "claim-batch", cfg.ClaimBatch, "Jobs claimed per poll")
	flag.DurationVar(&cfg.LeaseTimeout, "lease", cfg.LeaseTimeout, "Lease before an unacknowledged job is retried")
	flag.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Directory for record partitions")
	flag.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Output format: csv, json, dual, or sqlite")
	flag.IntVar(&cfg.DedupeMaxSize, "dedupe-size", cfg.DedupeMaxSize, "Fingerprints kept by the sink duplicate guard (0 disables)")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Listen address for /metrics and /history (e.g. :9090)")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")
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
	urls, err := targets.NewURLBuilder(cfg.BaseURL)
	if err != nil {
		slog.Error("invalid base url", slog.Any("error", err))
		os.Exit(1)
	}

	backend, err := app.OpenBackend(cfg)
	if err != nil {
		slog.Error("opening backend", slog.Any("error", err))
		os.Exit(1)
	}
	defer backend.Close()

	metrics := scraper.NewMetrics()
	harvester, err := scraper.NewHarvester(cfg, metrics)
	if err != nil {
		slog.Error("initialising harvester", slog.Any("error", err))
		os.Exit(1)
	}

	sink, err := app.OpenSink(cfg, catalog, backend)
	if err != nil {
		slog.Error("creating sink", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Error("close sink", slog.Any("error", err))
		}
	}()

	history := tracker.NewHistory(backend.Store)
	runner := pipeline.NewRunner(
		catalog,
		urls,
		harvester,
		tracker.NewNovelty(backend.Store, cfg.MirrorToAggregate),
		history,
		sink,
		metrics,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
		mux.Handle("/history", app.HistoryHandler(history, catalog))
		shutdown := app.Serve(cfg.MetricsAddr, mux)
		defer shutdown()
	}

	// Jobs keep running after a shutdown signal until their own timeouts.
	pool := pipeline.NewPipeline(context.WithoutCancel(ctx), runner, cfg.Workers)
	pool.Start(cfg.Workers)
	if cfg.Verbose {
		pool.StartMetricsReporting(time.Minute)
	}

	slog.Info("starting harvester",
		slog.String("base_url", cfg.BaseURL),
		slog.String("store", cfg.StoreBackend),
		slog.Int("workers", cfg.Workers),
	)
	pipeline.NewWorker(backend.Consumer, pool, cfg).Run(ctx)

	slog.Info("waiting for in-flight jobs to finish")
	pool.Close()

	snapshot := pool.GetMetrics()
	slog.Info("harvester stopped",
		slog.Any("succeeded_jobs", snapshot["succeeded_jobs"]),
		slog.Any("failed_jobs", snapshot["failed_jobs"]),
		slog.Any("new_records", snapshot["new_records"]),
	)
}
