package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aluiziolira/go-scrape-customers/app"
	"github.com/aluiziolira/go-scrape-customers/config"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, cfg *config.Config, args []string) error
}

var commands = []command{
	{name: "history", summary: "print recent job outcomes", run: runHistory},
	{name: "stats", summary: "print novelty set sizes, scan state and queue depth", run: runStats},
	{name: "reset", summary: "forget the fingerprints (and optionally scan state) of a target", run: runReset},
	{name: "scrape", summary: "fetch one listing page and print its records", run: runScrape},
	{name: "export", summary: "fetch every page of a target into CSV without touching state", run: runExport},
}

func main() {
	cfg := config.DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "State backend: redis or sqlite")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address")
	flag.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "Redis database")
	flag.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database path")
	flag.StringVar(&cfg.CatalogFile, "catalog", cfg.CatalogFile, "TOML file overriding target page counts")
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Customer listing URL")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")
	flag.Usage = usage
	flag.Parse()

	app.SetupLogging(cfg.Verbose)

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	name := flag.Arg(0)
	for _, cmd := range commands {
		if cmd.name != name {
			continue
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		err := cmd.run(ctx, cfg, flag.Args()[1:])
		stop()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: harvestctl [flags] <command> [command flags]\n\nCommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(out, "  %-8s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintf(out, "\nFlags:\n")
	flag.PrintDefaults()
}
