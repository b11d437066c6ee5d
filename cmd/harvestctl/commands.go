package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/aluiziolira/go-scrape-customers/app"
	"github.com/aluiziolira/go-scrape-customers/config"
	"github.com/aluiziolira/go-scrape-customers/models"
	"github.com/aluiziolira/go-scrape-customers/parser"
	"github.com/aluiziolira/go-scrape-customers/pipeline"
	"github.com/aluiziolira/go-scrape-customers/planner"
	"github.com/aluiziolira/go-scrape-customers/scraper"
	"github.com/aluiziolira/go-scrape-customers/store"
	"github.com/aluiziolira/go-scrape-customers/targets"
	"github.com/aluiziolira/go-scrape-customers/tracker"
)

func runHistory(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	target := fs.String("target", "", "Only show this target")
	limit := fs.Int("limit", app.DefaultHistoryLimit, "Number of entries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 || *limit > tracker.MaxHistory {
		return fmt.Errorf("limit must be between 1 and %d", tracker.MaxHistory)
	}

	catalog, backend, err := open(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	wanted, err := selectTargets(catalog, *target)
	if err != nil {
		return err
	}
	entries, err := tracker.NewHistory(backend.Store).Recent(ctx, wanted, *limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTARGET\tPAGE\tSTATUS\tFOUND\tNEW\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%d\t%s\n",
			e.Time().Format(time.RFC3339), e.Target, e.Page, e.Status, e.RecordsFound, e.NewRecords, e.Error)
	}
	return w.Flush()
}

func runStats(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	catalog, backend, err := open(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	novelty := tracker.NewNovelty(backend.Store, false)
	states := tracker.NewScanStates(backend.Store)
	now := time.Now()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tSEEN\tLAST CHECK\tLAST FULL SCAN\tNEXT SCAN")
	for _, tc := range catalog.All() {
		seen, err := novelty.Count(ctx, tc.ID)
		if err != nil {
			return err
		}
		state, err := states.Get(ctx, tc.ID)
		if err != nil {
			return err
		}
		next := "incremental"
		if planner.ShouldDoFullScan(state, now, cfg.FullScanInterval) {
			next = "full"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", tc.ID, seen, formatTime(state.LastIncrementalAt), formatTime(state.LastFullScanAt), next)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	pending, inflight, err := backend.Consumer.Depth(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\nqueue: %d pending, %d in flight\n", pending, inflight)
	return nil
}

func runReset(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	target := fs.String("target", "", "Target to reset (required)")
	withState := fs.Bool("state", false, "Also clear scan state so the next cycle runs a full scan")
	confirm := fs.Bool("confirm", false, "Confirm the reset; every record will be reported new again")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *target == "" {
		return errors.New("-target is required")
	}
	id, err := models.ParseTargetID(*target)
	if err != nil {
		return err
	}
	if !*confirm {
		return errors.New("refusing to reset without -confirm")
	}

	_, backend, err := open(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := tracker.NewNovelty(backend.Store, false).Reset(ctx, id); err != nil {
		return err
	}
	if *withState {
		if err := backend.Store.Delete(ctx, store.LastCheckKey(id), store.LastFullScanKey(id)); err != nil {
			return err
		}
	}
	fmt.Printf("reset %s\n", id)
	return nil
}

func runScrape(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("scrape", flag.ContinueOnError)
	target := fs.String("target", string(models.TargetAll), "Target of the page")
	countryID := fs.Int("country", 0, "Country id for region targets (default: first country)")
	page := fs.Int("page", 1, "Page number")
	asJSON := fs.Bool("json", false, "Print records as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	catalog, err := app.LoadCatalog(cfg)
	if err != nil {
		return err
	}
	payload, err := scrapePayload(catalog, *target, *countryID, *page)
	if err != nil {
		return err
	}
	job, err := catalog.Resolve(payload)
	if err != nil {
		return err
	}
	urls, err := targets.NewURLBuilder(cfg.BaseURL)
	if err != nil {
		return err
	}
	harvester, err := scraper.NewHarvester(cfg, nil)
	if err != nil {
		return err
	}

	pageURL := urls.JobURL(job)
	records, err := harvester.Harvest(ctx, pageURL)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	fmt.Printf("%s: %d records\n", pageURL, len(records))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tINDUSTRY\tCOUNTRY\tFINGERPRINT")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.Industry, r.Country, parser.Fingerprint(r))
	}
	return w.Flush()
}

func runExport(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	target := fs.String("target", "", "Target to export (required)")
	out := fs.String("out", "exports", "Output directory")
	pause := fs.Duration("pause", 2*time.Second, "Pause between pages")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := models.ParseTargetID(*target)
	if err != nil {
		return err
	}

	catalog, err := app.LoadCatalog(cfg)
	if err != nil {
		return err
	}
	tc, err := catalog.Get(id)
	if err != nil {
		return err
	}
	urls, err := targets.NewURLBuilder(cfg.BaseURL)
	if err != nil {
		return err
	}
	harvester, err := scraper.NewHarvester(cfg, nil)
	if err != nil {
		return err
	}
	sink, err := pipeline.NewCSVSink(*out, catalog)
	if err != nil {
		return err
	}
	defer sink.Close()

	jobs := planner.JobsFor(tc, true)
	var total, failed int
	for i, job := range jobs {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(*pause):
			}
		}
		records, err := harvester.Harvest(ctx, urls.JobURL(job))
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", job, err)
			continue
		}
		if err := sink.Append(ctx, id, records); err != nil {
			return err
		}
		total += len(records)
		fmt.Printf("[%d/%d] %s: %d records\n", i+1, len(jobs), job, len(records))
	}
	fmt.Printf("exported %d records from %d pages (%d failed) to %s\n", total, len(jobs), failed, *out)
	return nil
}

func open(cfg *config.Config) (*targets.Catalog, *app.Backend, error) {
	catalog, err := app.LoadCatalog(cfg)
	if err != nil {
		return nil, nil, err
	}
	backend, err := app.OpenBackend(cfg)
	if err != nil {
		return nil, nil, err
	}
	return catalog, backend, nil
}

func selectTargets(catalog *targets.Catalog, target string) ([]models.TargetID, error) {
	if target != "" {
		id, err := models.ParseTargetID(target)
		if err != nil {
			return nil, err
		}
		return []models.TargetID{id}, nil
	}
	var ids []models.TargetID
	for _, tc := range catalog.All() {
		ids = append(ids, tc.ID)
	}
	return ids, nil
}

func scrapePayload(catalog *targets.Catalog, target string, countryID, page int) (models.JobPayload, error) {
	id, err := models.ParseTargetID(target)
	if err != nil {
		return models.JobPayload{}, err
	}
	tc, err := catalog.Get(id)
	if err != nil {
		return models.JobPayload{}, err
	}
	payload := models.JobPayload{Target: id, Page: page}
	if tc.IsAggregate() {
		return payload, nil
	}
	if countryID == 0 {
		countryID = tc.Countries[0].ID
	}
	payload.CountryID = &countryID
	return payload, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}
