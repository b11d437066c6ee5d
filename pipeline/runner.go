// Package pipeline executes harvest jobs: it fetches the page of a job,
// filters the records against the novelty set, forwards the new ones to a
// sink and records the outcome.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-customers/models"
	"github.com/aluiziolira/go-scrape-customers/scraper"
	"github.com/aluiziolira/go-scrape-customers/targets"
	"github.com/aluiziolira/go-scrape-customers/tracker"
)

// Harvester fetches one listing page.
type Harvester interface {
	Harvest(ctx context.Context, pageURL string) ([]models.Record, error)
}

// Runner is the job-execution entry point. One runner serves any number of
// concurrent jobs.
type Runner struct {
	catalog   *targets.Catalog
	urls      *targets.URLBuilder
	harvester Harvester
	novelty   *tracker.Novelty
	history   *tracker.History
	sink      Sink
	metrics   *scraper.Metrics
}

// NewRunner wires a runner. A nil metrics value disables instrumentation.
func NewRunner(
	catalog *targets.Catalog,
	urls *targets.URLBuilder,
	harvester Harvester,
	novelty *tracker.Novelty,
	history *tracker.History,
	sink Sink,
	metrics *scraper.Metrics,
) *Runner {
	return &Runner{
		catalog:   catalog,
		urls:      urls,
		harvester: harvester,
		novelty:   novelty,
		history:   history,
		sink:      sink,
		metrics:   metrics,
	}
}

// Run executes one job. Failures of the job itself are reported in the
// result and the error history; sink and store failures are logged only.
func (r *Runner) Run(ctx context.Context, payload models.JobPayload) models.HarvestResult {
	start := time.Now()

	job, err := r.catalog.Resolve(payload)
	if err != nil {
		slog.Error("rejecting job payload",
			slog.String("target", string(payload.Target)),
			slog.Int("page", payload.Page),
			slog.Any("error", err),
		)
		r.history.RecordError(ctx, payload.Target, payload.Page, err)
		r.metrics.IncJob(string(payload.Target), "invalid")
		return models.FailedResult(err)
	}

	pageURL := r.urls.JobURL(job)
	records, err := r.harvester.Harvest(ctx, pageURL)
	if err != nil {
		slog.Error("harvest failed",
			slog.String("job", job.String()),
			slog.String("url", pageURL),
			slog.String("category", scraper.ErrorLabel(err)),
			slog.Any("error", err),
		)
		r.history.RecordError(ctx, job.Target(), job.Page(), err)
		r.metrics.IncJob(string(job.Target()), "error")
		return models.FailedResult(err)
	}

	fresh, err := r.novelty.FilterNew(ctx, job.Target(), records)
	if err != nil {
		slog.Warn("novelty store degraded",
			slog.String("job", job.String()),
			slog.Any("error", err),
		)
	}

	if len(fresh) > 0 {
		if err := r.sink.Append(ctx, job.Target(), fresh); err != nil {
			sinkErr := &SinkError{Target: job.Target(), Count: len(fresh), Err: err}
			slog.Error("sink append failed", slog.String("job", job.String()), slog.Any("error", sinkErr))
		}
	}

	r.history.RecordSuccess(ctx, job.Target(), job.Page(), len(records), len(fresh))
	r.metrics.AddNewRecords(string(job.Target()), len(fresh))
	r.metrics.IncJob(string(job.Target()), "success")

	slog.Info("job done",
		slog.String("job", job.String()),
		slog.Int("records", len(records)),
		slog.Int("new", len(fresh)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return models.HarvestResult{
		Success:      true,
		Page:         job.Page(),
		RecordsFound: len(records),
		NewRecords:   len(fresh),
	}
}
