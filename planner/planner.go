// Package planner decides, per target, which listing pages to scan and
// hands the resulting jobs to the dispatcher.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-customers/config"
	"github.com/aluiziolira/go-scrape-customers/models"
	"github.com/aluiziolira/go-scrape-customers/targets"
	"github.com/aluiziolira/go-scrape-customers/tracker"
)

// Dispatcher enqueues jobs and reports how many were accepted.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobs []models.Job) (int, error)
}

// Plan is the outcome of planning one target.
type Plan struct {
	Target   models.TargetID
	FullScan bool
	Jobs     []models.Job
}

// TargetReport summarizes one dispatched target.
type TargetReport struct {
	Target   models.TargetID `json:"target"`
	FullScan bool            `json:"fullScan"`
	Jobs     int             `json:"jobs"`
}

// CycleReport summarizes a planning cycle.
type CycleReport struct {
	JobsQueued int            `json:"jobsQueued"`
	Duration   time.Duration  `json:"duration"`
	Targets    []TargetReport `json:"targets"`
}

// Planner runs planning cycles over the catalog.
type Planner struct {
	catalog    *targets.Catalog
	states     *tracker.ScanStates
	dispatcher Dispatcher
	interval   time.Duration
	timeout    time.Duration
	Metrics    *Metrics

	now func() time.Time
}

// New builds a planner. A nil metrics value disables instrumentation.
func New(catalog *targets.Catalog, states *tracker.ScanStates, dispatcher Dispatcher, cfg *config.Config, metrics *Metrics) *Planner {
	return &Planner{
		catalog:    catalog,
		states:     states,
		dispatcher: dispatcher,
		interval:   cfg.FullScanInterval,
		timeout:    cfg.PlanTimeout,
		Metrics:    metrics,
		now:        time.Now,
	}
}

// ShouldDoFullScan reports whether a full scan is due: never scanned, or
// the last full scan is at least interval old.
func ShouldDoFullScan(state models.ScanState, now time.Time, interval time.Duration) bool {
	if state.LastFullScanAt.IsZero() {
		return true
	}
	return now.Sub(state.LastFullScanAt) >= interval
}

// JobsFor lists the jobs of one scan of tc. Region jobs never go past the
// page count of their country.
func JobsFor(tc targets.TargetConfig, fullScan bool) []models.Job {
	limit := func(pages int) int {
		if fullScan {
			return pages
		}
		return min(tc.IncrementalPages, pages)
	}

	var jobs []models.Job
	if tc.IsAggregate() {
		for page := 1; page <= limit(tc.TotalPages); page++ {
			jobs = append(jobs, models.NewAggregateJob(tc.ID, page))
		}
		return jobs
	}
	for _, country := range tc.Countries {
		for page := 1; page <= limit(country.Pages); page++ {
			jobs = append(jobs, models.NewRegionJob(tc.ID, country, page))
		}
	}
	return jobs
}

// Plan decides the scan mode of target and lists its jobs. Unreadable scan
// state falls back to an incremental scan.
func (p *Planner) Plan(ctx context.Context, target models.TargetID) (Plan, error) {
	tc, err := p.catalog.Get(target)
	if err != nil {
		return Plan{}, err
	}

	state, err := p.states.Get(ctx, target)
	fullScan := false
	if err != nil {
		slog.Warn("scan state unreadable, planning incremental scan",
			slog.String("target", string(target)),
			slog.Any("error", err),
		)
	} else {
		fullScan = ShouldDoFullScan(state, p.now(), p.interval)
	}

	return Plan{Target: target, FullScan: fullScan, Jobs: JobsFor(tc, fullScan)}, nil
}

// DryRun plans every target without dispatching or touching scan state.
func (p *Planner) DryRun(ctx context.Context) ([]Plan, error) {
	var plans []Plan
	for _, tc := range p.catalog.All() {
		plan, err := p.Plan(ctx, tc.ID)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// RunCycle plans and dispatches every target in catalog order within the
// plan timeout. Scan state of a target is updated only after its jobs were
// all accepted. A dispatch failure aborts the cycle; targets dispatched
// before it keep their updated state.
func (p *Planner) RunCycle(ctx context.Context) (CycleReport, error) {
	start := time.Now()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var report CycleReport
	finish := func(err error) (CycleReport, error) {
		report.Duration = time.Since(start)
		p.Metrics.ObserveCycle(report.Duration, err)
		return report, err
	}

	for _, tc := range p.catalog.All() {
		plan, err := p.Plan(ctx, tc.ID)
		if err != nil {
			return finish(err)
		}

		queued, err := p.dispatcher.Dispatch(ctx, plan.Jobs)
		report.JobsQueued += queued
		p.Metrics.AddDispatched(string(plan.Target), queued)
		if err != nil {
			return finish(fmt.Errorf("dispatch %s: %w", plan.Target, err))
		}
		report.Targets = append(report.Targets, TargetReport{
			Target:   plan.Target,
			FullScan: plan.FullScan,
			Jobs:     queued,
		})

		p.markDone(ctx, plan)
		slog.Info("target planned",
			slog.String("target", string(plan.Target)),
			slog.Bool("full_scan", plan.FullScan),
			slog.Int("jobs", queued),
		)
	}

	return finish(nil)
}

func (p *Planner) markDone(ctx context.Context, plan Plan) {
	now := p.now()
	if err := p.states.MarkChecked(ctx, plan.Target, now); err != nil {
		slog.Warn("scan state write failed",
			slog.String("target", string(plan.Target)),
			slog.Any("error", err),
		)
	}
	if !plan.FullScan {
		return
	}
	if err := p.states.MarkFullScan(ctx, plan.Target, now); err != nil {
		slog.Warn("scan state write failed",
			slog.String("target", string(plan.Target)),
			slog.Any("error", err),
		)
	}
}
