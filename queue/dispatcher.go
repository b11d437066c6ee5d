package queue

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/aluiziolira/go-scrape-customers/config"
	"github.com/aluiziolira/go-scrape-customers/models"
)

// Dispatcher spaces jobs over time and hands them to a Queue. It never
// runs jobs itself.
type Dispatcher struct {
	queue   Queue
	base    time.Duration
	jitter  float64
	timeout time.Duration

	rand func() float64
	now  func() time.Time
}

// NewDispatcher builds a dispatcher using the delay and timeout settings
// of cfg.
func NewDispatcher(q Queue, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		queue:   q,
		base:    cfg.BaseDelay,
		jitter:  cfg.DelayJitter,
		timeout: cfg.DispatchTimeout,
		rand:    rand.Float64,
		now:     time.Now,
	}
}

// Delay returns the spacing delay of page: page * base * (1 + j) truncated
// to whole seconds, with j drawn uniformly from [-jitter, +jitter].
func (d *Dispatcher) Delay(page int) time.Duration {
	j := (d.rand()*2 - 1) * d.jitter
	seconds := math.Floor(float64(page) * d.base.Seconds() * (1 + j))
	return time.Duration(seconds) * time.Second
}

// Schedule attaches a delay to every job.
func (d *Dispatcher) Schedule(jobs []models.Job) []models.ScheduledJob {
	scheduled := make([]models.ScheduledJob, len(jobs))
	for i, job := range jobs {
		scheduled[i] = models.ScheduledJob{Job: job, Delay: d.Delay(job.Page())}
	}
	return scheduled
}

// Dispatch enqueues jobs in order within the dispatch timeout and returns
// how many were accepted. The first failure stops the loop with a
// *DispatchError; jobs accepted before it stay queued.
func (d *Dispatcher) Dispatch(ctx context.Context, jobs []models.Job) (int, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	now := d.now()
	for i, job := range d.Schedule(jobs) {
		if err := ctx.Err(); err != nil {
			return i, &DispatchError{Accepted: i, Total: len(jobs), Err: err}
		}
		payload := models.NewPayload(job.Job, now)
		if err := d.queue.Enqueue(ctx, payload, now.Add(job.Delay)); err != nil {
			return i, &DispatchError{Accepted: i, Total: len(jobs), Err: err}
		}
		slog.Debug("job queued",
			slog.String("job", job.Job.String()),
			slog.Duration("delay", job.Delay),
		)
	}
	return len(jobs), nil
}
