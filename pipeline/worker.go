package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-customers/config"
	"github.com/aluiziolira/go-scrape-customers/models"
	"github.com/aluiziolira/go-scrape-customers/queue"
)

// Worker polls the queue for due jobs and feeds them to the pool.
type Worker struct {
	consumer     queue.Consumer
	pool         *Pipeline
	pollInterval time.Duration
	lease        time.Duration
	batch        int

	now func() time.Time
}

// NewWorker builds a worker using the polling settings of cfg.
func NewWorker(consumer queue.Consumer, pool *Pipeline, cfg *config.Config) *Worker {
	return &Worker{
		consumer:     consumer,
		pool:         pool,
		pollInterval: cfg.PollInterval,
		lease:        cfg.LeaseTimeout,
		batch:        cfg.ClaimBatch,
		now:          time.Now,
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("worker started", slog.Duration("poll_interval", w.pollInterval))
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.Poll(ctx)
		select {
		case <-ctx.Done():
			slog.Info("worker shutting down")
			return
		case <-ticker.C:
		}
	}
}

// Poll requeues expired leases, then claims one batch of due jobs and
// submits them. It returns the number of jobs submitted.
func (w *Worker) Poll(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	now := w.now()
	if n, err := w.consumer.RecoverExpired(ctx, now); err != nil {
		slog.Error("lease recovery failed", slog.Any("error", err))
	} else if n > 0 {
		slog.Warn("requeued jobs with expired leases", slog.Int("jobs", n))
	}

	deliveries, err := w.consumer.Claim(ctx, now, w.batch, w.lease)
	if err != nil {
		slog.Error("poll error", slog.Any("error", err))
		return 0
	}

	// Acks must land even while shutting down, or finished jobs run again.
	ackCtx := context.WithoutCancel(ctx)
	submitted := 0
	for _, d := range deliveries {
		delivery := d
		err := w.pool.Submit(Task{
			Payload: delivery.Payload,
			Done: func(models.HarvestResult) {
				if err := w.consumer.Ack(ackCtx, delivery); err != nil {
					slog.Error("ack failed", slog.String("job_id", delivery.ID), slog.Any("error", err))
				}
			},
		})
		if err != nil {
			slog.Warn("pool closed, leaving job to lease recovery", slog.String("job_id", delivery.ID))
			continue
		}
		submitted++
	}
	return submitted
}
