package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-customers/models"
)

var (
	// ErrPipelineClosed is returned when Submit is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// JobRunner executes one job payload.
type JobRunner interface {
	Run(ctx context.Context, payload models.JobPayload) models.HarvestResult
}

// Task is a job handed to the pool. Done, when set, receives the result
// on the worker goroutine.
type Task struct {
	Payload models.JobPayload
	Done    func(models.HarvestResult)
}

// Pipeline runs submitted jobs on a bounded set of workers.
type Pipeline struct {
	ctx    context.Context
	runner JobRunner
	taskCh chan Task

	wg sync.WaitGroup

	metrics metrics

	// mu guards closed. Senders hold the read lock for the whole send so
	// Close can only close taskCh once no send is in progress.
	mu     sync.RWMutex
	closed bool

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pool whose jobs run under ctx.
func NewPipeline(ctx context.Context, runner JobRunner, buffer int) *Pipeline {
	if buffer < 0 {
		buffer = 0
	}
	return &Pipeline{
		ctx:      ctx,
		runner:   runner,
		taskCh:   make(chan Task, buffer),
		shutdown: make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Submit hands a task to the workers, blocking while they are busy.
func (p *Pipeline) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPipelineClosed
	}

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.taskCh <- task:
		return nil
	}
}

// Close stops accepting tasks and waits for running ones to finish.
func (p *Pipeline) Close() error {
	// Releases senders blocked in Submit so the write lock can be taken.
	p.signalShutdown()

	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.taskCh)
	}
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				snapshot := p.GetMetrics()
				slog.Info("pipeline progress",
					slog.Int64("succeeded", snapshot["succeeded_jobs"].(int64)),
					slog.Int64("failed", snapshot["failed_jobs"].(int64)),
					slog.Int64("new_records", snapshot["new_records"].(int64)),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	for task := range p.taskCh {
		result := p.runner.Run(p.ctx, task.Payload)
		p.metrics.record(result)
		if task.Done != nil {
			task.Done(result)
		}
	}
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	succeeded  int64
	failed     int64
	newRecords int64
}

func (m *metrics) record(result models.HarvestResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !result.Success {
		m.failed++
		return
	}
	m.succeeded++
	m.newRecords += int64(result.NewRecords)
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]interface{}{
		"succeeded_jobs": m.succeeded,
		"failed_jobs":    m.failed,
		"new_records":    m.newRecords,
	}
}
