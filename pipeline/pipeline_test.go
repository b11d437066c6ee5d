package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-customers/models"
)

var testNow = time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)

type countingRunner struct {
	running int32
	peak    int32
	calls   int32
	release chan struct{}
}

func (c *countingRunner) Run(ctx context.Context, payload models.JobPayload) models.HarvestResult {
	atomic.AddInt32(&c.calls, 1)
	current := atomic.AddInt32(&c.running, 1)
	for {
		peak := atomic.LoadInt32(&c.peak)
		if current <= peak || atomic.CompareAndSwapInt32(&c.peak, peak, current) {
			break
		}
	}
	if c.release != nil {
		<-c.release
	}
	atomic.AddInt32(&c.running, -1)

	if payload.Page%2 == 0 {
		return models.HarvestResult{Success: false, Error: "boom"}
	}
	return models.HarvestResult{Success: true, Page: payload.Page, RecordsFound: 3, NewRecords: 1}
}

func TestPipelineRunsSubmittedTasks(t *testing.T) {
	runner := &countingRunner{}
	p := NewPipeline(context.Background(), runner, 8)
	p.Start(3)

	var (
		mu      sync.Mutex
		results []models.HarvestResult
	)
	for page := 1; page <= 10; page++ {
		err := p.Submit(Task{
			Payload: models.JobPayload{Target: models.TargetAll, Page: page},
			Done: func(r models.HarvestResult) {
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			},
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(results) != 10 {
		t.Fatalf("results = %d, want 10", len(results))
	}
	snapshot := p.GetMetrics()
	if snapshot["succeeded_jobs"].(int64) != 5 || snapshot["failed_jobs"].(int64) != 5 {
		t.Fatalf("metrics = %v", snapshot)
	}
	if snapshot["new_records"].(int64) != 5 {
		t.Fatalf("new records = %v, want 5", snapshot["new_records"])
	}
}

func TestPipelineBoundsConcurrency(t *testing.T) {
	runner := &countingRunner{release: make(chan struct{})}
	p := NewPipeline(context.Background(), runner, 0)
	p.Start(2)

	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for page := 1; page <= 6; page++ {
			p.Submit(Task{Payload: models.JobPayload{Target: models.TargetAll, Page: page}})
		}
	}()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&runner.running) < 2 {
		select {
		case <-deadline:
			t.Fatalf("workers never started")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if peak := atomic.LoadInt32(&runner.peak); peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
	close(runner.release)
	<-submitted
	p.Close()

	if peak := atomic.LoadInt32(&runner.peak); peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestPipelineSubmitAfterClose(t *testing.T) {
	p := NewPipeline(context.Background(), &countingRunner{}, 1)
	p.Start(1)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Submit(Task{}); err != ErrPipelineClosed {
		t.Fatalf("submit after close = %v, want ErrPipelineClosed", err)
	}
}

func TestPipelineCloseDuringSubmit(t *testing.T) {
	runner := &countingRunner{}
	p := NewPipeline(context.Background(), runner, 0)
	p.Start(2)

	var accepted int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := 1; ; page++ {
				err := p.Submit(Task{Payload: models.JobPayload{Target: models.TargetAll, Page: page}})
				if err == ErrPipelineClosed {
					return
				}
				if err != nil {
					t.Errorf("submit: %v", err)
					return
				}
				atomic.AddInt32(&accepted, 1)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()

	if got, want := atomic.LoadInt32(&runner.calls), atomic.LoadInt32(&accepted); got != want {
		t.Fatalf("ran %d tasks, accepted %d", got, want)
	}
}
